package handler

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

// DocsHandler serves the OpenAPI description of the PMSF API and a Swagger
// UI page that renders it.
type DocsHandler struct {
	OpenAPIPath string
}

func (h DocsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/openapi.yaml", h.serveDescription)
	r.Get("/docs", h.serveUI)
}

func (h DocsHandler) serveDescription(w http.ResponseWriter, r *http.Request) {
	if h.OpenAPIPath == "" {
		writeError(w, http.StatusNotFound, "api description not configured")
		return
	}
	body, err := os.ReadFile(h.OpenAPIPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "api description not found")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(body)
}

const swaggerPage = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>PMSF API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '/openapi.yaml',
          dom_id: '#swagger-ui',
          persistAuthorization: true
        });
      };
    </script>
  </body>
</html>`

func (h DocsHandler) serveUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(swaggerPage))
}
