package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pmsf-backend/internal/config"
	"pmsf-backend/internal/handler"
)

type healthyDB struct{}

func (healthyDB) Health(context.Context) error { return nil }

func testRouter(t *testing.T) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		JWTSecret:          testSecret,
		UploadDir:          dir,
		RateLimitPerMinute: 1000,
		CORSAllowedOrigins: []string{"*"},
	}
	h := Handlers{Health: handler.HealthHandler{DB: healthyDB{}, Logger: discardLogger}}
	return NewRouter(cfg, discardLogger, stubPermissions{}, h), dir
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	r, dir := testRouter(t)
	if err := os.WriteFile(filepath.Join(dir, "10122025121.png"), []byte("img"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/images/10122025121.png", http.StatusOK},
		{http.MethodGet, "/docs", http.StatusOK},
		{http.MethodGet, "/openapi.yaml", http.StatusNotFound},
		{http.MethodGet, "/api/pmsf-master", http.StatusUnauthorized},
		{http.MethodPost, "/api/submit-pmsf-form", http.StatusUnauthorized},
		{http.MethodGet, "/api/admin/users", http.StatusUnauthorized},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, rec.Code)
		}
	}
}

func TestRouterChecksPermissionBeforeHandler(t *testing.T) {
	r, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/visit-data/101/2025/1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "9", []string{"Evaluator"}, farFuture()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without visit.view, got %d", rec.Code)
	}
}

func farFuture() time.Time { return time.Now().Add(24 * time.Hour) }
