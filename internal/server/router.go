package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pmsf-backend/internal/config"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/handler"
	"pmsf-backend/internal/ports"
)

// loginRatePerMinute bounds password guessing per client address on top of
// the account lockout.
const loginRatePerMinute = 20

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Health    handler.HealthHandler
	Auth      handler.AuthHandler
	Admin     handler.AdminHandler
	Branch    handler.BranchHandler
	Checklist handler.ChecklistHandler
	Visit     handler.VisitHandler
	Media     handler.MediaHandler
	Quiz      handler.QuizHandler
	Docs      handler.DocsHandler
}

// NewRouter wires HTTP routes and middleware. API routes live under /api;
// stored media is served read-only under /images.
func NewRouter(cfg config.Config, logger *slog.Logger, perms ports.PermissionChecker, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, 1*time.Minute))

	r.Method("GET", "/metrics", promhttp.Handler())
	h.Docs.RegisterRoutes(r)
	r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.UploadDir))))

	permit := func(name string) func(http.Handler) http.Handler {
		return RequirePermission(perms, logger, name)
	}

	r.Route("/api", func(api chi.Router) {
		h.Health.RegisterRoutes(api)
		api.Group(func(lr chi.Router) {
			lr.Use(httprate.LimitByIP(loginRatePerMinute, 1*time.Minute))
			h.Auth.RegisterRoutes(lr)
		})

		api.Group(func(pr chi.Router) {
			pr.Use(AuthMiddleware(cfg.JWTSecret))
			h.Auth.RegisterProtectedRoutes(pr)
			h.Branch.RegisterRoutes(pr)
			h.Checklist.RegisterReadRoutes(pr)

			pr.Group(func(ar chi.Router) {
				ar.Use(RequireRole(string(domain.RoleAdmin)))
				h.Auth.RegisterAdminRoutes(ar)
				h.Admin.RegisterRoutes(ar)
			})
			pr.Group(func(cr chi.Router) {
				cr.Use(permit(domain.PermChecklistManage))
				h.Checklist.RegisterRoutes(cr)
			})
			pr.Group(func(vr chi.Router) {
				vr.Use(permit(domain.PermVisitSubmit))
				h.Visit.RegisterEntryRoutes(vr)
				h.Media.RegisterRoutes(vr)
			})
			pr.Group(func(vr chi.Router) {
				vr.Use(permit(domain.PermVisitView))
				h.Visit.RegisterViewRoutes(vr)
			})
			pr.Group(func(qr chi.Router) {
				qr.Use(permit(domain.PermQuizManage))
				h.Quiz.RegisterRoutes(qr)
			})
			pr.Group(func(qr chi.Router) {
				qr.Use(permit(domain.PermQuizAttempt))
				h.Quiz.RegisterAttemptRoutes(qr)
			})
		})
	})

	return r
}
