package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"pmsf-backend/internal/ports"
)

// HealthHandler exposes a readiness probe.
type HealthHandler struct {
	DB     ports.HealthChecker
	Logger *slog.Logger
}

func (h HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.Health(ctx); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("health check failed", "err", err)
		}
		writeMessage(w, http.StatusServiceUnavailable, "database unreachable", map[string]string{"status": "degraded"})
		return
	}
	writeMessage(w, http.StatusOK, "Server is running", map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
