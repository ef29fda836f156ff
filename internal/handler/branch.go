package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"pmsf-backend/internal/ports"
)

type BranchHandler struct {
	Repo   ports.BranchStore
	Logger *slog.Logger
}

func (h BranchHandler) RegisterRoutes(r chi.Router) {
	r.Get("/branch/{code}", h.get)
}

func (h BranchHandler) get(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	if len(code) < 3 {
		writeError(w, http.StatusBadRequest, "Branch code must be at least 3 characters")
		return
	}
	b, err := h.Repo.GetBranch(r.Context(), code)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Branch not found")
			return
		}
		h.Logger.Error("fetch branch", "code", code, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch branch data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"branchCode": b.Code,
		"branchName": b.Name,
		"division":   b.Division,
		"region":     b.Region,
		"area":       b.Area,
	})
}
