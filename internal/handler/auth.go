package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"pmsf-backend/internal/server/authctx"
	"pmsf-backend/internal/service"
)

type AuthHandler struct {
	Service *service.AuthService
	Logger  *slog.Logger
}

// RegisterRoutes mounts the public login route.
func (h AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.login)
}

func (h AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/auth/verify", h.verify)
	r.Post("/auth/change-password", h.changePassword)
}

// RegisterAdminRoutes mounts account creation; callers restrict it to admins.
func (h AuthHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/auth/register", h.register)
}

type userResponse struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	IsActive    bool       `json:"isActive"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func profileResponse(p service.Profile) userResponse {
	return userResponse{
		ID:          p.User.ID,
		Username:    p.User.Username,
		Email:       p.User.Email,
		FullName:    p.User.FullName,
		IsActive:    p.User.IsActive,
		Roles:       nonNil(p.Roles),
		Permissions: nonNil(p.Permissions),
		LastLoginAt: p.User.LastLoginAt,
	}
}

func (h AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	res, err := h.Service.Login(r.Context(), service.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Login successful", map[string]any{
		"token":     res.AccessToken,
		"expiresAt": res.ExpiresAt,
		"user":      profileResponse(res.Profile),
	})
}

func (h AuthHandler) verify(w http.ResponseWriter, r *http.Request) {
	user := authctx.FromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	p, err := h.Service.Verify(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": profileResponse(*p)})
}

func (h AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	user := authctx.FromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if err := h.Service.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully", nil)
}

func (h AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	actor := authctx.FromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Username string  `json:"username" validate:"required,max=50"`
		Password string  `json:"password" validate:"required"`
		Email    string  `json:"email" validate:"omitempty,email"`
		FullName string  `json:"fullName" validate:"max=100"`
		RoleIDs  []int64 `json:"roleIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	id, err := h.Service.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		FullName: req.FullName,
		RoleIDs:  req.RoleIDs,
	}, actor.ID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusCreated, "User registered successfully", map[string]any{"userId": id})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
