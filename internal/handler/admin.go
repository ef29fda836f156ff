package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/ports"
	"pmsf-backend/internal/server/authctx"
	"pmsf-backend/internal/service"
)

// AdminHandler serves user, role and audit management. Routes are mounted
// behind an admin-only group.
type AdminHandler struct {
	Service *service.AdminService
	Logger  *slog.Logger
}

func (h AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/admin/users", h.listUsers)
	r.Post("/admin/users", h.createUser)
	r.Put("/admin/users/{userId}", h.updateUser)
	r.Post("/admin/users/{userId}/reset-password", h.resetPassword)
	r.Post("/admin/users/{userId}/unlock", h.unlockUser)

	r.Get("/admin/roles", h.listRoles)
	r.Post("/admin/roles", h.createRole)
	r.Put("/admin/roles/{roleId}", h.updateRole)
	r.Get("/admin/roles/{roleId}/permissions", h.rolePermissions)

	r.Get("/admin/permissions", h.listPermissions)
	r.Get("/admin/audit-logs", h.auditLogs)
}

func (h AdminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	now := time.Now()
	resp := make([]map[string]any, 0, len(users))
	for _, u := range users {
		resp = append(resp, map[string]any{
			"id":                  u.ID,
			"username":            u.Username,
			"email":               u.Email,
			"fullName":            u.FullName,
			"isActive":            u.IsActive,
			"failedLoginAttempts": u.FailedLoginAttempts,
			"isLocked":            u.LockedAt(now),
			"lockedUntil":         u.LockedUntil,
			"lastLoginAt":         u.LastLoginAt,
			"createdAt":           u.CreatedAt,
			"roles":               nonNil(u.Roles),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h AdminHandler) createUser(w http.ResponseWriter, r *http.Request) {
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
	id, err := h.Service.CreateUser(r.Context(), service.RegisterInput{
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
	writeMessage(w, http.StatusCreated, "User created successfully", map[string]any{"userId": id})
}

func (h AdminHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	actor := authctx.FromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req struct {
		Email    string  `json:"email" validate:"omitempty,email"`
		FullName string  `json:"fullName" validate:"max=100"`
		IsActive *bool   `json:"isActive" validate:"required"`
		RoleIDs  []int64 `json:"roleIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	err := h.Service.UpdateUser(r.Context(), id, service.UpdateUserInput{
		Email:    req.Email,
		FullName: req.FullName,
		IsActive: *req.IsActive,
		RoleIDs:  req.RoleIDs,
	}, actor.ID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "User updated successfully", nil)
}

func (h AdminHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req struct {
		NewPassword string `json:"newPassword" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if err := h.Service.ResetPassword(r.Context(), id, req.NewPassword); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successfully", nil)
}

func (h AdminHandler) unlockUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	if err := h.Service.UnlockUser(r.Context(), id); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Account unlocked successfully", nil)
}

func (h AdminHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		resp = append(resp, roleResponse(role))
	}
	writeJSON(w, http.StatusOK, resp)
}

type roleRequest struct {
	RoleName      string  `json:"roleName" validate:"required,max=50"`
	Description   string  `json:"description" validate:"max=255"`
	IsActive      *bool   `json:"isActive"`
	PermissionIDs []int64 `json:"permissionIds"`
}

func (req roleRequest) input() service.RoleInput {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return service.RoleInput{
		Name:          req.RoleName,
		Description:   req.Description,
		IsActive:      active,
		PermissionIDs: req.PermissionIDs,
	}
}

func (h AdminHandler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	id, err := h.Service.CreateRole(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Role created successfully", map[string]any{"roleId": id})
}

func (h AdminHandler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleId")
	if !ok {
		return
	}
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if err := h.Service.UpdateRole(r.Context(), id, req.input()); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Role updated successfully", nil)
}

func (h AdminHandler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleId")
	if !ok {
		return
	}
	ids, err := h.Service.RolePermissionIDs(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ids))
}

func (h AdminHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.ListPermissions(r.Context())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(perms))
	for _, p := range perms {
		resp = append(resp, map[string]any{
			"id":            p.ID,
			"name":          p.Name,
			"componentName": p.ComponentName,
			"description":   p.Description,
			"isActive":      p.IsActive,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h AdminHandler) auditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	var userID *int64
	if v := q.Get("userId"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid userId")
			return
		}
		userID = &n
	}
	from, to, err := dateRange(r)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	rows, err := h.Service.LoginAudit(r.Context(), ports.AuditFilter{Limit: limit, UserID: userID, From: from, To: to})
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(rows))
	for _, a := range rows {
		resp = append(resp, map[string]any{
			"id":            a.ID,
			"userId":        a.UserID,
			"username":      a.Username,
			"status":        string(a.Status),
			"failureReason": a.FailureReason,
			"ipAddress":     a.IPAddress,
			"userAgent":     a.UserAgent,
			"loggedAt":      a.LoggedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func roleResponse(role domain.Role) map[string]any {
	return map[string]any{
		"id":              role.ID,
		"roleName":        role.Name,
		"description":     role.Description,
		"isActive":        role.IsActive,
		"createdAt":       role.CreatedAt,
		"userCount":       role.UserCount,
		"permissionCount": role.PermissionCount,
	}
}

// pathID parses a positive integer URL parameter, writing a 400 when it is
// not one.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
