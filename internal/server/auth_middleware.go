package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"pmsf-backend/internal/ports"
	"pmsf-backend/internal/server/authctx"
	"pmsf-backend/internal/service"
)

// AuthMiddleware validates the bearer token and sets the current user in
// the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Access denied. No token provided.")
				return
			}
			claims, err := service.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, service.ErrTokenExpired) {
					msg = "Token expired"
				}
				writeAuthError(w, http.StatusUnauthorized, msg)
				return
			}
			id, err := claims.UserID()
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			ctx := authctx.WithCurrentUser(r.Context(), authctx.CurrentUser{
				ID:       id,
				Username: claims.Username,
				Email:    claims.Email,
				Roles:    claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole ensures the user holds at least one of the allowed roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := authctx.FromContext(r.Context())
			if u == nil {
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}
			if len(roles) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if u.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeAuthError(w, http.StatusForbidden, "Access denied. Insufficient role.")
		})
	}
}

// RequirePermission checks the named permission against the user's active
// roles on every request, so role edits apply without a new token.
func RequirePermission(checker ports.PermissionChecker, log *slog.Logger, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := authctx.FromContext(r.Context())
			if u == nil {
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}
			ok, err := checker.UserHasPermission(r.Context(), u.ID, name)
			if err != nil {
				log.Error("permission lookup failed", "user_id", u.ID, "permission", name, "err", err)
				writeAuthError(w, http.StatusInternalServerError, "failed to check permissions")
				return
			}
			if !ok {
				writeAuthError(w, http.StatusForbidden, "Access denied. Missing permission: "+name)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"status":"error","message":"` + message + `","data":null,"error":{"code":` +
		strconv.Itoa(status) + `,"status":"` + http.StatusText(status) + `"}}`))
}
