package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"pmsf-backend/internal/server/authctx"
	"pmsf-backend/internal/service"
)

const testSecret = "middleware-test-secret"

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func signToken(t *testing.T, sub string, roles []string, exp time.Time) string {
	t.Helper()
	claims := service.AccessClaims{
		Username:  "amy",
		Email:     "amy@example.com",
		Roles:     roles,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	u := authctx.FromContext(r.Context())
	if u == nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_ = json.NewEncoder(w).Encode(u)
}

func authMessage(t *testing.T, body []byte) string {
	t.Helper()
	var env struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return env.Message
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware(testSecret)(http.HandlerFunc(echoUser))
	future := time.Now().Add(time.Hour)

	cases := []struct {
		name   string
		header string
		status int
		msg    string
	}{
		{"missing", "", http.StatusUnauthorized, "Access denied. No token provided."},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "Access denied. No token provided."},
		{"expired", "Bearer " + signToken(t, "7", nil, time.Now().Add(-time.Minute)), http.StatusUnauthorized, "Token expired"},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized, "Invalid token"},
		{"bad subject", "Bearer " + signToken(t, "amy", nil, future), http.StatusUnauthorized, "Invalid token"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, rec.Code)
		}
		if got := authMessage(t, rec.Body.Bytes()); got != tc.msg {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.msg, got)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "7", []string{"Admin"}, future))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var u authctx.CurrentUser
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if u.ID != 7 || u.Username != "amy" || !u.HasRole("Admin") {
		t.Fatalf("unexpected user %+v", u)
	}
}

func withUser(u authctx.CurrentUser) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(authctx.WithCurrentUser(req.Context(), u))
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("Admin")(http.HandlerFunc(echoUser))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withUser(authctx.CurrentUser{ID: 1, Roles: []string{"Evaluator"}}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withUser(authctx.CurrentUser{ID: 1, Roles: []string{"Evaluator", "Admin"}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without user, got %d", rec.Code)
	}
}

type stubPermissions struct {
	granted map[int64][]string
	err     error
}

func (s stubPermissions) UserHasPermission(_ context.Context, userID int64, name string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	for _, p := range s.granted[userID] {
		if p == name {
			return true, nil
		}
	}
	return false, nil
}

func TestRequirePermission(t *testing.T) {
	perms := stubPermissions{granted: map[int64][]string{1: {"visit.submit"}}}
	h := RequirePermission(perms, discardLogger, "visit.submit")(http.HandlerFunc(echoUser))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withUser(authctx.CurrentUser{ID: 1}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withUser(authctx.CurrentUser{ID: 2}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	failing := RequirePermission(stubPermissions{err: errors.New("db down")}, discardLogger, "visit.submit")(http.HandlerFunc(echoUser))
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, withUser(authctx.CurrentUser{ID: 1}))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestLoggerMiddlewareUsesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := chi.NewRouter()
	r.Use(NewLoggerMiddleware(logger))
	r.Get("/pmsf-data/{visitId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pmsf-data/42", nil))
	out := buf.String()
	if !strings.Contains(out, "route=/pmsf-data/{visitId}") || !strings.Contains(out, "status=404") {
		t.Fatalf("unexpected log line %q", out)
	}
}
