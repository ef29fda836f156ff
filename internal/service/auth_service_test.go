package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/config"
	"pmsf-backend/internal/domain"
)

const testSecret = "test-secret"

func newAuthService(t *testing.T, now time.Time) (AuthService, *memUsers, *memAudit) {
	t.Helper()
	hash, err := HashPassword("correct-horse", 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	users := &memUsers{
		users: map[string]*domain.User{
			"alice": {ID: 1, Username: "alice", Email: "a@example.com", PasswordHash: hash, IsActive: true},
			"bob":   {ID: 2, Username: "bob", PasswordHash: hash, IsActive: false},
		},
		roles: []string{"Staff"},
		perms: []string{domain.PermVisitSubmit},
	}
	audit := &memAudit{}
	cfg := config.Config{
		JWTSecret:       testSecret,
		AccessTokenTTL:  time.Hour,
		MaxFailedLogins: 3,
		LockoutDuration: 30 * time.Minute,
		BcryptCost:      4,
	}
	return AuthService{Config: cfg, Users: users, Audit: audit, Tx: &fakeTx{}, Logger: discardLogger(), Now: fixedNow(now)}, users, audit
}

func TestLoginIssuesParsableToken(t *testing.T) {
	now := time.Now()
	svc, users, audit := newAuthService(t, now)

	res, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "correct-horse", IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	claims, err := ParseAccessToken(testSecret, res.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if id, _ := claims.UserID(); id != 1 || claims.Username != "alice" || len(claims.Roles) != 1 {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("token should carry a jti")
	}
	if users.users["alice"].LastLoginAt == nil {
		t.Fatalf("last login not stamped")
	}
	if len(audit.rows) != 1 || audit.rows[0].Status != domain.LoginSuccess || audit.rows[0].IPAddress != "10.0.0.1" {
		t.Fatalf("audit = %+v", audit.rows)
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	svc, users, audit := newAuthService(t, now)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "wrong"})
		if apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("attempt %d: err = %v, want unauthorized", i+1, err)
		}
	}
	if users.users["alice"].LockedUntil == nil {
		t.Fatalf("account should be locked after 3 failures")
	}

	_, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "correct-horse"})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindLocked {
		t.Fatalf("err = %v, want locked", err)
	}
	if d := e.Details.(map[string]int); d["remainingMinutes"] != 30 {
		t.Fatalf("remaining = %v", d)
	}
	if len(audit.rows) != 3 {
		t.Fatalf("audit rows = %d, want 3 failures only", len(audit.rows))
	}
}

func TestLoginUnknownAndInactive(t *testing.T) {
	svc, _, audit := newAuthService(t, time.Now())

	if _, err := svc.Login(context.Background(), LoginInput{Username: "nobody", Password: "x"}); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("unknown user err = %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginInput{Username: "bob", Password: "correct-horse"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("inactive user err = %v", err)
	}
	if len(audit.rows) != 2 || audit.rows[0].UserID != nil || audit.rows[0].IPAddress != "Unknown" {
		t.Fatalf("audit = %+v", audit.rows)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	now := time.Now()
	sign := func(c AccessClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := AccessClaims{TokenType: tokenTypeAccess, RegisteredClaims: jwt.RegisteredClaims{
		Subject: "1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	if _, err := ParseAccessToken(testSecret, sign(expired, testSecret)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired: err = %v", err)
	}

	if _, err := ParseAccessToken(testSecret, sign(valid, "other")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("bad signature: err = %v", err)
	}

	refresh := valid
	refresh.TokenType = "refresh"
	if _, err := ParseAccessToken(testSecret, sign(refresh, testSecret)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong type: err = %v", err)
	}

	noExp := valid
	noExp.ExpiresAt = nil
	if _, err := ParseAccessToken(testSecret, sign(noExp, testSecret)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing exp: err = %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, users, _ := newAuthService(t, time.Now())

	if err := svc.ChangePassword(context.Background(), 1, "wrong", "new-password"); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("wrong current: err = %v", err)
	}
	if err := svc.ChangePassword(context.Background(), 1, "correct-horse", "short"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("short: err = %v", err)
	}
	old := users.users["alice"].PasswordHash
	if err := svc.ChangePassword(context.Background(), 1, "correct-horse", "new-password"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if users.users["alice"].PasswordHash == old {
		t.Fatalf("hash not replaced")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _, _ := newAuthService(t, time.Now())
	_, err := svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "long-enough"}, 1)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
}
