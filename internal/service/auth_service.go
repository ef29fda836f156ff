package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/config"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/metrics"
	"pmsf-backend/internal/ports"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

const (
	tokenTypeAccess   = "access"
	minPasswordLength = 8
)

type AuthService struct {
	Config config.Config
	Users  ports.UserStore
	Audit  ports.AuditStore
	Tx     ports.UnitOfWork
	Logger *slog.Logger
	Now    func() time.Time
}

// AccessClaims is the payload of a session token.
type AccessClaims struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID parses the numeric subject.
func (c AccessClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// Profile is a user with the role and permission names in force now.
type Profile struct {
	User        domain.User
	Roles       []string
	Permissions []string
}

type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Profile     Profile
}

type RegisterInput struct {
	Username string
	Password string
	Email    string
	FullName string
	RoleIDs  []int64
}

func (s AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login checks credentials, applies the failed-attempt lockout and issues a
// session token. Every outcome except a lock rejection is audited.
func (s AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, apperr.Validation("Username and password are required", nil)
	}

	user, err := s.Users.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			s.audit(ctx, nil, in, domain.LoginFailed, "User not found")
			return nil, apperr.Unauthorized("Invalid credentials")
		}
		return nil, apperr.Internal("login failed", err)
	}

	now := s.now()
	if user.LockedAt(now) {
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		minutes := int(math.Ceil(user.LockedUntil.Sub(now).Minutes()))
		return nil, apperr.Locked(minutes)
	}
	if !user.IsActive {
		s.audit(ctx, &user.ID, in, domain.LoginFailed, "Account inactive")
		return nil, apperr.Forbidden("Account is deactivated. Contact administrator.")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		if err := s.Users.RegisterFailedLogin(ctx, user.ID, s.Config.MaxFailedLogins, now.Add(s.Config.LockoutDuration)); err != nil {
			s.Logger.Error("record failed login", "user_id", user.ID, "err", err)
		}
		s.audit(ctx, &user.ID, in, domain.LoginFailed, "Invalid password")
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	profile, err := s.profile(ctx, user)
	if err != nil {
		return nil, apperr.Internal("login failed", err)
	}
	if err := s.Users.RegisterSuccessfulLogin(ctx, user.ID, now); err != nil {
		return nil, apperr.Internal("login failed", err)
	}
	token, exp, err := s.issueToken(profile, now)
	if err != nil {
		return nil, apperr.Internal("login failed", err)
	}
	s.audit(ctx, &user.ID, in, domain.LoginSuccess, "")
	return &AuthResult{AccessToken: token, ExpiresAt: exp, Profile: *profile}, nil
}

// Verify reloads an authenticated user and their current grants.
func (s AuthService) Verify(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, apperr.Unauthorized("User not found or inactive")
		}
		return nil, apperr.Internal("token verification failed", err)
	}
	if !user.IsActive {
		return nil, apperr.Unauthorized("User not found or inactive")
	}
	p, err := s.profile(ctx, user)
	if err != nil {
		return nil, apperr.Internal("token verification failed", err)
	}
	return p, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if current == "" || next == "" {
		return apperr.Validation("Current password and new password are required", nil)
	}
	if len(next) < minPasswordLength {
		return apperr.Validation(fmt.Sprintf("New password must be at least %d characters", minPasswordLength), nil)
	}
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal("failed to change password", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return apperr.Unauthorized("Current password is incorrect")
	}
	hash, err := HashPassword(next, s.Config.BcryptCost)
	if err != nil {
		return apperr.Internal("failed to change password", err)
	}
	if err := s.Users.SetPassword(ctx, userID, hash); err != nil {
		return apperr.Internal("failed to change password", err)
	}
	s.Logger.Info("password changed", "user_id", userID)
	return nil
}

// Register creates an account with the given roles in one transaction.
func (s AuthService) Register(ctx context.Context, in RegisterInput, actorID int64) (int64, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return 0, apperr.Validation("Username and password are required", nil)
	}
	if len(in.Password) < minPasswordLength {
		return 0, apperr.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLength), nil)
	}
	hash, err := HashPassword(in.Password, s.Config.BcryptCost)
	if err != nil {
		return 0, apperr.Internal("failed to register user", err)
	}

	var id int64
	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.Users.Create(ctx, ports.CreateUserParams{
			Username:     in.Username,
			Email:        strings.TrimSpace(in.Email),
			FullName:     strings.TrimSpace(in.FullName),
			PasswordHash: hash,
			IsActive:     true,
		})
		if err != nil {
			return err
		}
		return s.Users.ReplaceRoles(ctx, id, in.RoleIDs, actorID)
	})
	if err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return 0, apperr.Conflict("Username already exists", nil)
		}
		return 0, apperr.Internal("failed to register user", err)
	}
	s.Logger.Info("user registered", "user_id", id, "username", in.Username, "by", actorID)
	return id, nil
}

// ParseAccessToken validates signature, expiry and token type.
func ParseAccessToken(secret, tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash; cost <= 0 uses the library default.
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s AuthService) profile(ctx context.Context, user *domain.User) (*Profile, error) {
	roles, err := s.Users.ActiveRoleNames(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	perms, err := s.Users.PermissionNames(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return &Profile{User: *user, Roles: roles, Permissions: perms}, nil
}

func (s AuthService) issueToken(p *Profile, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.Config.AccessTokenTTL)
	claims := AccessClaims{
		Username:  p.User.Username,
		Email:     p.User.Email,
		Roles:     p.Roles,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.User.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// audit records a login attempt. Failures are logged and never block login.
func (s AuthService) audit(ctx context.Context, userID *int64, in LoginInput, status domain.LoginStatus, reason string) {
	metrics.LoginAttempts.WithLabelValues(strings.ToLower(string(status))).Inc()
	err := s.Audit.RecordLogin(ctx, domain.LoginAudit{
		UserID:        userID,
		Username:      in.Username,
		Status:        status,
		FailureReason: reason,
		IPAddress:     firstNonEmpty(in.IPAddress, "Unknown"),
		UserAgent:     firstNonEmpty(in.UserAgent, "Unknown"),
	})
	if err != nil {
		s.Logger.Error("record login audit", "username", in.Username, "err", err)
	}
}
