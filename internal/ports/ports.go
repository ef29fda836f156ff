// Package ports declares the storage boundaries the services depend on.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"pmsf-backend/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate")
)

// HealthChecker is used to probe dependencies.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// UnitOfWork runs fn in one transaction. Stores called with the ctx passed
// to fn join that transaction.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type CreateUserParams struct {
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
}

type UpdateUserParams struct {
	Email    string
	FullName string
	IsActive bool
}

type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Create(ctx context.Context, p CreateUserParams) (int64, error)
	Update(ctx context.Context, id int64, p UpdateUserParams) error
	// SetPassword stores a new hash and clears any lockout.
	SetPassword(ctx context.Context, id int64, hash string) error
	// RegisterFailedLogin increments the failure counter and sets
	// locked_until once the counter reaches maxAttempts.
	RegisterFailedLogin(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) error
	RegisterSuccessfulLogin(ctx context.Context, id int64, at time.Time) error
	Unlock(ctx context.Context, id int64) error
	ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64, assignedBy int64) error
	ActiveRoleNames(ctx context.Context, userID int64) ([]string, error)
	PermissionNames(ctx context.Context, userID int64) ([]string, error)
}

// PermissionChecker answers whether a user holds a named permission
// through any active role.
type PermissionChecker interface {
	UserHasPermission(ctx context.Context, userID int64, name string) (bool, error)
}

type RoleStore interface {
	PermissionChecker
	List(ctx context.Context) ([]domain.Role, error)
	Create(ctx context.Context, name, description string) (int64, error)
	Update(ctx context.Context, id int64, name, description string, isActive bool) error
	ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	PermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	ListPermissions(ctx context.Context) ([]domain.Permission, error)
}

type AuditStore interface {
	RecordLogin(ctx context.Context, a domain.LoginAudit) error
	ListLogins(ctx context.Context, f AuditFilter) ([]domain.LoginAudit, error)
}

// AuditFilter narrows the login audit listing. From is inclusive and To is
// exclusive; nil bounds are open.
type AuditFilter struct {
	Limit  int
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type BranchStore interface {
	GetBranch(ctx context.Context, code string) (*domain.Branch, error)
}

type ChecklistStore interface {
	ListActive(ctx context.Context) ([]domain.ChecklistItem, error)
	Get(ctx context.Context, code int64) (*domain.ChecklistItem, error)
	// States maps every stored code to its lifecycle state.
	States(ctx context.Context) (map[int64]domain.LifecycleState, error)
	MaxCode(ctx context.Context) (int64, error)
	// InsertWithCode inserts item under item.Code. It reports false when the
	// code is already taken.
	InsertWithCode(ctx context.Context, item domain.ChecklistItem) (bool, error)
	// Update rewrites mutable fields; created_at and created_by are kept.
	Update(ctx context.Context, item domain.ChecklistItem) error
	SoftDelete(ctx context.Context, code int64) error
	// Reindex numbers activeOrder 1..N, retires active codes missing from it
	// and forces deleted rows to sort index 0.
	Reindex(ctx context.Context, activeOrder []int64) error
}

type VisitStore interface {
	FindByPeriod(ctx context.Context, branchCode string, p domain.Period) (*domain.Visit, error)
	// ExistsBetween reports a visit for branchCode with visited_at in [from, to).
	ExistsBetween(ctx context.Context, branchCode string, from, to time.Time) (bool, error)
	Get(ctx context.Context, id int64) (*domain.Visit, error)
	Items(ctx context.Context, visitID int64) ([]domain.VisitItemResult, error)
	// Create inserts the header and all items. A second visit for the same
	// branch and quarter fails with ErrDuplicate.
	Create(ctx context.Context, v domain.Visit, items []domain.VisitItemResult) (int64, error)
	UpdateItems(ctx context.Context, visitID int64, items []domain.VisitItemResult) error
	UpdateScore(ctx context.Context, visitID int64, score decimal.Decimal) error
}

type QuizStore interface {
	ListActive(ctx context.Context) ([]domain.Quiz, error)
	Get(ctx context.Context, id int64) (*domain.Quiz, error)
	Create(ctx context.Context, q domain.Quiz) (int64, error)
	Update(ctx context.Context, q domain.Quiz) error
	ReplaceQuestions(ctx context.Context, quizID int64, questions []domain.QuizQuestion) error
	Deactivate(ctx context.Context, id int64) error
	CreateAttempt(ctx context.Context, a domain.QuizAttempt) (int64, error)
	Attempt(ctx context.Context, id int64) (*domain.QuizAttempt, error)
	AttemptsByUser(ctx context.Context, userID string) ([]domain.QuizAttempt, error)
	Statistics(ctx context.Context, quizID int64) (*domain.QuizStatistics, error)
}
