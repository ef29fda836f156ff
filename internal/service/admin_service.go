package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/ports"
)

// AdminService manages users, roles and permission grants.
type AdminService struct {
	Users      ports.UserStore
	Roles      ports.RoleStore
	Audit      ports.AuditStore
	Tx         ports.UnitOfWork
	Logger     *slog.Logger
	BcryptCost int
}

type UpdateUserInput struct {
	Email    string
	FullName string
	IsActive bool
	// RoleIDs replaces the user's roles when non-nil.
	RoleIDs []int64
}

type RoleInput struct {
	Name        string
	Description string
	IsActive    bool
	// PermissionIDs replaces the role's grants when non-nil.
	PermissionIDs []int64
}

func (s AdminService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.Users.List(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to fetch users", err)
	}
	return users, nil
}

// CreateUser registers an account with roles; it shares the rules of AuthService.Register.
func (s AdminService) CreateUser(ctx context.Context, in RegisterInput, actorID int64) (int64, error) {
	auth := AuthService{Users: s.Users, Tx: s.Tx, Logger: s.Logger}
	auth.Config.BcryptCost = s.BcryptCost
	return auth.Register(ctx, in, actorID)
}

func (s AdminService) UpdateUser(ctx context.Context, id int64, in UpdateUserInput, actorID int64) error {
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.Users.Update(ctx, id, ports.UpdateUserParams{
			Email:    strings.TrimSpace(in.Email),
			FullName: strings.TrimSpace(in.FullName),
			IsActive: in.IsActive,
		}); err != nil {
			return err
		}
		if in.RoleIDs == nil {
			return nil
		}
		return s.Users.ReplaceRoles(ctx, id, in.RoleIDs, actorID)
	})
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal("failed to update user", err)
	}
	return nil
}

// ResetPassword sets a new password and clears any lockout.
func (s AdminService) ResetPassword(ctx context.Context, id int64, password string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLength), nil)
	}
	hash, err := HashPassword(password, s.BcryptCost)
	if err != nil {
		return apperr.Internal("failed to reset password", err)
	}
	if err := s.Users.SetPassword(ctx, id, hash); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal("failed to reset password", err)
	}
	s.Logger.Info("password reset", "user_id", id)
	return nil
}

func (s AdminService) UnlockUser(ctx context.Context, id int64) error {
	if err := s.Users.Unlock(ctx, id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal("failed to unlock user", err)
	}
	return nil
}

func (s AdminService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.Roles.List(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to fetch roles", err)
	}
	return roles, nil
}

func (s AdminService) CreateRole(ctx context.Context, in RoleInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return 0, apperr.Validation("Role name is required", nil)
	}
	var id int64
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.Roles.Create(ctx, in.Name, strings.TrimSpace(in.Description))
		if err != nil {
			return err
		}
		return s.Roles.ReplacePermissions(ctx, id, in.PermissionIDs)
	})
	if err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return 0, apperr.Conflict("Role already exists", nil)
		}
		return 0, apperr.Internal("failed to create role", err)
	}
	return id, nil
}

func (s AdminService) UpdateRole(ctx context.Context, id int64, in RoleInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperr.Validation("Role name is required", nil)
	}
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.Roles.Update(ctx, id, in.Name, strings.TrimSpace(in.Description), in.IsActive); err != nil {
			return err
		}
		if in.PermissionIDs == nil {
			return nil
		}
		return s.Roles.ReplacePermissions(ctx, id, in.PermissionIDs)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrNotFound):
		return apperr.NotFound("Role not found")
	case errors.Is(err, ports.ErrDuplicate):
		return apperr.Conflict("Role already exists", nil)
	default:
		return apperr.Internal("failed to update role", err)
	}
}

func (s AdminService) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	ids, err := s.Roles.PermissionIDs(ctx, roleID)
	if err != nil {
		return nil, apperr.Internal("failed to fetch role permissions", err)
	}
	return ids, nil
}

func (s AdminService) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	perms, err := s.Roles.ListPermissions(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to fetch permissions", err)
	}
	return perms, nil
}

// LoginAudit lists audit rows newest first. limit <= 0 means 100.
func (s AdminService) LoginAudit(ctx context.Context, f ports.AuditFilter) ([]domain.LoginAudit, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, apperr.Validation("from must be before to", nil)
	}
	rows, err := s.Audit.ListLogins(ctx, f)
	if err != nil {
		return nil, apperr.Internal("failed to fetch audit log", err)
	}
	return rows, nil
}
