package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"pmsf-backend/internal/db"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/ports"
)

type UserRepository struct {
	DB *db.Postgres
}

const userColumns = `
	u.id, u.username, u.email, u.full_name, u.password_hash, u.is_active,
	u.failed_login_attempts, u.locked_until, u.last_login_at, u.password_changed_at, u.created_at
`

func (r UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.DB.Conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.username=$1`, username)
	return scanUserRow(row)
}

func (r UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.DB.Conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id=$1`, id)
	return scanUserRow(row)
}

// List returns every user with the names of their active roles.
func (r UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, `
		SELECT `+userColumns+`,
			COALESCE(array_agg(ro.name ORDER BY ro.name) FILTER (WHERE ro.id IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles ro ON ro.id = ur.role_id AND ro.is_active
		GROUP BY u.id
		ORDER BY u.username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive,
			&u.FailedLoginAttempts, &u.LockedUntil, &u.LastLoginAt, &u.PasswordChangedAt, &u.CreatedAt,
			&u.Roles,
		); err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r UserRepository) Create(ctx context.Context, p ports.CreateUserParams) (int64, error) {
	var id int64
	err := r.DB.Conn(ctx).QueryRow(ctx, `
		INSERT INTO users (username, email, full_name, password_hash, is_active, password_changed_at)
		VALUES ($1,$2,$3,$4,$5, now())
		RETURNING id
	`, p.Username, p.Email, p.FullName, p.PasswordHash, p.IsActive).Scan(&id)
	if err != nil {
		if IsDuplicate(err) {
			return 0, ports.ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

func (r UserRepository) Update(ctx context.Context, id int64, p ports.UpdateUserParams) error {
	tag, err := r.DB.Conn(ctx).Exec(ctx, `
		UPDATE users SET email=$2, full_name=$3, is_active=$4 WHERE id=$1
	`, id, p.Email, p.FullName, p.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r UserRepository) SetPassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.DB.Conn(ctx).Exec(ctx, `
		UPDATE users
		SET password_hash=$2, password_changed_at=now(), failed_login_attempts=0, locked_until=NULL
		WHERE id=$1
	`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r UserRepository) RegisterFailedLogin(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) error {
	_, err := r.DB.Conn(ctx).Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END
		WHERE id=$1
	`, id, maxAttempts, lockUntil)
	return err
}

func (r UserRepository) RegisterSuccessfulLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.DB.Conn(ctx).Exec(ctx, `
		UPDATE users SET failed_login_attempts=0, locked_until=NULL, last_login_at=$2 WHERE id=$1
	`, id, at)
	return err
}

func (r UserRepository) Unlock(ctx context.Context, id int64) error {
	tag, err := r.DB.Conn(ctx).Exec(ctx, `
		UPDATE users SET failed_login_attempts=0, locked_until=NULL WHERE id=$1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceRoles swaps the full role set of a user. Call inside WithTx.
func (r UserRepository) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64, assignedBy int64) error {
	conn := r.DB.Conn(ctx)
	if _, err := conn.Exec(ctx, `DELETE FROM user_roles WHERE user_id=$1`, userID); err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := conn.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by)
		SELECT $1, rid, NULLIF($3::bigint, 0) FROM unnest($2::bigint[]) AS rid
		ON CONFLICT DO NOTHING
	`, userID, roleIDs, assignedBy)
	return err
}

func (r UserRepository) ActiveRoleNames(ctx context.Context, userID int64) ([]string, error) {
	return r.names(ctx, `
		SELECT ro.name
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id=$1 AND ro.is_active
		ORDER BY ro.name
	`, userID)
}

func (r UserRepository) PermissionNames(ctx context.Context, userID int64) ([]string, error) {
	return r.names(ctx, `
		SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id=$1 AND ro.is_active AND p.is_active
		ORDER BY p.name
	`, userID)
}

func (r UserRepository) names(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanUserRow(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive,
		&u.FailedLoginAttempts, &u.LockedUntil, &u.LastLoginAt, &u.PasswordChangedAt, &u.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = ports.ErrNotFound

// IsDuplicate detects unique constraint violation.
func IsDuplicate(err error) bool {
	return db.IsUniqueViolation(err)
}
