package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"pmsf-backend/internal/db"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/ports"
)

type RoleRepository struct {
	DB *db.Postgres
}

func (r RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, `
		SELECT ro.id, ro.name, ro.description, ro.is_active, ro.created_at,
			(SELECT COUNT(*) FROM user_roles ur WHERE ur.role_id = ro.id),
			(SELECT COUNT(*) FROM role_permissions rp WHERE rp.role_id = ro.id)
		FROM roles ro
		ORDER BY ro.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Role
	for rows.Next() {
		var ro domain.Role
		if err := rows.Scan(&ro.ID, &ro.Name, &ro.Description, &ro.IsActive, &ro.CreatedAt, &ro.UserCount, &ro.PermissionCount); err != nil {
			return nil, err
		}
		items = append(items, ro)
	}
	return items, rows.Err()
}

func (r RoleRepository) Create(ctx context.Context, name, description string) (int64, error) {
	var id int64
	err := r.DB.Conn(ctx).QueryRow(ctx, `
		INSERT INTO roles (name, description) VALUES ($1,$2) RETURNING id
	`, name, description).Scan(&id)
	if err != nil {
		if IsDuplicate(err) {
			return 0, ports.ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

func (r RoleRepository) Update(ctx context.Context, id int64, name, description string, isActive bool) error {
	tag, err := r.DB.Conn(ctx).Exec(ctx, `
		UPDATE roles SET name=$2, description=$3, is_active=$4 WHERE id=$1
	`, id, name, description, isActive)
	if err != nil {
		if IsDuplicate(err) {
			return ports.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplacePermissions swaps the full permission set of a role. Call inside WithTx.
func (r RoleRepository) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	conn := r.DB.Conn(ctx)
	if _, err := conn.Exec(ctx, `DELETE FROM role_permissions WHERE role_id=$1`, roleID); err != nil {
		return err
	}
	if len(permissionIDs) == 0 {
		return nil
	}
	_, err := conn.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, pid FROM unnest($2::bigint[]) AS pid
		ON CONFLICT DO NOTHING
	`, roleID, permissionIDs)
	return err
}

func (r RoleRepository) PermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, `
		SELECT rp.permission_id
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id=$1 AND p.is_active
		ORDER BY rp.permission_id
	`, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r RoleRepository) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, `
		SELECT id, name, component_name, description, is_active
		FROM permissions
		ORDER BY component_name, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.ComponentName, &p.Description, &p.IsActive); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r RoleRepository) UserHasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	var ok bool
	err := r.DB.Conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM user_roles ur
			JOIN roles ro ON ro.id = ur.role_id
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ur.user_id=$1 AND p.name=$2 AND ro.is_active AND p.is_active
		)
	`, userID, name).Scan(&ok)
	return ok, err
}
