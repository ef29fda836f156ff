package repository

import (
	"context"

	"pmsf-backend/internal/db"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/ports"
)

type AuditRepository struct {
	DB *db.Postgres
}

func (r AuditRepository) RecordLogin(ctx context.Context, a domain.LoginAudit) error {
	_, err := r.DB.Conn(ctx).Exec(ctx, `
		INSERT INTO login_audit_log (user_id, username, status, failure_reason, ip_address, user_agent, logged_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
	`, a.UserID, a.Username, string(a.Status), a.FailureReason, truncate(a.IPAddress, 50), truncate(a.UserAgent, 500))
	return err
}

// ListLogins returns the newest audit rows first.
func (r AuditRepository) ListLogins(ctx context.Context, f ports.AuditFilter) ([]domain.LoginAudit, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.Conn(ctx).Query(ctx, `
		SELECT id, user_id, username, status, failure_reason, ip_address, user_agent, logged_at
		FROM login_audit_log
		WHERE ($2::bigint IS NULL OR user_id = $2)
		  AND ($3::timestamptz IS NULL OR logged_at >= $3)
		  AND ($4::timestamptz IS NULL OR logged_at < $4)
		ORDER BY logged_at DESC, id DESC
		LIMIT $1
	`, limit, f.UserID, f.From, f.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.LoginAudit
	for rows.Next() {
		var (
			a      domain.LoginAudit
			status string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Username, &status, &a.FailureReason, &a.IPAddress, &a.UserAgent, &a.LoggedAt); err != nil {
			return nil, err
		}
		a.Status = domain.LoginStatus(status)
		items = append(items, a)
	}
	return items, rows.Err()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
