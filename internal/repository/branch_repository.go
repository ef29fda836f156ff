package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"pmsf-backend/internal/db"
	"pmsf-backend/internal/domain"
)

type BranchRepository struct {
	DB *db.Postgres
}

func (r BranchRepository) GetBranch(ctx context.Context, code string) (*domain.Branch, error) {
	var b domain.Branch
	err := r.DB.Conn(ctx).QueryRow(ctx, `
		SELECT code, name, division, region, area FROM branches WHERE code=$1
	`, strings.ToUpper(strings.TrimSpace(code))).Scan(&b.Code, &b.Name, &b.Division, &b.Region, &b.Area)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
