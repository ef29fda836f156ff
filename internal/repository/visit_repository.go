package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"pmsf-backend/internal/db"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/ports"
)

// VisitRepository stores visit headers and their per-item results.
type VisitRepository struct {
	DB *db.Postgres
}

const visitColumns = `
	id, branch_code, branch_name, division, region, area, month, quarter, year,
	visited_at, visited_by, approved_by, created_at, created_by, score
`

func (r VisitRepository) FindByPeriod(ctx context.Context, branchCode string, p domain.Period) (*domain.Visit, error) {
	row := r.DB.Conn(ctx).QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE branch_code=$1 AND quarter=$2 AND year=$3
		ORDER BY visited_at DESC
		LIMIT 1
	`, normalizeBranch(branchCode), p.Quarter, p.Year)
	return scanVisitRow(row)
}

func (r VisitRepository) ExistsBetween(ctx context.Context, branchCode string, from, to time.Time) (bool, error) {
	var ok bool
	err := r.DB.Conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM visits WHERE branch_code=$1 AND visited_at >= $2 AND visited_at < $3
		)
	`, normalizeBranch(branchCode), from, to).Scan(&ok)
	return ok, err
}

func (r VisitRepository) Get(ctx context.Context, id int64) (*domain.Visit, error) {
	row := r.DB.Conn(ctx).QueryRow(ctx, `SELECT `+visitColumns+` FROM visits WHERE id=$1`, id)
	return scanVisitRow(row)
}

func (r VisitRepository) Items(ctx context.Context, visitID int64) ([]domain.VisitItemResult, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, `
		SELECT visit_id, code, master_category, category, activity, weight, status,
			COALESCE(responsibility, ''), COALESCE(remarks, ''), result_value,
			COALESCE(image_link1, ''), COALESCE(image_link2, ''), COALESCE(image_link3, ''), COALESCE(video_link, ''),
			sort_index, created_at, created_by
		FROM visit_items
		WHERE visit_id=$1
		ORDER BY sort_index, code
	`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.VisitItemResult
	for rows.Next() {
		var (
			it     domain.VisitItemResult
			status string
		)
		if err := rows.Scan(
			&it.VisitID, &it.Code, &it.MasterCategory, &it.Category, &it.ActivityText, &it.Weight, &status,
			&it.Responsibility, &it.Remarks, &it.ResultValue,
			&it.ImageLinks[0], &it.ImageLinks[1], &it.ImageLinks[2], &it.VideoLink,
			&it.SortIndex, &it.CreatedAt, &it.CreatedBy,
		); err != nil {
			return nil, err
		}
		it.Status = domain.ItemStatus(status)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Create inserts the visit header, then every item in one batch. Call inside
// WithTx so a failed item rolls back the header.
func (r VisitRepository) Create(ctx context.Context, v domain.Visit, items []domain.VisitItemResult) (int64, error) {
	conn := r.DB.Conn(ctx)
	var id int64
	err := conn.QueryRow(ctx, `
		INSERT INTO visits
			(branch_code, branch_name, division, region, area, month, quarter, year,
			 visited_at, visited_by, approved_by, created_at, created_by, score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now(), $12,$13)
		RETURNING id
	`,
		normalizeBranch(v.BranchCode), v.BranchName, v.Division, v.Region, v.Area, v.Month, v.Quarter, v.Year,
		v.VisitedAt, v.VisitedBy, v.ApprovedBy, v.CreatedBy, v.Score,
	).Scan(&id)
	if err != nil {
		if IsDuplicate(err) {
			return 0, ports.ErrDuplicate
		}
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO visit_items
				(visit_id, code, master_category, category, activity, weight, status, responsibility, remarks,
				 result_value, image_link1, image_link2, image_link3, video_link, sort_index, created_at, created_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7, NULLIF($8,''), NULLIF($9,''), $10,
				NULLIF($11,''), NULLIF($12,''), NULLIF($13,''), NULLIF($14,''), $15, now(), $16)
		`,
			id, it.Code, it.MasterCategory, it.Category, it.ActivityText, it.Weight, string(it.Status),
			it.Responsibility, it.Remarks, it.ResultValue,
			it.ImageLinks[0], it.ImageLinks[1], it.ImageLinks[2], it.VideoLink, it.SortIndex, v.CreatedBy,
		)
	}
	if err := execBatch(ctx, conn, batch); err != nil {
		if IsDuplicate(err) {
			return 0, ports.ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

// UpdateItems rewrites status, notes, result and media for each (visit, code).
// A code that is not part of the visit is reported as ErrNotFound.
func (r VisitRepository) UpdateItems(ctx context.Context, visitID int64, items []domain.VisitItemResult) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		code := it.Code
		batch.Queue(`
			UPDATE visit_items
			SET status=$3, responsibility=NULLIF($4,''), remarks=NULLIF($5,''), result_value=$6,
				image_link1=NULLIF($7,''), image_link2=NULLIF($8,''), image_link3=NULLIF($9,''), video_link=NULLIF($10,'')
			WHERE visit_id=$1 AND code=$2
		`,
			visitID, it.Code, string(it.Status), it.Responsibility, it.Remarks, it.ResultValue,
			it.ImageLinks[0], it.ImageLinks[1], it.ImageLinks[2], it.VideoLink,
		).Exec(func(tag pgconn.CommandTag) error {
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("visit %d item %d: %w", visitID, code, ErrNotFound)
			}
			return nil
		})
	}
	return execBatch(ctx, r.DB.Conn(ctx), batch)
}

func (r VisitRepository) UpdateScore(ctx context.Context, visitID int64, score decimal.Decimal) error {
	tag, err := r.DB.Conn(ctx).Exec(ctx, `UPDATE visits SET score=$2 WHERE id=$1`, visitID, score)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func execBatch(ctx context.Context, conn db.Querier, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	return conn.SendBatch(ctx, batch).Close()
}

func scanVisitRow(row pgx.Row) (*domain.Visit, error) {
	var v domain.Visit
	if err := row.Scan(
		&v.ID, &v.BranchCode, &v.BranchName, &v.Division, &v.Region, &v.Area, &v.Month, &v.Quarter, &v.Year,
		&v.VisitedAt, &v.VisitedBy, &v.ApprovedBy, &v.CreatedAt, &v.CreatedBy, &v.Score,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func normalizeBranch(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
