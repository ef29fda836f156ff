package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"pmsf-backend/internal/db"
	"pmsf-backend/internal/domain"
)

// ChecklistRepository stores the evaluation catalog.
type ChecklistRepository struct {
	DB *db.Postgres
}

const checklistColumns = `
	code, master_category, category, activity, weight, default_status,
	COALESCE(responsibility, ''), COALESCE(remarks, ''), state, sort_index, created_at, created_by
`

func (r ChecklistRepository) ListActive(ctx context.Context) ([]domain.ChecklistItem, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, `
		SELECT `+checklistColumns+`
		FROM checklist_items
		WHERE state = 'active'
		ORDER BY sort_index, code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ChecklistItem
	for rows.Next() {
		item, err := scanChecklistItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r ChecklistRepository) Get(ctx context.Context, code int64) (*domain.ChecklistItem, error) {
	row := r.DB.Conn(ctx).QueryRow(ctx, `SELECT `+checklistColumns+` FROM checklist_items WHERE code=$1`, code)
	item, err := scanChecklistItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r ChecklistRepository) States(ctx context.Context) (map[int64]domain.LifecycleState, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, `SELECT code, state FROM checklist_items`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]domain.LifecycleState)
	for rows.Next() {
		var (
			code  int64
			state string
		)
		if err := rows.Scan(&code, &state); err != nil {
			return nil, err
		}
		out[code] = domain.LifecycleState(state)
	}
	return out, rows.Err()
}

func (r ChecklistRepository) MaxCode(ctx context.Context) (int64, error) {
	var max int64
	err := r.DB.Conn(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(code), 0) FROM checklist_items`).Scan(&max)
	return max, err
}

func (r ChecklistRepository) InsertWithCode(ctx context.Context, item domain.ChecklistItem) (bool, error) {
	var code int64
	err := r.DB.Conn(ctx).QueryRow(ctx, `
		INSERT INTO checklist_items
			(code, master_category, category, activity, weight, default_status, responsibility, remarks, state, sort_index, created_at, created_by)
		VALUES ($1,$2,$3,$4,$5,$6, NULLIF($7,''), NULLIF($8,''), $9,$10, now(), $11)
		ON CONFLICT (code) DO NOTHING
		RETURNING code
	`,
		item.Code, item.MasterCategory, item.Category, item.ActivityText, item.Weight, string(item.DefaultStatus),
		item.Responsibility, item.Remarks, string(item.State), item.SortIndex, item.CreatedBy,
	).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r ChecklistRepository) Update(ctx context.Context, item domain.ChecklistItem) error {
	sortIndex := item.SortIndex
	if item.State == domain.LifecycleDeleted {
		sortIndex = 0
	}
	tag, err := r.DB.Conn(ctx).Exec(ctx, `
		UPDATE checklist_items
		SET master_category=$2, category=$3, activity=$4, weight=$5, default_status=$6,
			responsibility=NULLIF($7,''), remarks=NULLIF($8,''), state=$9, sort_index=$10
		WHERE code=$1
	`,
		item.Code, item.MasterCategory, item.Category, item.ActivityText, item.Weight, string(item.DefaultStatus),
		item.Responsibility, item.Remarks, string(item.State), sortIndex,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r ChecklistRepository) SoftDelete(ctx context.Context, code int64) error {
	tag, err := r.DB.Conn(ctx).Exec(ctx, `
		UPDATE checklist_items SET state='deleted', sort_index=0 WHERE code=$1
	`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reindex numbers activeOrder 1..N in slice order. Active rows that are not
// listed are retired, and every deleted row ends at sort index 0.
func (r ChecklistRepository) Reindex(ctx context.Context, activeOrder []int64) error {
	if activeOrder == nil {
		// nil encodes as NULL, which would match nothing in ANY.
		activeOrder = []int64{}
	}
	conn := r.DB.Conn(ctx)
	if _, err := conn.Exec(ctx, `
		UPDATE checklist_items
		SET state='deleted', sort_index=0
		WHERE state='active' AND NOT (code = ANY($1::bigint[]))
	`, activeOrder); err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, `
		UPDATE checklist_items c
		SET sort_index = o.idx, state = 'active'
		FROM unnest($1::bigint[]) WITH ORDINALITY AS o(code, idx)
		WHERE c.code = o.code
	`, activeOrder); err != nil {
		return err
	}
	_, err := conn.Exec(ctx, `
		UPDATE checklist_items SET sort_index=0 WHERE state='deleted' AND sort_index <> 0
	`)
	return err
}

func scanChecklistItem(row pgx.Row) (*domain.ChecklistItem, error) {
	var (
		item          domain.ChecklistItem
		defaultStatus string
		state         string
	)
	if err := row.Scan(
		&item.Code, &item.MasterCategory, &item.Category, &item.ActivityText, &item.Weight, &defaultStatus,
		&item.Responsibility, &item.Remarks, &state, &item.SortIndex, &item.CreatedAt, &item.CreatedBy,
	); err != nil {
		return nil, err
	}
	item.DefaultStatus = domain.ItemStatus(defaultStatus)
	item.State = domain.LifecycleState(state)
	return &item, nil
}
