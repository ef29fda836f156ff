package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/metrics"
	"pmsf-backend/internal/ports"
)

// maxCodeAttempts bounds optimistic code allocation.
const maxCodeAttempts = 5

var (
	ErrCodeAllocationExhausted = errors.New("code allocation exhausted")

	maxWeight = decimal.RequireFromString("999.99")
)

// ChecklistService maintains the evaluation catalog.
type ChecklistService struct {
	Store  ports.ChecklistStore
	Tx     ports.UnitOfWork
	Logger *slog.Logger
}

// ChecklistInput is one catalog row as sent by the editor. Code <= 0 marks
// a row that has not been stored yet.
type ChecklistInput struct {
	Code           int64
	MasterCategory string
	Category       string
	ActivityText   string
	Weight         decimal.Decimal
	DefaultStatus  domain.ItemStatus
	Responsibility string
	Remarks        string
	State          domain.LifecycleState
	SortIndex      int
}

// RowError reports why one input row was rejected.
type RowError struct {
	Index   int
	Code    int64
	Field   string
	Message string
}

type SyncAction string

const (
	SyncInserted   SyncAction = "inserted"
	SyncUpdated    SyncAction = "updated"
	SyncSuperseded SyncAction = "superseded"
)

// SyncResult maps an input row to the stored row it produced.
type SyncResult struct {
	Index      int
	ClientCode int64
	Code       int64
	Action     SyncAction
	State      domain.LifecycleState
	SortIndex  int
}

func (s ChecklistService) List(ctx context.Context) ([]domain.ChecklistItem, error) {
	items, err := s.Store.ListActive(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to fetch checklist", err)
	}
	return items, nil
}

// NextCodes previews the next count codes after the current maximum.
func (s ChecklistService) NextCodes(ctx context.Context, count int) ([]int64, error) {
	if count < 1 {
		count = 1
	}
	if count > 500 {
		return nil, apperr.Validation("count must be at most 500", nil)
	}
	max, err := s.Store.MaxCode(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to get next codes", err)
	}
	codes := make([]int64, count)
	for i := range codes {
		codes[i] = max + int64(i) + 1
	}
	return codes, nil
}

// Add stores a new item under a freshly allocated code.
func (s ChecklistService) Add(ctx context.Context, in ChecklistInput, actor string) (int64, error) {
	in = normalizeChecklistInput(in)
	if errs := validateChecklistInput(0, in); len(errs) > 0 {
		return 0, apperr.Validation("MasterCat and Category are required", errs)
	}
	code, err := s.allocate(ctx, toChecklistItem(in, actor))
	if err != nil {
		return 0, apperr.Internal("failed to add record", err)
	}
	s.Logger.Info("checklist item added", "code", code, "by", actor)
	return code, nil
}

func (s ChecklistService) Update(ctx context.Context, code int64, in ChecklistInput) error {
	if code <= 0 {
		return apperr.Validation("Valid Code is required", nil)
	}
	in = normalizeChecklistInput(in)
	in.Code = code
	if errs := validateChecklistInput(0, in); len(errs) > 0 {
		return apperr.Validation("MasterCat and Category are required", errs)
	}
	if err := s.Store.Update(ctx, toChecklistItem(in, "")); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.NotFound("Record not found")
		}
		return apperr.Internal("failed to update record", err)
	}
	return nil
}

func (s ChecklistService) Delete(ctx context.Context, code int64) error {
	if code <= 0 {
		return apperr.Validation("Valid Code is required", nil)
	}
	if err := s.Store.SoftDelete(ctx, code); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.NotFound("Record not found")
		}
		return apperr.Internal("failed to delete record", err)
	}
	return nil
}

// BulkUpdate rewrites existing rows with the sort indexes given by the
// caller. Every row must name a stored code; nothing is written unless all
// rows are valid.
func (s ChecklistService) BulkUpdate(ctx context.Context, rows []ChecklistInput) error {
	var errs []RowError
	for i := range rows {
		rows[i] = normalizeChecklistInput(rows[i])
		if rows[i].Code <= 0 {
			errs = append(errs, RowError{Index: i, Code: rows[i].Code, Field: "code", Message: "Valid Code is required"})
		}
		errs = append(errs, validateChecklistInput(i, rows[i])...)
	}
	if len(errs) > 0 {
		return apperr.Validation("Validation failed", errs)
	}

	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		for i, in := range rows {
			if err := s.Store.Update(ctx, toChecklistItem(in, "")); err != nil {
				if errors.Is(err, ports.ErrNotFound) {
					return apperr.Validation("Validation failed", []RowError{{Index: i, Code: in.Code, Field: "code", Message: "Record not found"}})
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return apperr.Internal("failed to update records", err)
	}
	return nil
}

// Sync reconciles the stored catalog with a full client snapshot.
//
// Rows are validated up front and the whole snapshot is rejected with
// per-row errors if any row is invalid. When a code appears more than once
// the last occurrence wins, both for its fields and for its position.
// Existing codes are updated in place; anything else is inserted under a
// newly allocated code. Active rows are then numbered 1..N in input order,
// and stored active rows absent from the snapshot are retired.
func (s ChecklistService) Sync(ctx context.Context, rows []ChecklistInput, actor string) ([]SyncResult, error) {
	if len(rows) == 0 {
		return []SyncResult{}, nil
	}

	var errs []RowError
	for i := range rows {
		rows[i] = normalizeChecklistInput(rows[i])
		errs = append(errs, validateChecklistInput(i, rows[i])...)
	}
	if len(errs) > 0 {
		return nil, apperr.Validation("Validation failed", errs)
	}

	last := make(map[int64]int, len(rows))
	for i, in := range rows {
		if in.Code > 0 {
			last[in.Code] = i
		}
	}

	results := make([]SyncResult, len(rows))
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		stored, err := s.Store.States(ctx)
		if err != nil {
			return err
		}

		activeOrder := make([]int64, 0, len(rows))
		for i, in := range rows {
			res := SyncResult{Index: i, ClientCode: in.Code, State: in.State}
			if in.Code > 0 && last[in.Code] != i {
				res.Action = SyncSuperseded
				res.Code = in.Code
				results[i] = res
				continue
			}

			item := toChecklistItem(in, actor)
			if _, ok := stored[in.Code]; ok && in.Code > 0 {
				if err := s.Store.Update(ctx, item); err != nil {
					return fmt.Errorf("update code %d: %w", in.Code, err)
				}
				res.Action = SyncUpdated
				res.Code = in.Code
			} else {
				code, err := s.allocate(ctx, item)
				if err != nil {
					return fmt.Errorf("insert row %d: %w", i, err)
				}
				res.Action = SyncInserted
				res.Code = code
			}
			if in.State == domain.LifecycleActive {
				activeOrder = append(activeOrder, res.Code)
				res.SortIndex = len(activeOrder)
			}
			results[i] = res
		}
		return s.Store.Reindex(ctx, activeOrder)
	})
	if err != nil {
		return nil, apperr.Internal("failed to sync records", err)
	}

	// Superseded rows report where their winning occurrence ended up.
	for i, res := range results {
		if res.Action == SyncSuperseded {
			winner := results[last[res.ClientCode]]
			results[i].SortIndex = winner.SortIndex
			results[i].State = winner.State
		}
	}

	metrics.ChecklistSyncs.Inc()
	s.Logger.Info("checklist synced", "rows", len(rows), "by", actor)
	return results, nil
}

// allocate inserts item under max(code)+1, retrying when a concurrent
// writer takes the same code first.
func (s ChecklistService) allocate(ctx context.Context, item domain.ChecklistItem) (int64, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		max, err := s.Store.MaxCode(ctx)
		if err != nil {
			return 0, err
		}
		item.Code = max + 1
		ok, err := s.Store.InsertWithCode(ctx, item)
		if err != nil {
			return 0, err
		}
		if ok {
			return item.Code, nil
		}
		s.Logger.Warn("checklist code already taken, retrying", "code", item.Code, "attempt", attempt)
	}
	return 0, ErrCodeAllocationExhausted
}

func normalizeChecklistInput(in ChecklistInput) ChecklistInput {
	in.MasterCategory = strings.TrimSpace(in.MasterCategory)
	in.Category = strings.TrimSpace(in.Category)
	in.ActivityText = strings.TrimSpace(in.ActivityText)
	in.Responsibility = strings.TrimSpace(in.Responsibility)
	in.Remarks = strings.TrimSpace(in.Remarks)
	if strings.TrimSpace(string(in.DefaultStatus)) == "" {
		in.DefaultStatus = domain.StatusNA
	}
	if strings.TrimSpace(string(in.State)) == "" {
		in.State = domain.LifecycleActive
	}
	if in.State == domain.LifecycleDeleted {
		in.SortIndex = 0
	}
	return in
}

func validateChecklistInput(index int, in ChecklistInput) []RowError {
	var errs []RowError
	add := func(field, msg string) {
		errs = append(errs, RowError{Index: index, Code: in.Code, Field: field, Message: msg})
	}
	if in.MasterCategory == "" {
		add("masterCategory", "MasterCat is required")
	}
	if in.Category == "" {
		add("category", "Category is required")
	}
	checkLen := func(field, v string, max int) {
		if utf8.RuneCountInString(v) > max {
			add(field, fmt.Sprintf("must be at most %d characters", max))
		}
	}
	checkLen("masterCategory", in.MasterCategory, 100)
	checkLen("category", in.Category, 100)
	checkLen("activity", in.ActivityText, 150)
	checkLen("responsibility", in.Responsibility, 25)
	checkLen("remarks", in.Remarks, 255)
	if in.Weight.IsNegative() || in.Weight.GreaterThan(maxWeight) {
		add("weight", "must be between 0 and 999.99")
	}
	if !in.DefaultStatus.Valid() {
		add("defaultStatus", "must be Yes, No or NA")
	}
	if !in.State.Valid() {
		add("state", "must be active or deleted")
	}
	return errs
}

func toChecklistItem(in ChecklistInput, actor string) domain.ChecklistItem {
	return domain.ChecklistItem{
		Code:           in.Code,
		MasterCategory: in.MasterCategory,
		Category:       in.Category,
		ActivityText:   in.ActivityText,
		Weight:         in.Weight.Round(2),
		DefaultStatus:  in.DefaultStatus,
		Responsibility: in.Responsibility,
		Remarks:        in.Remarks,
		State:          in.State,
		SortIndex:      in.SortIndex,
		CreatedBy:      actor,
	}
}
