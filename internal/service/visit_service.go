package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/metrics"
	"pmsf-backend/internal/ports"
)

// VisitService runs the quarterly visit lifecycle.
type VisitService struct {
	Visits    ports.VisitStore
	Branches  ports.BranchStore
	Checklist ports.ChecklistStore
	Tx        ports.UnitOfWork
	Logger    *slog.Logger
	Now       func() time.Time
}

// VisitHeader is the form header of a new visit.
type VisitHeader struct {
	BranchCode   string
	BranchName   string
	Division     string
	Region       string
	Area         string
	VisitedAt    time.Time
	ApprovedBy   string
	VisitOfficer string
}

// ActivityInput is the evaluator's answer for one checklist item.
type ActivityInput struct {
	Code           int64
	MasterCategory string
	Category       string
	ActivityText   string
	Weight         decimal.Decimal
	Status         domain.ItemStatus
	Responsibility string
	Remarks        string
	ImageLinks     [3]string
	VideoLink      string
	SortIndex      int
}

type VisitCheck struct {
	Decision  EditDecision
	Checklist []domain.ChecklistItem
}

type VisitDetail struct {
	Visit domain.Visit
	Items []domain.VisitItemResult
}

type SubmitResult struct {
	VisitID int64
	Score   decimal.Decimal
	Items   int
}

type UpdateResult struct {
	VisitID int64
	Score   decimal.Decimal
	Updated int
}

// ConflictDetails accompanies a conflict when a visit already exists for
// the requested quarter.
type ConflictDetails struct {
	VisitID   int64     `json:"visitcode"`
	CanEdit   bool      `json:"canEdit"`
	State     EditState `json:"state"`
	Reason    string    `json:"reason"`
	VisitedAt time.Time `json:"visitDateTime"`
}

func (s VisitService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CheckVisit applies the edit-window policy to a branch and quarter. When no
// visit exists the active checklist is returned for a fresh entry.
func (s VisitService) CheckVisit(ctx context.Context, branchCode string, period domain.Period) (*VisitCheck, error) {
	branchCode = strings.ToUpper(strings.TrimSpace(branchCode))
	if branchCode == "" {
		return nil, apperr.Validation("Branch code is required", nil)
	}
	if !period.Valid() {
		return nil, apperr.Validation("Visit date details (month, quarter, year) are required", nil)
	}

	existing, err := s.findByPeriod(ctx, branchCode, period)
	if err != nil {
		return nil, apperr.Internal("failed to process request", err)
	}
	out := &VisitCheck{Decision: EvaluateEditWindow(existing, s.now())}
	if existing == nil {
		items, err := s.Checklist.ListActive(ctx)
		if err != nil {
			return nil, apperr.Internal("failed to process request", err)
		}
		out.Checklist = items
	}
	return out, nil
}

// Submit validates and stores a new visit with all of its item results in
// one transaction.
func (s VisitService) Submit(ctx context.Context, h VisitHeader, activities []ActivityInput) (*SubmitResult, error) {
	h.BranchCode = strings.ToUpper(strings.TrimSpace(h.BranchCode))
	h.ApprovedBy = strings.TrimSpace(h.ApprovedBy)
	if h.BranchCode == "" || h.ApprovedBy == "" {
		return nil, apperr.Validation("Branch code and approved by are required", nil)
	}
	if len(activities) == 0 {
		return nil, apperr.Validation("Invalid request data", []string{"at least one activity is required"})
	}

	items := make([]domain.VisitItemResult, len(activities))
	for i, a := range activities {
		items[i] = toVisitItem(a)
	}
	if msgs := validateVisitItems(items); len(msgs) > 0 {
		return nil, apperr.Validation("Validation failed", msgs)
	}

	now := s.now()
	visitedAt := h.VisitedAt
	if visitedAt.IsZero() {
		visitedAt = now
	}
	visitedAt = visitedAt.In(now.Location())
	period := domain.PeriodOf(visitedAt)

	if err := s.fillBranch(ctx, &h); err != nil {
		return nil, err
	}

	dayStart := time.Date(visitedAt.Year(), visitedAt.Month(), visitedAt.Day(), 0, 0, 0, 0, visitedAt.Location())
	sameDay, err := s.Visits.ExistsBetween(ctx, h.BranchCode, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, apperr.Internal("failed to submit form", err)
	}
	if sameDay {
		return nil, apperr.Conflict("A visit for this branch and date already exists. Please use edit instead of submitting again.", nil)
	}

	existing, err := s.findByPeriod(ctx, h.BranchCode, period)
	if err != nil {
		return nil, apperr.Internal("failed to submit form", err)
	}
	if existing != nil {
		return nil, periodConflict(existing, EvaluateEditWindow(existing, now))
	}

	visitedBy := strings.TrimSpace(h.VisitOfficer)
	if visitedBy == "" {
		visitedBy = h.ApprovedBy
	}
	for i := range items {
		items[i].CreatedBy = visitedBy
	}
	score := VisitScore(items)
	visit := domain.Visit{
		BranchCode: h.BranchCode,
		BranchName: h.BranchName,
		Division:   h.Division,
		Region:     h.Region,
		Area:       h.Area,
		Month:      int(visitedAt.Month()),
		Quarter:    period.Quarter,
		Year:       period.Year,
		VisitedAt:  visitedAt,
		VisitedBy:  visitedBy,
		ApprovedBy: h.ApprovedBy,
		CreatedBy:  visitedBy,
		Score:      score,
	}

	var id int64
	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.Visits.Create(ctx, visit, items)
		return err
	})
	if err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			// Lost a race with a concurrent submission for the same quarter.
			return nil, apperr.Conflict(fmt.Sprintf("An entry for branch %s already exists for %s.", h.BranchCode, period), nil)
		}
		return nil, apperr.Internal("failed to submit form", err)
	}

	metrics.VisitsSubmitted.Inc()
	s.Logger.Info("visit submitted", "visit_id", id, "branch", h.BranchCode, "period", period.String(), "items", len(items), "score", score.String())
	return &SubmitResult{VisitID: id, Score: score, Items: len(items)}, nil
}

// Update edits the item results of a stored visit while the edit window is
// open, then recomputes the stored score from the snapshotted weights.
func (s VisitService) Update(ctx context.Context, visitID int64, activities []ActivityInput) (*UpdateResult, error) {
	if visitID <= 0 || len(activities) == 0 {
		return nil, apperr.Validation("Invalid request data", nil)
	}

	visit, err := s.Visits.Get(ctx, visitID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, apperr.NotFound("Visit not found")
		}
		return nil, apperr.Internal("failed to update form", err)
	}
	decision := EvaluateEditWindow(visit, s.now())
	if !decision.CanEdit {
		return nil, apperr.Conflict(decision.Message, conflictDetails(visit, decision))
	}

	stored, err := s.Visits.Items(ctx, visitID)
	if err != nil {
		return nil, apperr.Internal("failed to update form", err)
	}
	byCode := make(map[int64]int, len(stored))
	for i, it := range stored {
		byCode[it.Code] = i
	}

	var unknown []string
	changed := make([]domain.VisitItemResult, 0, len(activities))
	for _, a := range activities {
		idx, ok := byCode[a.Code]
		if !ok {
			unknown = append(unknown, fmt.Sprintf("Item %d is not part of visit %d", a.Code, visitID))
			continue
		}
		it := stored[idx]
		it.Status = normalizeItemStatus(a.Status)
		it.Responsibility = strings.TrimSpace(a.Responsibility)
		it.Remarks = strings.TrimSpace(a.Remarks)
		it.ImageLinks = a.ImageLinks
		it.VideoLink = strings.TrimSpace(a.VideoLink)
		it.ResultValue = ResultValue(it.Weight, it.Status)
		stored[idx] = it
		changed = append(changed, it)
	}
	if len(unknown) > 0 {
		return nil, apperr.Validation("Invalid request data", unknown)
	}
	if msgs := validateVisitItems(changed); len(msgs) > 0 {
		return nil, apperr.Validation("Validation failed", msgs)
	}

	score := VisitScore(stored)
	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.Visits.UpdateItems(ctx, visitID, changed); err != nil {
			return err
		}
		return s.Visits.UpdateScore(ctx, visitID, score)
	})
	if err != nil {
		return nil, apperr.Internal("failed to update form", err)
	}

	metrics.VisitsUpdated.Inc()
	s.Logger.Info("visit updated", "visit_id", visitID, "items", len(changed), "score", score.String())
	return &UpdateResult{VisitID: visitID, Score: score, Updated: len(changed)}, nil
}

func (s VisitService) Get(ctx context.Context, visitID int64) (*VisitDetail, error) {
	if visitID <= 0 {
		return nil, apperr.Validation("Valid visitcode is required", nil)
	}
	visit, err := s.Visits.Get(ctx, visitID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, apperr.NotFound("Visit not found")
		}
		return nil, apperr.Internal("failed to fetch visit", err)
	}
	return s.detail(ctx, visit)
}

// ByPeriod loads the visit of a branch for one quarter.
func (s VisitService) ByPeriod(ctx context.Context, branchCode string, period domain.Period) (*VisitDetail, error) {
	if strings.TrimSpace(branchCode) == "" || !period.Valid() {
		return nil, apperr.Validation("Branch code, year and quarter are required", nil)
	}
	visit, err := s.findByPeriod(ctx, branchCode, period)
	if err != nil {
		return nil, apperr.Internal("failed to fetch visit", err)
	}
	if visit == nil {
		return nil, apperr.NotFound(fmt.Sprintf("No visit found for branch %s in %s", strings.ToUpper(strings.TrimSpace(branchCode)), period))
	}
	return s.detail(ctx, visit)
}

// QuarterComparison is the previous quarter's visit keyed by item code.
// Visit is nil when the branch was not visited that quarter.
type QuarterComparison struct {
	Period domain.Period
	Visit  *domain.Visit
	Items  map[int64]domain.VisitItemResult
	// Flagged lists codes whose previous status was No, in sort order.
	Flagged []int64
}

// PreviousQuarter loads the visit of the quarter before period. Absence of
// a previous visit is not an error.
func (s VisitService) PreviousQuarter(ctx context.Context, branchCode string, period domain.Period) (*QuarterComparison, error) {
	if strings.TrimSpace(branchCode) == "" || !period.Valid() {
		return nil, apperr.Validation("Branch code, year and quarter are required", nil)
	}
	prev := period.Previous()
	out := &QuarterComparison{Period: prev, Items: map[int64]domain.VisitItemResult{}, Flagged: []int64{}}
	visit, err := s.findByPeriod(ctx, branchCode, prev)
	if err != nil {
		return nil, apperr.Internal("failed to fetch previous quarter entry", err)
	}
	if visit == nil {
		return out, nil
	}
	d, err := s.detail(ctx, visit)
	if err != nil {
		return nil, err
	}
	out.Visit = &d.Visit
	for _, it := range d.Items {
		out.Items[it.Code] = it
		if it.Status == domain.StatusNo {
			out.Flagged = append(out.Flagged, it.Code)
		}
	}
	return out, nil
}

func (s VisitService) detail(ctx context.Context, visit *domain.Visit) (*VisitDetail, error) {
	items, err := s.Visits.Items(ctx, visit.ID)
	if err != nil {
		return nil, apperr.Internal("failed to fetch visit items", err)
	}
	return &VisitDetail{Visit: *visit, Items: items}, nil
}

func (s VisitService) findByPeriod(ctx context.Context, branchCode string, p domain.Period) (*domain.Visit, error) {
	v, err := s.Visits.FindByPeriod(ctx, branchCode, p)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// fillBranch completes missing name and division from the branch registry.
func (s VisitService) fillBranch(ctx context.Context, h *VisitHeader) error {
	h.BranchName = strings.TrimSpace(h.BranchName)
	h.Division = strings.TrimSpace(h.Division)
	h.Region = strings.TrimSpace(h.Region)
	h.Area = strings.TrimSpace(h.Area)
	if h.BranchName == "" || h.Division == "" {
		b, err := s.Branches.GetBranch(ctx, h.BranchCode)
		switch {
		case err == nil:
			h.BranchName = firstNonEmpty(h.BranchName, b.Name)
			h.Division = firstNonEmpty(h.Division, b.Division)
			h.Region = firstNonEmpty(h.Region, b.Region)
			h.Area = firstNonEmpty(h.Area, b.Area)
		case errors.Is(err, ports.ErrNotFound):
		default:
			return apperr.Internal("failed to submit form", err)
		}
	}
	if h.BranchName == "" || h.Division == "" {
		return apperr.Validation("Branch name and division are required for Visits summary", nil)
	}
	return nil
}

func periodConflict(existing *domain.Visit, d EditDecision) error {
	msg := fmt.Sprintf("An entry for branch %s already exists for %s (visit %d on %s). %s",
		existing.BranchCode, existing.Period(), existing.ID, existing.VisitedAt.Format("2006-01-02"), d.Message)
	return apperr.Conflict(msg, conflictDetails(existing, d))
}

func conflictDetails(v *domain.Visit, d EditDecision) ConflictDetails {
	return ConflictDetails{
		VisitID:   v.ID,
		CanEdit:   d.CanEdit,
		State:     d.State,
		Reason:    d.Message,
		VisitedAt: v.VisitedAt,
	}
}

func toVisitItem(a ActivityInput) domain.VisitItemResult {
	status := normalizeItemStatus(a.Status)
	weight := a.Weight.Round(2)
	return domain.VisitItemResult{
		Code:           a.Code,
		MasterCategory: strings.TrimSpace(a.MasterCategory),
		Category:       strings.TrimSpace(a.Category),
		ActivityText:   strings.TrimSpace(a.ActivityText),
		Weight:         weight,
		Status:         status,
		Responsibility: strings.TrimSpace(a.Responsibility),
		Remarks:        strings.TrimSpace(a.Remarks),
		ResultValue:    ResultValue(weight, status),
		ImageLinks:     a.ImageLinks,
		VideoLink:      strings.TrimSpace(a.VideoLink),
		SortIndex:      a.SortIndex,
	}
}

func normalizeItemStatus(s domain.ItemStatus) domain.ItemStatus {
	if strings.TrimSpace(string(s)) == "" {
		return domain.StatusNA
	}
	return domain.ItemStatus(strings.TrimSpace(string(s)))
}

// validateVisitItems checks every item and returns all violations.
func validateVisitItems(items []domain.VisitItemResult) []string {
	var msgs []string
	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		label := it.Category + " - " + it.ActivityText
		if it.Code <= 0 {
			msgs = append(msgs, label+": a valid item code is required")
		} else if seen[it.Code] {
			msgs = append(msgs, fmt.Sprintf("%s: item %d appears more than once", label, it.Code))
		}
		seen[it.Code] = true
		if it.Weight.IsNegative() {
			msgs = append(msgs, label+": weight must not be negative")
		}
		switch it.Status {
		case domain.StatusNo:
			if it.Responsibility == "" {
				msgs = append(msgs, label+`: Responsibility is required when Status is "No"`)
			}
			if it.Remarks == "" {
				msgs = append(msgs, label+`: Remarks is required when Status is "No"`)
			}
		case domain.StatusYes:
			if it.Responsibility != "" {
				msgs = append(msgs, label+`: Responsibility must be empty when Status is "Yes"`)
			}
		case domain.StatusNA:
		default:
			msgs = append(msgs, fmt.Sprintf("%s: invalid status %q", label, it.Status))
		}
	}
	return msgs
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
