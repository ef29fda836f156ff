package service

import (
	"context"
	"testing"
	"time"

	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/domain"
)

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func newVisitService(visits *memVisits, now time.Time) (VisitService, *fakeTx) {
	tx := &fakeTx{}
	return VisitService{
		Visits:    visits,
		Branches:  memBranches{"101": {Code: "101", Name: "Main Street", Division: "North", Region: "R1", Area: "A1"}},
		Checklist: newMemChecklist(domain.ChecklistItem{Code: 1, MasterCategory: "Ops", Category: "Cash", State: domain.LifecycleActive, SortIndex: 1}),
		Tx:        tx,
		Logger:    discardLogger(),
		Now:       fixedNow(now),
	}, tx
}

func TestSubmitComputesScore(t *testing.T) {
	visits := newMemVisits()
	now := time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC)
	svc, tx := newVisitService(visits, now)

	res, err := svc.Submit(context.Background(), VisitHeader{BranchCode: "101", ApprovedBy: "Manager", VisitedAt: now}, []ActivityInput{
		{Code: 1, Category: "Cash", ActivityText: "Printer", Status: domain.StatusNo, Responsibility: "IT", Remarks: "fix printer", Weight: dec("40")},
		{Code: 2, Category: "Cash", ActivityText: "Counter", Status: domain.StatusYes, Weight: dec("60")},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.Score.Equal(dec("60")) {
		t.Fatalf("score = %s, want 60", res.Score)
	}
	if tx.calls != 1 {
		t.Fatalf("tx calls = %d, want 1", tx.calls)
	}

	v := visits.visits[res.VisitID]
	if v.Quarter != 1 || v.Year != 2025 || v.Month != 2 {
		t.Fatalf("period = Q%d %d month %d", v.Quarter, v.Year, v.Month)
	}
	if v.BranchName != "Main Street" || v.Division != "North" {
		t.Fatalf("branch details not filled: %+v", v)
	}
	if v.VisitedBy != "Manager" {
		t.Fatalf("VisitedBy = %q, want approver fallback", v.VisitedBy)
	}
	items := visits.items[res.VisitID]
	if !items[0].ResultValue.IsZero() || !items[1].ResultValue.Equal(dec("60")) {
		t.Fatalf("result values = %s, %s", items[0].ResultValue, items[1].ResultValue)
	}
}

func TestSubmittedVisitReadsBackUnchanged(t *testing.T) {
	visits := newMemVisits()
	now := time.Date(2025, 5, 12, 9, 30, 0, 0, time.UTC)
	svc, _ := newVisitService(visits, now)

	in := []ActivityInput{
		{Code: 3, Category: "Cash", ActivityText: "Vault count", Status: domain.StatusYes, Weight: dec("12.5"), SortIndex: 1},
		{Code: 7, Category: "Cash", ActivityText: "Dual control", Status: domain.StatusNo, Responsibility: "Ops", Remarks: "single key holder", Weight: dec("30"), SortIndex: 2},
		{Code: 9, Category: "Branding", ActivityText: "Signage", Status: domain.StatusNA, Weight: dec("20"), SortIndex: 3},
		{Code: 11, Category: "Branding", ActivityText: "Brochures", Status: domain.StatusYes, Remarks: "stocked", Weight: dec("7.25"), SortIndex: 4},
	}
	res, err := svc.Submit(context.Background(), VisitHeader{BranchCode: "101", ApprovedBy: "Manager", VisitedAt: now}, in)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	byPeriod, err := svc.ByPeriod(context.Background(), "101", domain.Period{Year: 2025, Quarter: 2})
	if err != nil {
		t.Fatalf("ByPeriod() error = %v", err)
	}
	byID, err := svc.Get(context.Background(), res.VisitID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	for _, d := range []*VisitDetail{byPeriod, byID} {
		if d.Visit.ID != res.VisitID {
			t.Fatalf("visit id = %d, want %d", d.Visit.ID, res.VisitID)
		}
		if len(d.Items) != len(in) {
			t.Fatalf("items = %d, want %d", len(d.Items), len(in))
		}
		for i, it := range d.Items {
			want := in[i]
			if it.Code != want.Code || it.Status != want.Status || it.Responsibility != want.Responsibility || it.Remarks != want.Remarks {
				t.Fatalf("item %d = (%d, %s, %q, %q), want (%d, %s, %q, %q)", i,
					it.Code, it.Status, it.Responsibility, it.Remarks,
					want.Code, want.Status, want.Responsibility, want.Remarks)
			}
			wantValue := dec("0")
			if want.Status == domain.StatusYes {
				wantValue = want.Weight
			}
			if !it.ResultValue.Equal(wantValue) {
				t.Fatalf("item %d result value = %s, want %s", it.Code, it.ResultValue, wantValue)
			}
		}

		recomputed := VisitScore(d.Items)
		if diff := recomputed.Sub(d.Visit.Score).Abs(); diff.GreaterThan(dec("0.01")) {
			t.Fatalf("recomputed score %s differs from stored %s", recomputed, d.Visit.Score)
		}
	}
	if !byPeriod.Visit.Score.Equal(res.Score) {
		t.Fatalf("stored score = %s, submit returned %s", byPeriod.Visit.Score, res.Score)
	}
}

func TestSubmitAllNAScoresZero(t *testing.T) {
	visits := newMemVisits()
	now := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	svc, _ := newVisitService(visits, now)

	res, err := svc.Submit(context.Background(), VisitHeader{BranchCode: "101", ApprovedBy: "M"}, []ActivityInput{
		{Code: 1, Weight: dec("10")},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.Score.IsZero() {
		t.Fatalf("score = %s, want 0", res.Score)
	}
}

func TestSubmitSameDayConflict(t *testing.T) {
	visits := newMemVisits()
	now := time.Date(2025, 2, 15, 16, 0, 0, 0, time.UTC)
	visits.add(domain.Visit{BranchCode: "101", Year: 2025, Quarter: 1, Month: 2, VisitedAt: now.Add(-4 * time.Hour)})
	svc, _ := newVisitService(visits, now)

	_, err := svc.Submit(context.Background(), VisitHeader{BranchCode: "101", ApprovedBy: "M", VisitedAt: now}, []ActivityInput{
		{Code: 1, Status: domain.StatusYes, Weight: dec("5")},
	})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
	if visits.creates != 0 {
		t.Fatalf("creates = %d, want 0", visits.creates)
	}
}

func TestSubmitQuarterConflictCarriesDetails(t *testing.T) {
	visits := newMemVisits()
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	id := visits.add(domain.Visit{BranchCode: "101", Year: 2025, Quarter: 1, Month: 2, VisitedAt: time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)})
	svc, _ := newVisitService(visits, now)

	_, err := svc.Submit(context.Background(), VisitHeader{BranchCode: "101", ApprovedBy: "M", VisitedAt: now}, []ActivityInput{
		{Code: 1, Status: domain.StatusYes, Weight: dec("5")},
	})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
	d, ok := e.Details.(ConflictDetails)
	if !ok {
		t.Fatalf("details = %#v", e.Details)
	}
	if d.VisitID != id || !d.CanEdit {
		t.Fatalf("details = %+v, want editable visit %d", d, id)
	}
}

func TestSubmitValidationWritesNothing(t *testing.T) {
	visits := newMemVisits()
	svc, tx := newVisitService(visits, time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC))

	_, err := svc.Submit(context.Background(), VisitHeader{BranchCode: "101", ApprovedBy: "M"}, []ActivityInput{
		{Code: 1, Category: "Cash", ActivityText: "Printer", Status: domain.StatusNo, Weight: dec("40")},
		{Code: 2, Status: domain.StatusYes, Responsibility: "IT", Weight: dec("60")},
		{Code: 3, Status: "Maybe", Weight: dec("1")},
	})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	msgs, _ := e.Details.([]string)
	if len(msgs) != 4 {
		t.Fatalf("messages = %v, want 4", msgs)
	}
	if msgs[0] != `Cash - Printer: Responsibility is required when Status is "No"` {
		t.Fatalf("first message = %q", msgs[0])
	}
	if visits.creates != 0 || tx.calls != 0 {
		t.Fatalf("creates = %d, tx calls = %d; want none", visits.creates, tx.calls)
	}
}

func TestSubmitUnknownBranchNeedsDetails(t *testing.T) {
	svc, _ := newVisitService(newMemVisits(), time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC))
	_, err := svc.Submit(context.Background(), VisitHeader{BranchCode: "999", ApprovedBy: "M"}, []ActivityInput{
		{Code: 1, Status: domain.StatusYes, Weight: dec("5")},
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestEvaluateEditWindow(t *testing.T) {
	tests := []struct {
		name    string
		visit   *domain.Visit
		today   time.Time
		state   EditState
		canEdit bool
	}{
		{"no visit", nil, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), EditStateNoVisit, false},
		{"current month", &domain.Visit{Year: 2025, Month: 2}, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), EditStateEditable, true},
		{"previous month on the 7th", &domain.Visit{Year: 2025, Month: 1}, time.Date(2025, 2, 7, 23, 0, 0, 0, time.UTC), EditStateEditable, true},
		{"previous month on the 10th", &domain.Visit{Year: 2025, Month: 2}, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), EditStateLocked, false},
		{"december seen in january", &domain.Visit{Year: 2024, Month: 12}, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), EditStateLocked, false},
		{"future month", &domain.Visit{Year: 2025, Month: 3}, time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC), EditStateEditable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := EvaluateEditWindow(tt.visit, tt.today)
			if d.State != tt.state || d.CanEdit != tt.canEdit {
				t.Fatalf("got %s/%v, want %s/%v", d.State, d.CanEdit, tt.state, tt.canEdit)
			}
			if tt.visit == nil && !d.VisitAllowed {
				t.Fatalf("new visit should be allowed")
			}
		})
	}
}

func TestCheckVisitReturnsChecklistWhenEmpty(t *testing.T) {
	svc, _ := newVisitService(newMemVisits(), time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC))
	out, err := svc.CheckVisit(context.Background(), "101", domain.Period{Year: 2025, Quarter: 1})
	if err != nil {
		t.Fatalf("CheckVisit() error = %v", err)
	}
	if out.Decision.State != EditStateNoVisit || len(out.Checklist) != 1 {
		t.Fatalf("got %+v", out)
	}
}

func TestUpdateLockedVisit(t *testing.T) {
	visits := newMemVisits()
	id := visits.add(domain.Visit{BranchCode: "101", Year: 2025, Quarter: 1, Month: 2},
		domain.VisitItemResult{Code: 1, Weight: dec("10"), Status: domain.StatusYes})
	svc, tx := newVisitService(visits, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))

	_, err := svc.Update(context.Background(), id, []ActivityInput{{Code: 1, Status: domain.StatusNA}})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
	if tx.calls != 0 {
		t.Fatalf("locked update must not write")
	}
}

func TestUpdateRecomputesScoreFromStoredWeights(t *testing.T) {
	visits := newMemVisits()
	id := visits.add(domain.Visit{BranchCode: "101", Year: 2025, Quarter: 1, Month: 3, Score: dec("100")},
		domain.VisitItemResult{Code: 1, Weight: dec("25"), Status: domain.StatusYes, ResultValue: dec("25"), SortIndex: 1},
		domain.VisitItemResult{Code: 2, Weight: dec("75"), Status: domain.StatusYes, ResultValue: dec("75"), SortIndex: 2},
	)
	svc, _ := newVisitService(visits, time.Date(2025, 3, 20, 8, 0, 0, 0, time.UTC))

	// The client-supplied weight is ignored; the snapshot weight is used.
	res, err := svc.Update(context.Background(), id, []ActivityInput{
		{Code: 2, Weight: dec("1"), Status: domain.StatusNo, Responsibility: "Ops", Remarks: "dirty"},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !res.Score.Equal(dec("25")) {
		t.Fatalf("score = %s, want 25", res.Score)
	}
	if got := visits.visits[id].Score; !got.Equal(dec("25")) {
		t.Fatalf("stored score = %s", got)
	}
	if it := visits.items[id][1]; !it.ResultValue.IsZero() || it.Remarks != "dirty" {
		t.Fatalf("item not updated: %+v", it)
	}
}

func TestUpdateUnknownCode(t *testing.T) {
	visits := newMemVisits()
	id := visits.add(domain.Visit{BranchCode: "101", Year: 2025, Quarter: 1, Month: 3},
		domain.VisitItemResult{Code: 1, Weight: dec("25"), Status: domain.StatusYes})
	svc, _ := newVisitService(visits, time.Date(2025, 3, 20, 8, 0, 0, 0, time.UTC))

	_, err := svc.Update(context.Background(), id, []ActivityInput{{Code: 9, Status: domain.StatusYes}})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestPreviousQuarterWrapsYear(t *testing.T) {
	visits := newMemVisits()
	visits.add(domain.Visit{BranchCode: "101", Year: 2024, Quarter: 4, Month: 11},
		domain.VisitItemResult{Code: 1, Status: domain.StatusYes, SortIndex: 1},
		domain.VisitItemResult{Code: 2, Status: domain.StatusNo, SortIndex: 2},
		domain.VisitItemResult{Code: 3, Status: domain.StatusNo, SortIndex: 3},
	)
	svc, _ := newVisitService(visits, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	cmp, err := svc.PreviousQuarter(context.Background(), "101", domain.Period{Year: 2025, Quarter: 1})
	if err != nil {
		t.Fatalf("PreviousQuarter() error = %v", err)
	}
	if cmp.Period != (domain.Period{Year: 2024, Quarter: 4}) || cmp.Visit == nil {
		t.Fatalf("got period %v visit %v", cmp.Period, cmp.Visit)
	}
	if len(cmp.Items) != 3 || len(cmp.Flagged) != 2 || cmp.Flagged[0] != 2 {
		t.Fatalf("items = %d flagged = %v", len(cmp.Items), cmp.Flagged)
	}
}

func TestPreviousQuarterAbsent(t *testing.T) {
	svc, _ := newVisitService(newMemVisits(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	cmp, err := svc.PreviousQuarter(context.Background(), "101", domain.Period{Year: 2025, Quarter: 3})
	if err != nil {
		t.Fatalf("PreviousQuarter() error = %v", err)
	}
	if cmp.Visit != nil || cmp.Period.Quarter != 2 {
		t.Fatalf("got %+v", cmp)
	}
}
