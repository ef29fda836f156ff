package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/ports"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

type stubBranches map[string]domain.Branch

func (s stubBranches) GetBranch(_ context.Context, code string) (*domain.Branch, error) {
	b, ok := s[code]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &b, nil
}

// stubVisits implements the lookups the handlers reach; anything else
// panics through the nil embedded interface.
type stubVisits struct {
	ports.VisitStore
	visits []domain.Visit
	items  map[int64][]domain.VisitItemResult
}

func (s *stubVisits) FindByPeriod(_ context.Context, branch string, p domain.Period) (*domain.Visit, error) {
	for _, v := range s.visits {
		if v.BranchCode == branch && v.Period() == p {
			v := v
			return &v, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (s *stubVisits) ExistsBetween(context.Context, string, time.Time, time.Time) (bool, error) {
	return false, nil
}

func (s *stubVisits) Get(_ context.Context, id int64) (*domain.Visit, error) {
	for _, v := range s.visits {
		if v.ID == id {
			v := v
			return &v, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (s *stubVisits) Items(_ context.Context, id int64) ([]domain.VisitItemResult, error) {
	return s.items[id], nil
}

type stubChecklist struct {
	ports.ChecklistStore
	items []domain.ChecklistItem
}

func (s stubChecklist) ListActive(context.Context) ([]domain.ChecklistItem, error) {
	return s.items, nil
}

type directTx struct{}

func (directTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
