package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTx runs fn inline; stores are in memory so there is nothing to roll back.
type fakeTx struct{ calls int }

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type memChecklist struct {
	items map[int64]domain.ChecklistItem
	// collisions makes InsertWithCode lose that many races; the winning
	// concurrent writer's row is stored under the contested code.
	collisions int
	inserts    int
	reindexed  [][]int64
}

func newMemChecklist(items ...domain.ChecklistItem) *memChecklist {
	m := &memChecklist{items: map[int64]domain.ChecklistItem{}}
	for _, it := range items {
		m.items[it.Code] = it
	}
	return m
}

func (m *memChecklist) ListActive(ctx context.Context) ([]domain.ChecklistItem, error) {
	var out []domain.ChecklistItem
	for _, it := range m.items {
		if it.State == domain.LifecycleActive {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortIndex < out[j].SortIndex })
	return out, nil
}

func (m *memChecklist) Get(ctx context.Context, code int64) (*domain.ChecklistItem, error) {
	it, ok := m.items[code]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &it, nil
}

func (m *memChecklist) States(ctx context.Context) (map[int64]domain.LifecycleState, error) {
	out := make(map[int64]domain.LifecycleState, len(m.items))
	for code, it := range m.items {
		out[code] = it.State
	}
	return out, nil
}

func (m *memChecklist) MaxCode(ctx context.Context) (int64, error) {
	var max int64
	for code := range m.items {
		if code > max {
			max = code
		}
	}
	return max, nil
}

func (m *memChecklist) InsertWithCode(ctx context.Context, item domain.ChecklistItem) (bool, error) {
	if m.collisions > 0 {
		m.collisions--
		m.items[item.Code] = domain.ChecklistItem{Code: item.Code, MasterCategory: "other", Category: "writer", State: domain.LifecycleActive}
		return false, nil
	}
	if _, ok := m.items[item.Code]; ok {
		return false, nil
	}
	m.inserts++
	m.items[item.Code] = item
	return true, nil
}

func (m *memChecklist) Update(ctx context.Context, item domain.ChecklistItem) error {
	cur, ok := m.items[item.Code]
	if !ok {
		return ports.ErrNotFound
	}
	item.CreatedAt, item.CreatedBy = cur.CreatedAt, cur.CreatedBy
	if item.State == domain.LifecycleDeleted {
		item.SortIndex = 0
	}
	m.items[item.Code] = item
	return nil
}

func (m *memChecklist) SoftDelete(ctx context.Context, code int64) error {
	it, ok := m.items[code]
	if !ok {
		return ports.ErrNotFound
	}
	it.State, it.SortIndex = domain.LifecycleDeleted, 0
	m.items[code] = it
	return nil
}

func (m *memChecklist) Reindex(ctx context.Context, activeOrder []int64) error {
	m.reindexed = append(m.reindexed, append([]int64(nil), activeOrder...))
	pos := make(map[int64]int, len(activeOrder))
	for i, code := range activeOrder {
		pos[code] = i + 1
	}
	for code, it := range m.items {
		if p, ok := pos[code]; ok {
			it.State, it.SortIndex = domain.LifecycleActive, p
		} else {
			it.State, it.SortIndex = domain.LifecycleDeleted, 0
		}
		m.items[code] = it
	}
	return nil
}

type memVisits struct {
	visits  map[int64]domain.Visit
	items   map[int64][]domain.VisitItemResult
	nextID  int64
	creates int
}

func newMemVisits() *memVisits {
	return &memVisits{visits: map[int64]domain.Visit{}, items: map[int64][]domain.VisitItemResult{}, nextID: 1}
}

func (m *memVisits) add(v domain.Visit, items ...domain.VisitItemResult) int64 {
	v.ID = m.nextID
	m.nextID++
	m.visits[v.ID] = v
	for i := range items {
		items[i].VisitID = v.ID
	}
	m.items[v.ID] = items
	return v.ID
}

func (m *memVisits) FindByPeriod(ctx context.Context, branch string, p domain.Period) (*domain.Visit, error) {
	for _, v := range m.visits {
		if v.BranchCode == branch && v.Year == p.Year && v.Quarter == p.Quarter {
			return &v, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (m *memVisits) ExistsBetween(ctx context.Context, branch string, from, to time.Time) (bool, error) {
	for _, v := range m.visits {
		if v.BranchCode == branch && !v.VisitedAt.Before(from) && v.VisitedAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memVisits) Get(ctx context.Context, id int64) (*domain.Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &v, nil
}

func (m *memVisits) Items(ctx context.Context, visitID int64) ([]domain.VisitItemResult, error) {
	out := append([]domain.VisitItemResult(nil), m.items[visitID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].SortIndex < out[j].SortIndex })
	return out, nil
}

func (m *memVisits) Create(ctx context.Context, v domain.Visit, items []domain.VisitItemResult) (int64, error) {
	if _, err := m.FindByPeriod(ctx, v.BranchCode, v.Period()); err == nil {
		return 0, ports.ErrDuplicate
	}
	m.creates++
	return m.add(v, append([]domain.VisitItemResult(nil), items...)...), nil
}

func (m *memVisits) UpdateItems(ctx context.Context, visitID int64, items []domain.VisitItemResult) error {
	stored := m.items[visitID]
	for _, it := range items {
		for i := range stored {
			if stored[i].Code == it.Code {
				stored[i] = it
			}
		}
	}
	return nil
}

func (m *memVisits) UpdateScore(ctx context.Context, visitID int64, score decimal.Decimal) error {
	v := m.visits[visitID]
	v.Score = score
	m.visits[visitID] = v
	return nil
}

type memBranches map[string]domain.Branch

func (m memBranches) GetBranch(ctx context.Context, code string) (*domain.Branch, error) {
	b, ok := m[code]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &b, nil
}

type memUsers struct {
	users    map[string]*domain.User
	roles    []string
	perms    []string
	failures int
}

func (m *memUsers) byID(id int64) *domain.User {
	for _, u := range m.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u := m.byID(id)
	if u == nil {
		return nil, ports.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) List(ctx context.Context) ([]domain.User, error) { return nil, nil }

func (m *memUsers) Create(ctx context.Context, p ports.CreateUserParams) (int64, error) {
	if _, ok := m.users[p.Username]; ok {
		return 0, ports.ErrDuplicate
	}
	id := int64(len(m.users) + 1)
	m.users[p.Username] = &domain.User{ID: id, Username: p.Username, PasswordHash: p.PasswordHash, IsActive: p.IsActive}
	return id, nil
}

func (m *memUsers) Update(ctx context.Context, id int64, p ports.UpdateUserParams) error { return nil }

func (m *memUsers) SetPassword(ctx context.Context, id int64, hash string) error {
	u := m.byID(id)
	if u == nil {
		return ports.ErrNotFound
	}
	u.PasswordHash, u.FailedLoginAttempts, u.LockedUntil = hash, 0, nil
	return nil
}

func (m *memUsers) RegisterFailedLogin(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) error {
	u := m.byID(id)
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		u.LockedUntil = &lockUntil
	}
	return nil
}

func (m *memUsers) RegisterSuccessfulLogin(ctx context.Context, id int64, at time.Time) error {
	u := m.byID(id)
	u.FailedLoginAttempts, u.LockedUntil, u.LastLoginAt = 0, nil, &at
	return nil
}

func (m *memUsers) Unlock(ctx context.Context, id int64) error { return nil }

func (m *memUsers) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64, by int64) error {
	return nil
}

func (m *memUsers) ActiveRoleNames(ctx context.Context, userID int64) ([]string, error) {
	return m.roles, nil
}

func (m *memUsers) PermissionNames(ctx context.Context, userID int64) ([]string, error) {
	return m.perms, nil
}

type memAudit struct{ rows []domain.LoginAudit }

func (m *memAudit) RecordLogin(ctx context.Context, a domain.LoginAudit) error {
	m.rows = append(m.rows, a)
	return nil
}

func (m *memAudit) ListLogins(ctx context.Context, f ports.AuditFilter) ([]domain.LoginAudit, error) {
	var out []domain.LoginAudit
	for _, a := range m.rows {
		if f.UserID != nil && (a.UserID == nil || *a.UserID != *f.UserID) {
			continue
		}
		if f.From != nil && a.LoggedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.LoggedAt.Before(*f.To) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type memQuizzes struct {
	quizzes  map[int64]domain.Quiz
	attempts []domain.QuizAttempt
}

func (m *memQuizzes) ListActive(ctx context.Context) ([]domain.Quiz, error) { return nil, nil }

func (m *memQuizzes) Get(ctx context.Context, id int64) (*domain.Quiz, error) {
	q, ok := m.quizzes[id]
	if !ok || !q.IsActive {
		return nil, ports.ErrNotFound
	}
	return &q, nil
}

func (m *memQuizzes) Create(ctx context.Context, q domain.Quiz) (int64, error) {
	q.ID = int64(len(m.quizzes) + 1)
	m.quizzes[q.ID] = q
	return q.ID, nil
}

func (m *memQuizzes) Update(ctx context.Context, q domain.Quiz) error {
	if _, ok := m.quizzes[q.ID]; !ok {
		return ports.ErrNotFound
	}
	m.quizzes[q.ID] = q
	return nil
}

func (m *memQuizzes) ReplaceQuestions(ctx context.Context, quizID int64, qs []domain.QuizQuestion) error {
	q := m.quizzes[quizID]
	q.Questions = nil
	for i, qq := range qs {
		qq.ID = int64(i + 1)
		qq.QuizID = quizID
		q.Questions = append(q.Questions, qq)
	}
	m.quizzes[quizID] = q
	return nil
}

func (m *memQuizzes) Deactivate(ctx context.Context, id int64) error {
	q, ok := m.quizzes[id]
	if !ok {
		return ports.ErrNotFound
	}
	q.IsActive = false
	m.quizzes[id] = q
	return nil
}

func (m *memQuizzes) CreateAttempt(ctx context.Context, a domain.QuizAttempt) (int64, error) {
	a.ID = int64(len(m.attempts) + 1)
	m.attempts = append(m.attempts, a)
	return a.ID, nil
}

func (m *memQuizzes) Attempt(ctx context.Context, id int64) (*domain.QuizAttempt, error) {
	for _, a := range m.attempts {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (m *memQuizzes) AttemptsByUser(ctx context.Context, userID string) ([]domain.QuizAttempt, error) {
	return nil, nil
}

func (m *memQuizzes) Statistics(ctx context.Context, quizID int64) (*domain.QuizStatistics, error) {
	return nil, ports.ErrNotFound
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
