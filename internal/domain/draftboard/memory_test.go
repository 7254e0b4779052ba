package draftboard

import (
	"context"
	"sort"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/tasks"
)

type memOffspring struct {
	TenantID string
	PlanID   string
	Name     string
	Sex      string
	Status   string
	BuyerID  string
}

type poolRow struct {
	OffspringID string
	PickID      string
}

type memState struct {
	boards    map[string]Board
	picks     map[string][]Pick
	pool      map[string][]poolRow
	offspring map[string]memOffspring
	tasks     []tasks.Task
}

func (s memState) clone() memState {
	out := memState{
		boards:    make(map[string]Board, len(s.boards)),
		picks:     make(map[string][]Pick, len(s.picks)),
		pool:      make(map[string][]poolRow, len(s.pool)),
		offspring: make(map[string]memOffspring, len(s.offspring)),
		tasks:     append([]tasks.Task(nil), s.tasks...),
	}
	for k, v := range s.boards {
		out.boards[k] = v
	}
	for k, v := range s.picks {
		out.picks[k] = append([]Pick(nil), v...)
	}
	for k, v := range s.pool {
		out.pool[k] = append([]poolRow(nil), v...)
	}
	for k, v := range s.offspring {
		out.offspring[k] = v
	}
	return out
}

// memoryRepo keeps board state in maps. WithTx snapshots the state and
// restores it when fn fails, so rollbacks are observable in tests.
type memoryRepo struct {
	state    memState
	plans    map[string]bool
	contacts map[string]bool
	order    []string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: memState{
			boards:    map[string]Board{},
			picks:     map[string][]Pick{},
			pool:      map[string][]poolRow{},
			offspring: map[string]memOffspring{},
		},
		plans:    map[string]bool{},
		contacts: map[string]bool{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx, m); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memoryRepo) Create(_ context.Context, b *Board) error {
	m.state.boards[b.ID] = *b
	m.order = append(m.order, b.ID)
	return nil
}

func (m *memoryRepo) Get(_ context.Context, tenantID, id string) (*Board, error) {
	b, ok := m.state.boards[id]
	if !ok || b.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	return &b, nil
}

func (m *memoryRepo) Lock(ctx context.Context, tenantID, id string) (*Board, error) {
	return m.Get(ctx, tenantID, id)
}

func (m *memoryRepo) Update(_ context.Context, b *Board) error {
	if _, ok := m.state.boards[b.ID]; !ok {
		return errs.ErrNotFound
	}
	m.state.boards[b.ID] = *b
	return nil
}

func (m *memoryRepo) List(_ context.Context, tenantID string, _ Filters) (ListResult, error) {
	out := ListResult{Items: []Board{}}
	for _, id := range m.order {
		if b := m.state.boards[id]; b.TenantID == tenantID {
			out.Items = append(out.Items, b)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListPicks(_ context.Context, boardID string) ([]Pick, error) {
	picks := append([]Pick(nil), m.state.picks[boardID]...)
	sort.Slice(picks, func(i, j int) bool { return picks[i].Position < picks[j].Position })
	return picks, nil
}

func (m *memoryRepo) ReplacePicks(_ context.Context, boardID string, picks []Pick) error {
	m.state.picks[boardID] = append([]Pick(nil), picks...)
	return nil
}

func (m *memoryRepo) UpdatePick(_ context.Context, p *Pick) error {
	picks := m.state.picks[p.BoardID]
	for i := range picks {
		if picks[i].ID == p.ID {
			picks[i] = *p
			return nil
		}
	}
	return errs.ErrNotFound
}

func (m *memoryRepo) PlanExists(_ context.Context, _ string, planID string) (bool, error) {
	return m.plans[planID], nil
}

func (m *memoryRepo) MissingContacts(_ context.Context, _ string, ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		if !m.contacts[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *memoryRepo) AvailableOffspring(_ context.Context, tenantID, planID string) ([]string, error) {
	var out []string
	for id, o := range m.state.offspring {
		if o.TenantID == tenantID && o.PlanID == planID && o.Status == "available" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryRepo) SnapshotPool(_ context.Context, boardID string, offspringIDs []string) error {
	rows := make([]poolRow, 0, len(offspringIDs))
	for _, id := range offspringIDs {
		rows = append(rows, poolRow{OffspringID: id})
	}
	m.state.pool[boardID] = rows
	return nil
}

func (m *memoryRepo) Pool(_ context.Context, boardID string) ([]PoolEntry, error) {
	out := []PoolEntry{}
	for _, row := range m.state.pool[boardID] {
		o := m.state.offspring[row.OffspringID]
		out = append(out, PoolEntry{
			OffspringID:     row.OffspringID,
			Name:            o.Name,
			Sex:             o.Sex,
			PlacementStatus: o.Status,
			PickID:          row.PickID,
		})
	}
	return out, nil
}

func (m *memoryRepo) ClaimOffspring(_ context.Context, boardID, offspringID, pickID string) error {
	rows := m.state.pool[boardID]
	for i := range rows {
		if rows[i].OffspringID == offspringID {
			if rows[i].PickID != "" {
				return ErrAlreadyClaimed
			}
			rows[i].PickID = pickID
			return nil
		}
	}
	return ErrNotInPool
}

func (m *memoryRepo) ReserveOffspring(_ context.Context, tenantID, offspringID, buyerID string, _ time.Time) error {
	o, ok := m.state.offspring[offspringID]
	if !ok || o.TenantID != tenantID || o.Status != "available" {
		return ErrUnavailable
	}
	o.Status = "reserved"
	o.BuyerID = buyerID
	m.state.offspring[offspringID] = o
	return nil
}

func (m *memoryRepo) CreateTask(_ context.Context, t *tasks.Task) error {
	m.state.tasks = append(m.state.tasks, *t)
	return nil
}

func (m *memoryRepo) OverdueOnClock(_ context.Context, now time.Time, limit int) ([]PickRef, error) {
	var out []PickRef
	for _, id := range m.order {
		b := m.state.boards[id]
		if b.Status != BoardOpen {
			continue
		}
		for _, p := range m.state.picks[id] {
			if p.Status == PickOnClock && p.DeadlineAt != nil && !p.DeadlineAt.After(now) {
				out = append(out, PickRef{TenantID: b.TenantID, BoardID: b.ID, PickID: p.ID})
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// failingRepo wraps memoryRepo and fails CreateTask to exercise rollback.
type failingRepo struct {
	*memoryRepo
}

func (f failingRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return f.memoryRepo.WithTx(ctx, func(ctx context.Context, _ Repository) error {
		return fn(ctx, f)
	})
}

func (failingRepo) CreateTask(context.Context, *tasks.Task) error {
	return errs.ErrConflict
}

type scheduled struct {
	BoardID string
	PickID  string
	At      time.Time
}

type recordingScheduler struct {
	calls []scheduled
	err   error
}

func (r *recordingScheduler) ScheduleTimeout(_ context.Context, _ string, boardID, pickID string, at time.Time) error {
	r.calls = append(r.calls, scheduled{BoardID: boardID, PickID: pickID, At: at})
	return r.err
}

type recordingNotifier struct {
	events  []Event
	onClock []Pick
}

func (r *recordingNotifier) BoardEvent(_ context.Context, _ string, ev Event) {
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) PickOnClock(_ context.Context, _ string, _ Board, pick Pick) {
	r.onClock = append(r.onClock, pick)
}

func (r *recordingNotifier) types() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
