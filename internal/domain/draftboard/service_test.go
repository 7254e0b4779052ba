package draftboard

import (
	"context"
	"testing"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/tasks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	tenant = "tenant-1"
	planID = "01HYX3KQW7ERTV9XNBM2P8QJP1"
	buyerA = "01HYX3KQW7ERTV9XNBM2P8QJA1"
	buyerB = "01HYX3KQW7ERTV9XNBM2P8QJB1"
	buyerC = "01HYX3KQW7ERTV9XNBM2P8QJC1"
	pup1   = "01HYX3KQW7ERTV9XNBM2P8QJD1"
	pup2   = "01HYX3KQW7ERTV9XNBM2P8QJD2"
	pup3   = "01HYX3KQW7ERTV9XNBM2P8QJD3"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo      *memoryRepo
	scheduler *recordingScheduler
	notifier  *recordingNotifier
	svc       *Service
	clock     time.Time
}

func newFixture(t *testing.T, pups int) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	repo.plans[planID] = true
	for _, id := range []string{buyerA, buyerB, buyerC} {
		repo.contacts[id] = true
	}
	for i, id := range []string{pup1, pup2, pup3}[:pups] {
		repo.state.offspring[id] = memOffspring{TenantID: tenant, PlanID: planID, Name: "Pup", Sex: []string{"male", "female", "male"}[i], Status: "available"}
	}
	f := &fixture{repo: repo, scheduler: &recordingScheduler{}, notifier: &recordingNotifier{}, clock: t0}
	f.svc = NewService(repo, f.scheduler, f.notifier, time.Hour, zerolog.Nop())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// openBoard creates a board with the given buyers and starts it.
func (f *fixture) openBoard(t *testing.T, input CreateInput, buyers ...string) (*Board, []Pick) {
	t.Helper()
	ctx := context.Background()
	input.PlanID = planID
	input.Name = "Summer litter"
	b, err := f.svc.Create(ctx, tenant, input)
	require.NoError(t, err)
	picks, err := f.svc.SetParticipants(ctx, tenant, b.ID, ParticipantsInput{BuyerIDs: buyers})
	require.NoError(t, err)
	b, err = f.svc.Start(ctx, tenant, b.ID)
	require.NoError(t, err)
	return b, picks
}

func (f *fixture) pick(t *testing.T, boardID, pickID string) Pick {
	t.Helper()
	picks, err := f.repo.ListPicks(context.Background(), boardID)
	require.NoError(t, err)
	for _, p := range picks {
		if p.ID == pickID {
			return p
		}
	}
	t.Fatalf("pick %s not found", pickID)
	return Pick{}
}

func TestCreateDefaults(t *testing.T) {
	f := newFixture(t, 1)
	b, err := f.svc.Create(context.Background(), tenant, CreateInput{PlanID: planID, Name: " Litter "})
	require.NoError(t, err)
	require.Equal(t, BoardDraft, b.Status)
	require.Equal(t, int64(3600), b.PickWindowSec)
	require.Equal(t, PolicySkip, b.TimeoutPolicy)
	require.Equal(t, 1, b.MaxDeferrals)
	require.Equal(t, "Litter", b.Name)

	_, err = f.svc.Create(context.Background(), tenant, CreateInput{PlanID: "01HYX3KQW7ERTV9XNBM2P8QJP9", Name: "x"})
	require.ErrorIs(t, err, ErrUnknownPlan)
}

func TestFullDraftCompletesWhenPoolRunsOut(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	b, picks := f.openBoard(t, CreateInput{}, buyerA, buyerB, buyerC)

	require.Equal(t, BoardOpen, b.Status)
	require.Equal(t, picks[0].ID, b.CurrentPickID)
	first := f.pick(t, b.ID, picks[0].ID)
	require.Equal(t, PickOnClock, first.Status)
	require.Equal(t, t0.Add(time.Hour), *first.DeadlineAt)
	require.Equal(t, []scheduled{{BoardID: b.ID, PickID: picks[0].ID, At: t0.Add(time.Hour)}}, f.scheduler.calls)
	require.Len(t, f.notifier.onClock, 1)
	require.Equal(t, buyerA, f.notifier.onClock[0].BuyerID)

	f.advance(10 * time.Minute)
	b, err := f.svc.MakePick(ctx, tenant, b.ID, picks[0].ID, pup2)
	require.NoError(t, err)
	require.Equal(t, picks[1].ID, b.CurrentPickID)
	require.Equal(t, "reserved", f.repo.state.offspring[pup2].Status)
	require.Equal(t, buyerA, f.repo.state.offspring[pup2].BuyerID)
	require.Len(t, f.repo.state.tasks, 1)
	require.Equal(t, tasks.DepositTaskTitle, f.repo.state.tasks[0].Title)
	require.Equal(t, buyerA, f.repo.state.tasks[0].ContactID)
	require.Equal(t, pup2, f.repo.state.tasks[0].OffspringID)

	picked := f.pick(t, b.ID, picks[0].ID)
	require.Equal(t, PickPicked, picked.Status)
	require.Equal(t, pup2, picked.OffspringID)

	b, err = f.svc.MakePick(ctx, tenant, b.ID, picks[1].ID, pup1)
	require.NoError(t, err)
	require.Equal(t, BoardCompleted, b.Status)
	require.Empty(t, b.CurrentPickID)
	require.NotNil(t, b.CompletedAt)
	require.Equal(t, PickVoid, f.pick(t, b.ID, picks[2].ID).Status)

	require.Equal(t, []string{
		EventParticipants, EventStarted, EventPicked, EventPicked, EventCompleted,
	}, f.notifier.types())
	last := f.notifier.events[len(f.notifier.events)-1]
	require.Equal(t, BoardCompleted, last.BoardStatus)
}

func TestMakePickRejections(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	b, picks := f.openBoard(t, CreateInput{}, buyerA, buyerB)

	_, err := f.svc.MakePick(ctx, tenant, b.ID, picks[1].ID, pup1)
	require.ErrorIs(t, err, ErrNotOnClock)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)

	_, err = f.svc.MakePick(ctx, tenant, b.ID, picks[0].ID, "01HYX3KQW7ERTV9XNBM2P8QJD9")
	require.ErrorIs(t, err, ErrNotInPool)

	_, err = f.svc.MakePick(ctx, tenant, b.ID, "missing", pup1)
	require.ErrorIs(t, err, ErrPickNotFound)

	_, err = f.svc.MakePick(ctx, tenant, b.ID, picks[0].ID, pup1)
	require.NoError(t, err)
	_, err = f.svc.MakePick(ctx, tenant, b.ID, picks[1].ID, pup1)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	// Reserved outside the board after it started.
	o := f.repo.state.offspring[pup3]
	o.Status = "reserved"
	f.repo.state.offspring[pup3] = o
	_, err = f.svc.MakePick(ctx, tenant, b.ID, picks[1].ID, pup3)
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, PickOnClock, f.pick(t, b.ID, picks[1].ID).Status)

	_, err = f.svc.MakePick(ctx, "other-tenant", b.ID, picks[1].ID, pup2)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMakePickRollsBackOnFailure(t *testing.T) {
	f := newFixture(t, 2)
	b, picks := f.openBoard(t, CreateInput{}, buyerA, buyerB)
	f.svc.repo = failingRepo{memoryRepo: f.repo}

	_, err := f.svc.MakePick(context.Background(), tenant, b.ID, picks[0].ID, pup1)
	require.Error(t, err)
	require.Equal(t, "available", f.repo.state.offspring[pup1].Status)
	require.Equal(t, PickOnClock, f.pick(t, b.ID, picks[0].ID).Status)
	require.Empty(t, f.repo.state.pool[b.ID][0].PickID)
	require.Len(t, f.scheduler.calls, 1, "nothing is scheduled for a rolled back pick")
}

func TestDeferOrdering(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	b, picks := f.openBoard(t, CreateInput{}, buyerA, buyerB, buyerC)
	a, bb, c := picks[0].ID, picks[1].ID, picks[2].ID

	f.advance(time.Minute)
	b, err := f.svc.Defer(ctx, tenant, b.ID, a)
	require.NoError(t, err)
	require.Equal(t, bb, b.CurrentPickID, "pending picks go before deferred ones")
	deferred := f.pick(t, b.ID, a)
	require.Equal(t, PickDeferred, deferred.Status)
	require.Equal(t, 1, deferred.Deferrals)
	require.Nil(t, deferred.DeadlineAt)

	f.advance(time.Minute)
	b, err = f.svc.Defer(ctx, tenant, b.ID, bb)
	require.NoError(t, err)
	require.Equal(t, c, b.CurrentPickID)

	f.advance(time.Minute)
	b, err = f.svc.Pass(ctx, tenant, b.ID, c)
	require.NoError(t, err)
	require.Equal(t, a, b.CurrentPickID, "the longest-deferred pick returns first")
	require.Equal(t, PickPassed, f.pick(t, b.ID, c).Status)

	_, err = f.svc.Defer(ctx, tenant, b.ID, a)
	require.ErrorIs(t, err, ErrDeferralLimit)

	b, err = f.svc.Pass(ctx, tenant, b.ID, a)
	require.NoError(t, err)
	require.Equal(t, bb, b.CurrentPickID)

	b, err = f.svc.Pass(ctx, tenant, b.ID, bb)
	require.NoError(t, err)
	require.Equal(t, BoardCompleted, b.Status, "nobody left to pick")
}

func TestNextPickTieBreaksByPosition(t *testing.T) {
	at := t0
	picks := []Pick{
		{ID: "3", Position: 3, Status: PickDeferred, DeferredAt: &at},
		{ID: "2", Position: 2, Status: PickDeferred, DeferredAt: &at},
		{ID: "1", Position: 1, Status: PickPicked},
	}
	require.Equal(t, 1, nextPick(picks))
	require.Equal(t, -1, nextPick([]Pick{{Status: PickPassed}, {Status: PickExpired}}))
}

func TestExpireSkipPolicy(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	b, picks := f.openBoard(t, CreateInput{}, buyerA, buyerB)

	ok, err := f.svc.Expire(ctx, tenant, b.ID, picks[0].ID, t0.Add(59*time.Minute))
	require.NoError(t, err)
	require.False(t, ok, "not yet overdue")

	ok, err = f.svc.Expire(ctx, tenant, b.ID, picks[0].ID, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, PickExpired, f.pick(t, b.ID, picks[0].ID).Status)

	next := f.pick(t, b.ID, picks[1].ID)
	require.Equal(t, PickOnClock, next.Status)
	require.Equal(t, t0.Add(2*time.Hour), *next.DeadlineAt, "the next clock starts at expiry time")

	ok, err = f.svc.Expire(ctx, tenant, b.ID, picks[0].ID, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.False(t, ok, "expiring twice is a no-op")
}

func TestExpireDeferPolicy(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	b, picks := f.openBoard(t, CreateInput{TimeoutPolicy: PolicyDefer}, buyerA, buyerB)

	ok, err := f.svc.Expire(ctx, tenant, b.ID, picks[0].ID, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, PickDeferred, f.pick(t, b.ID, picks[0].ID).Status)

	f.clock = t0.Add(time.Hour)
	_, err = f.svc.Pass(ctx, tenant, b.ID, picks[1].ID)
	require.NoError(t, err)

	ok, err = f.svc.Expire(ctx, tenant, b.ID, picks[0].ID, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, PickExpired, f.pick(t, b.ID, picks[0].ID).Status, "no deferrals left")

	view, err := f.svc.Get(ctx, tenant, b.ID)
	require.NoError(t, err)
	require.Equal(t, BoardCompleted, view.Board.Status)
}

func TestPauseResumeKeepsRemainingClock(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	b, picks := f.openBoard(t, CreateInput{}, buyerA)

	f.advance(20 * time.Minute)
	b, err := f.svc.Pause(ctx, tenant, b.ID)
	require.NoError(t, err)
	require.Equal(t, BoardPaused, b.Status)
	require.Equal(t, int64(40*60), *b.RemainingOnPauseSec)
	require.Nil(t, f.pick(t, b.ID, picks[0].ID).DeadlineAt)

	ok, err := f.svc.Expire(ctx, tenant, b.ID, picks[0].ID, t0.Add(5*time.Hour))
	require.NoError(t, err)
	require.False(t, ok, "paused boards never expire")

	_, err = f.svc.MakePick(ctx, tenant, b.ID, picks[0].ID, pup1)
	require.ErrorIs(t, err, ErrBoardNotOpen)

	f.clock = t0.Add(2 * time.Hour)
	b, err = f.svc.Resume(ctx, tenant, b.ID)
	require.NoError(t, err)
	require.Equal(t, BoardOpen, b.Status)
	require.Nil(t, b.RemainingOnPauseSec)
	deadline := t0.Add(2*time.Hour + 40*time.Minute)
	require.Equal(t, deadline, *f.pick(t, b.ID, picks[0].ID).DeadlineAt)
	require.Equal(t, scheduled{BoardID: b.ID, PickID: picks[0].ID, At: deadline}, f.scheduler.calls[len(f.scheduler.calls)-1])
	require.Len(t, f.notifier.onClock, 1, "resuming does not re-notify the buyer")

	_, err = f.svc.Resume(ctx, tenant, b.ID)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestCancelReturnsOnClockPickToPending(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	b, picks := f.openBoard(t, CreateInput{}, buyerA, buyerB)

	b, err := f.svc.Cancel(ctx, tenant, b.ID)
	require.NoError(t, err)
	require.Equal(t, BoardCancelled, b.Status)
	require.Empty(t, b.CurrentPickID)
	p := f.pick(t, b.ID, picks[0].ID)
	require.Equal(t, PickPending, p.Status)
	require.Nil(t, p.DeadlineAt)
	require.Nil(t, p.ClockStartedAt)

	_, err = f.svc.Cancel(ctx, tenant, b.ID)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestSetParticipantsValidation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	b, err := f.svc.Create(ctx, tenant, CreateInput{PlanID: planID, Name: "x"})
	require.NoError(t, err)

	_, err = f.svc.SetParticipants(ctx, tenant, b.ID, ParticipantsInput{BuyerIDs: []string{buyerA, buyerA}})
	list, ok := errs.AsValidation(err)
	require.True(t, ok)
	require.Contains(t, list.Fields(), "buyer_ids")

	_, err = f.svc.SetParticipants(ctx, tenant, b.ID, ParticipantsInput{BuyerIDs: []string{buyerA, "01HYX3KQW7ERTV9XNBM2P8QJX9"}})
	require.ErrorIs(t, err, ErrUnknownBuyer)

	picks, err := f.svc.SetParticipants(ctx, tenant, b.ID, ParticipantsInput{BuyerIDs: []string{buyerB, buyerA}})
	require.NoError(t, err)
	require.Equal(t, buyerB, picks[0].BuyerID)
	require.Equal(t, 1, picks[0].Position)
	require.Equal(t, 2, picks[1].Position)

	picks, err = f.svc.SetParticipants(ctx, tenant, b.ID, ParticipantsInput{BuyerIDs: []string{buyerC}})
	require.NoError(t, err)
	require.Len(t, picks, 1)
	stored, err := f.repo.ListPicks(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1, "participants are replaced, not appended")

	_, err = f.svc.Start(ctx, tenant, b.ID)
	require.NoError(t, err)
	_, err = f.svc.SetParticipants(ctx, tenant, b.ID, ParticipantsInput{BuyerIDs: []string{buyerA}})
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestStartPreconditions(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	b, err := f.svc.Create(ctx, tenant, CreateInput{PlanID: planID, Name: "x"})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, tenant, b.ID)
	list, ok := errs.AsValidation(err)
	require.True(t, ok)
	require.Contains(t, list.Fields(), "participants")

	_, err = f.svc.SetParticipants(ctx, tenant, b.ID, ParticipantsInput{BuyerIDs: []string{buyerA}})
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, tenant, b.ID)
	list, ok = errs.AsValidation(err)
	require.True(t, ok)
	require.Contains(t, list.Fields(), "plan_id")
	require.Equal(t, BoardDraft, f.repo.state.boards[b.ID].Status)
}

func TestZeroWindowHasNoDeadline(t *testing.T) {
	f := newFixture(t, 1)
	window := int64(0)
	b, picks := f.openBoard(t, CreateInput{PickWindowSeconds: &window}, buyerA)

	p := f.pick(t, b.ID, picks[0].ID)
	require.Equal(t, PickOnClock, p.Status)
	require.Nil(t, p.DeadlineAt)
	require.Empty(t, f.scheduler.calls)
	require.Len(t, f.notifier.onClock, 1)
}

func TestSchedulerFailureDoesNotFailTheMutation(t *testing.T) {
	f := newFixture(t, 1)
	f.scheduler.err = errs.ErrConflict
	b, picks := f.openBoard(t, CreateInput{}, buyerA)
	require.Equal(t, picks[0].ID, b.CurrentPickID)
	require.Len(t, f.scheduler.calls, 1)
}

func TestSweepExpiresOverduePicks(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	first, _ := f.openBoard(t, CreateInput{}, buyerA, buyerB)
	f.advance(30 * time.Minute)
	second, _ := f.openBoard(t, CreateInput{}, buyerC)

	f.clock = t0.Add(time.Hour)
	n, err := f.svc.Sweep(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 1, n, "only the first board is overdue")

	view, err := f.svc.Get(ctx, tenant, first.ID)
	require.NoError(t, err)
	require.Equal(t, PickExpired, view.Picks[0].Status)
	require.Equal(t, PickOnClock, view.Picks[1].Status)

	view, err = f.svc.Get(ctx, tenant, second.ID)
	require.NoError(t, err)
	require.Equal(t, PickOnClock, view.Picks[0].Status)
}
