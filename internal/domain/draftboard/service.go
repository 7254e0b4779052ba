// Package draftboard runs buyer-priority draft picks over a litter.
//
// Buyers take turns in position order. The buyer on the clock may pick an
// unclaimed offspring from the board's pool, pass, or defer their turn until
// later. A clock that runs out is expired by a scheduled job or by the
// periodic sweeper. Every mutation locks the board row for the length of its
// transaction, and scheduling and notifications happen only after commit.
package draftboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/domain/tasks"
	"github.com/BreederHQ/server/internal/telemetry"
	"github.com/BreederHQ/server/internal/validation"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = telemetry.Tracer("domain/draftboard")

// DepositDue is how long a buyer has to complete the deposit task after picking.
const DepositDue = 72 * time.Hour

var ErrNotDraft = errs.New(errs.ErrInvalidTransition, "participants can only change while the board is a draft")

type Service struct {
	repo          Repository
	scheduler     TimeoutScheduler
	notifier      Notifier
	logger        zerolog.Logger
	defaultWindow time.Duration
	now           func() time.Time
}

func NewService(repo Repository, scheduler TimeoutScheduler, notifier Notifier, defaultWindow time.Duration, logger zerolog.Logger) *Service {
	if scheduler == nil {
		scheduler = noopScheduler{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Service{
		repo:          repo,
		scheduler:     scheduler,
		notifier:      notifier,
		logger:        logger.With().Str("component", "draftboard").Logger(),
		defaultWindow: defaultWindow,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*Board, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	planID := ids.Normalize(input.PlanID)
	ok, err := s.repo.PlanExists(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownPlan
	}

	window := int64(s.defaultWindow / time.Second)
	if input.PickWindowSeconds != nil {
		window = *input.PickWindowSeconds
	}
	policy := input.TimeoutPolicy
	if policy == "" {
		policy = PolicySkip
	}
	maxDeferrals := defaultMaxDeferrals
	if input.MaxDeferrals != nil {
		maxDeferrals = *input.MaxDeferrals
	}

	now := s.now()
	b := &Board{
		ID:            ids.New(),
		TenantID:      tenantID,
		PlanID:        planID,
		Name:          strings.TrimSpace(input.Name),
		Status:        BoardDraft,
		PickWindowSec: window,
		TimeoutPolicy: policy,
		MaxDeferrals:  maxDeferrals,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create draft board: %w", err)
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	return s.repo.List(ctx, tenantID, filters)
}

// Get returns the board with its picks in position order and its pool.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*View, error) {
	b, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	picks, err := s.repo.ListPicks(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	pool, err := s.repo.Pool(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &View{Board: *b, Picks: picks, Pool: pool}, nil
}

// SetParticipants replaces the draft order. Buyers are given positions 1..n
// in the order supplied.
func (s *Service) SetParticipants(ctx context.Context, tenantID, boardID string, input ParticipantsInput) ([]Pick, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	buyers := make([]string, 0, len(input.BuyerIDs))
	seen := make(map[string]bool, len(input.BuyerIDs))
	for _, id := range input.BuyerIDs {
		id = ids.Normalize(id)
		if seen[id] {
			return nil, ErrDuplicateBuyer
		}
		seen[id] = true
		buyers = append(buyers, id)
	}

	var picks []Pick
	_, err := s.mutate(ctx, tenantID, boardID, func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error {
		if b.Status != BoardDraft {
			return ErrNotDraft
		}
		missing, err := repo.MissingContacts(ctx, tenantID, buyers)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrUnknownBuyer, strings.Join(missing, ", "))
		}
		picks = make([]Pick, 0, len(buyers))
		for i, buyer := range buyers {
			picks = append(picks, Pick{
				ID:       ids.New(),
				BoardID:  b.ID,
				BuyerID:  buyer,
				Position: i + 1,
				Status:   PickPending,
			})
		}
		if err := repo.ReplacePicks(ctx, b.ID, picks); err != nil {
			return err
		}
		b.UpdatedAt = now
		fx.event(EventParticipants, "", now)
		return repo.Update(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("set participants: %w", err)
	}
	return picks, nil
}

// Start opens a draft board, snapshots the plan's available offspring into
// the pool and puts the first buyer on the clock.
func (s *Service) Start(ctx context.Context, tenantID, boardID string) (*Board, error) {
	b, err := s.mutate(ctx, tenantID, boardID, func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error {
		if b.Status != BoardDraft {
			return errs.Transition("draft board", b.Status, BoardOpen)
		}
		picks, err := repo.ListPicks(ctx, b.ID)
		if err != nil {
			return err
		}
		if len(picks) == 0 {
			return ErrNoParticipants
		}
		available, err := repo.AvailableOffspring(ctx, tenantID, b.PlanID)
		if err != nil {
			return err
		}
		if len(available) == 0 {
			return ErrNoOffspring
		}
		if err := repo.SnapshotPool(ctx, b.ID, available); err != nil {
			return err
		}
		pool, err := repo.Pool(ctx, b.ID)
		if err != nil {
			return err
		}
		started := now
		b.Status = BoardOpen
		b.StartedAt = &started
		fx.event(EventStarted, "", now)
		return advance(ctx, repo, b, picks, pool, now, fx)
	})
	if err != nil {
		return nil, fmt.Errorf("start draft board: %w", err)
	}
	s.logger.Info().Str("board_id", boardID).Str("current_pick_id", b.CurrentPickID).Msg("draft board started")
	return b, nil
}

// MakePick assigns an unclaimed pool offspring to the buyer on the clock,
// reserves it for them and creates their deposit task.
func (s *Service) MakePick(ctx context.Context, tenantID, boardID, pickID, offspringID string) (*Board, error) {
	offspringID = ids.Normalize(offspringID)
	b, err := s.mutate(ctx, tenantID, boardID, func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error {
		picks, p, err := onClockPick(ctx, repo, b, pickID)
		if err != nil {
			return err
		}
		pool, err := repo.Pool(ctx, b.ID)
		if err != nil {
			return err
		}
		j := indexOfEntry(pool, offspringID)
		if j < 0 {
			return ErrNotInPool
		}
		if pool[j].PickID != "" {
			return ErrAlreadyClaimed
		}
		if pool[j].PlacementStatus != "available" {
			return ErrUnavailable
		}
		if err := repo.ReserveOffspring(ctx, tenantID, offspringID, p.BuyerID, now); err != nil {
			return err
		}
		if err := repo.ClaimOffspring(ctx, b.ID, offspringID, p.ID); err != nil {
			return err
		}
		pool[j].PickID = p.ID
		pool[j].PlacementStatus = "reserved"

		resolved := now
		p.Status = PickPicked
		p.OffspringID = offspringID
		p.ResolvedAt = &resolved
		if err := repo.UpdatePick(ctx, p); err != nil {
			return err
		}
		if err := repo.CreateTask(ctx, tasks.NewDepositTask(tenantID, p.BuyerID, offspringID, now, DepositDue)); err != nil {
			return err
		}
		fx.event(EventPicked, p.ID, now)
		return advance(ctx, repo, b, picks, pool, now, fx)
	})
	if err != nil {
		return nil, fmt.Errorf("make pick: %w", err)
	}
	s.logger.Info().Str("board_id", boardID).Str("pick_id", pickID).Str("offspring_id", offspringID).Msg("pick made")
	return b, nil
}

// Defer moves the on-clock pick behind everyone still pending.
func (s *Service) Defer(ctx context.Context, tenantID, boardID, pickID string) (*Board, error) {
	b, err := s.mutate(ctx, tenantID, boardID, func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error {
		picks, p, err := onClockPick(ctx, repo, b, pickID)
		if err != nil {
			return err
		}
		if p.Deferrals >= b.MaxDeferrals {
			return ErrDeferralLimit
		}
		deferPick(p, now)
		if err := repo.UpdatePick(ctx, p); err != nil {
			return err
		}
		fx.event(EventDeferred, p.ID, now)
		return s.advanceFromPool(ctx, repo, b, picks, now, fx)
	})
	if err != nil {
		return nil, fmt.Errorf("defer pick: %w", err)
	}
	return b, nil
}

// Pass gives up the on-clock pick for good.
func (s *Service) Pass(ctx context.Context, tenantID, boardID, pickID string) (*Board, error) {
	b, err := s.mutate(ctx, tenantID, boardID, func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error {
		picks, p, err := onClockPick(ctx, repo, b, pickID)
		if err != nil {
			return err
		}
		resolved := now
		p.Status = PickPassed
		p.ResolvedAt = &resolved
		if err := repo.UpdatePick(ctx, p); err != nil {
			return err
		}
		fx.event(EventPassed, p.ID, now)
		return s.advanceFromPool(ctx, repo, b, picks, now, fx)
	})
	if err != nil {
		return nil, fmt.Errorf("pass pick: %w", err)
	}
	return b, nil
}

// Expire resolves an on-clock pick whose deadline has passed. It is safe to
// call repeatedly and reports whether this call expired the pick. Anything
// other than an open board with that pick overdue is a no-op.
func (s *Service) Expire(ctx context.Context, tenantID, boardID, pickID string, now time.Time) (bool, error) {
	expired := false
	_, err := s.mutateAt(ctx, tenantID, boardID, now, func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error {
		if b.Status != BoardOpen {
			return nil
		}
		picks, err := repo.ListPicks(ctx, b.ID)
		if err != nil {
			return err
		}
		i := indexOfPick(picks, pickID)
		if i < 0 {
			return nil
		}
		p := &picks[i]
		if p.Status != PickOnClock || p.DeadlineAt == nil || p.DeadlineAt.After(now) {
			return nil
		}
		if b.TimeoutPolicy == PolicyDefer && p.Deferrals < b.MaxDeferrals {
			deferPick(p, now)
		} else {
			resolved := now
			p.Status = PickExpired
			p.ResolvedAt = &resolved
		}
		if err := repo.UpdatePick(ctx, p); err != nil {
			return err
		}
		expired = true
		fx.event(EventExpired, p.ID, now)
		return s.advanceFromPool(ctx, repo, b, picks, now, fx)
	})
	if err != nil {
		return false, fmt.Errorf("expire pick: %w", err)
	}
	if expired {
		s.logger.Info().Str("board_id", boardID).Str("pick_id", pickID).Msg("pick clock expired")
	}
	return expired, nil
}

// Pause stops the clock and remembers how much of it the current pick had left.
func (s *Service) Pause(ctx context.Context, tenantID, boardID string) (*Board, error) {
	b, err := s.mutate(ctx, tenantID, boardID, func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error {
		if b.Status != BoardOpen {
			return errs.Transition("draft board", b.Status, BoardPaused)
		}
		if b.CurrentPickID != "" {
			picks, err := repo.ListPicks(ctx, b.ID)
			if err != nil {
				return err
			}
			if i := indexOfPick(picks, b.CurrentPickID); i >= 0 && picks[i].DeadlineAt != nil {
				p := &picks[i]
				remaining := p.DeadlineAt.Sub(now)
				if remaining < 0 {
					remaining = 0
				}
				secs := int64((remaining + time.Second - 1) / time.Second)
				b.RemainingOnPauseSec = &secs
				p.DeadlineAt = nil
				if err := repo.UpdatePick(ctx, p); err != nil {
					return err
				}
			}
		}
		b.Status = BoardPaused
		b.UpdatedAt = now
		fx.event(EventPaused, "", now)
		return repo.Update(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("pause draft board: %w", err)
	}
	return b, nil
}

// Resume restarts the clock with the time the current pick had left at pause.
func (s *Service) Resume(ctx context.Context, tenantID, boardID string) (*Board, error) {
	b, err := s.mutate(ctx, tenantID, boardID, func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error {
		if b.Status != BoardPaused {
			return errs.Transition("draft board", b.Status, BoardOpen)
		}
		if b.CurrentPickID != "" && b.RemainingOnPauseSec != nil {
			picks, err := repo.ListPicks(ctx, b.ID)
			if err != nil {
				return err
			}
			if i := indexOfPick(picks, b.CurrentPickID); i >= 0 && picks[i].Status == PickOnClock {
				p := &picks[i]
				deadline := now.Add(time.Duration(*b.RemainingOnPauseSec) * time.Second)
				p.DeadlineAt = &deadline
				if err := repo.UpdatePick(ctx, p); err != nil {
					return err
				}
				clock := *p
				fx.clock = &clock
			}
		}
		b.Status = BoardOpen
		b.RemainingOnPauseSec = nil
		b.UpdatedAt = now
		fx.event(EventResumed, "", now)
		return repo.Update(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("resume draft board: %w", err)
	}
	return b, nil
}

// Cancel ends the board without completing it. The on-clock pick goes back to pending.
func (s *Service) Cancel(ctx context.Context, tenantID, boardID string) (*Board, error) {
	b, err := s.mutate(ctx, tenantID, boardID, func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error {
		switch b.Status {
		case BoardDraft, BoardOpen, BoardPaused:
		default:
			return errs.Transition("draft board", b.Status, BoardCancelled)
		}
		if b.CurrentPickID != "" {
			picks, err := repo.ListPicks(ctx, b.ID)
			if err != nil {
				return err
			}
			if i := indexOfPick(picks, b.CurrentPickID); i >= 0 && picks[i].Status == PickOnClock {
				p := &picks[i]
				p.Status = PickPending
				p.ClockStartedAt = nil
				p.DeadlineAt = nil
				if err := repo.UpdatePick(ctx, p); err != nil {
					return err
				}
			}
		}
		b.Status = BoardCancelled
		b.CurrentPickID = ""
		b.RemainingOnPauseSec = nil
		b.UpdatedAt = now
		fx.event(EventCancelled, "", now)
		return repo.Update(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel draft board: %w", err)
	}
	return b, nil
}

// Sweep expires every overdue on-clock pick, up to limit. Failures on one
// board are logged and do not stop the rest.
func (s *Service) Sweep(ctx context.Context, limit int) (int, error) {
	now := s.now()
	refs, err := s.repo.OverdueOnClock(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue picks: %w", err)
	}
	expired := 0
	for _, ref := range refs {
		ok, err := s.Expire(ctx, ref.TenantID, ref.BoardID, ref.PickID, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("board_id", ref.BoardID).Str("pick_id", ref.PickID).Msg("sweep could not expire pick")
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

type mutation func(ctx context.Context, repo Repository, b *Board, now time.Time, fx *effects) error

func (s *Service) mutate(ctx context.Context, tenantID, boardID string, fn mutation) (*Board, error) {
	return s.mutateAt(ctx, tenantID, boardID, s.now(), fn)
}

// mutateAt runs fn against the locked board inside a transaction, then
// schedules and broadcasts whatever fn recorded.
func (s *Service) mutateAt(ctx context.Context, tenantID, boardID string, now time.Time, fn mutation) (_ *Board, err error) {
	ctx, span := tracer.Start(ctx, "draftboard.mutate", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("draft.board_id", boardID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	fx := &effects{}
	var out Board
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		b, err := repo.Lock(ctx, tenantID, boardID)
		if err != nil {
			return err
		}
		if err := fn(ctx, repo, b, now, fx); err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, tenantID, out, fx)
	return &out, nil
}

func (s *Service) dispatch(ctx context.Context, tenantID string, b Board, fx *effects) {
	if fx.clock != nil {
		if fx.clock.DeadlineAt != nil {
			if err := s.scheduler.ScheduleTimeout(ctx, tenantID, b.ID, fx.clock.ID, *fx.clock.DeadlineAt); err != nil {
				s.logger.Error().Err(err).Str("board_id", b.ID).Str("pick_id", fx.clock.ID).
					Msg("failed to schedule pick timeout; the sweeper will expire it")
			}
		}
		if fx.notify {
			s.notifier.PickOnClock(ctx, tenantID, b, *fx.clock)
		}
	}
	for _, ev := range fx.events {
		ev.BoardID = b.ID
		ev.BoardStatus = b.Status
		ev.CurrentPickID = b.CurrentPickID
		s.notifier.BoardEvent(ctx, tenantID, ev)
	}
}

func (s *Service) advanceFromPool(ctx context.Context, repo Repository, b *Board, picks []Pick, now time.Time, fx *effects) error {
	pool, err := repo.Pool(ctx, b.ID)
	if err != nil {
		return err
	}
	return advance(ctx, repo, b, picks, pool, now, fx)
}

// onClockPick loads the picks of an open board and returns the one identified
// by pickID, which must be on the clock.
func onClockPick(ctx context.Context, repo Repository, b *Board, pickID string) ([]Pick, *Pick, error) {
	if b.Status != BoardOpen {
		return nil, nil, ErrBoardNotOpen
	}
	picks, err := repo.ListPicks(ctx, b.ID)
	if err != nil {
		return nil, nil, err
	}
	i := indexOfPick(picks, pickID)
	if i < 0 {
		return nil, nil, ErrPickNotFound
	}
	if picks[i].Status != PickOnClock {
		return nil, nil, ErrNotOnClock
	}
	return picks, &picks[i], nil
}

func deferPick(p *Pick, now time.Time) {
	deferred := now
	p.Status = PickDeferred
	p.Deferrals++
	p.DeferredAt = &deferred
	p.ClockStartedAt = nil
	p.DeadlineAt = nil
}

type noopScheduler struct{}

func (noopScheduler) ScheduleTimeout(context.Context, string, string, string, time.Time) error {
	return nil
}

type noopNotifier struct{}

func (noopNotifier) BoardEvent(context.Context, string, Event)        {}
func (noopNotifier) PickOnClock(context.Context, string, Board, Pick) {}
