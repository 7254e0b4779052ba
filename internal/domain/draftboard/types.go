package draftboard

import (
	"context"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/tasks"
)

// Board statuses.
const (
	BoardDraft     = "draft"
	BoardOpen      = "open"
	BoardPaused    = "paused"
	BoardCompleted = "completed"
	BoardCancelled = "cancelled"
)

// Pick statuses.
const (
	PickPending  = "pending"
	PickOnClock  = "on_clock"
	PickDeferred = "deferred"
	PickPicked   = "picked"
	PickPassed   = "passed"
	PickExpired  = "expired"
	PickVoid     = "void"
)

// Timeout policies decide what an expired clock does to the pick.
const (
	PolicySkip  = "skip"
	PolicyDefer = "defer"
)

// Event types broadcast after a board changes.
const (
	EventParticipants = "participants.updated"
	EventStarted      = "board.started"
	EventPicked       = "pick.made"
	EventDeferred     = "pick.deferred"
	EventPassed       = "pick.passed"
	EventExpired      = "pick.expired"
	EventPaused       = "board.paused"
	EventResumed      = "board.resumed"
	EventCancelled    = "board.cancelled"
	EventCompleted    = "board.completed"
)

const defaultMaxDeferrals = 1

var (
	ErrBoardNotOpen   = errs.New(errs.ErrInvalidTransition, "draft board is not open")
	ErrNotOnClock     = errs.New(errs.ErrInvalidTransition, "pick is not on the clock")
	ErrDeferralLimit  = errs.New(errs.ErrConflict, "pick has no deferrals left")
	ErrNotInPool      = errs.New(errs.ErrInvalidReference, "offspring is not in this board's pool")
	ErrAlreadyClaimed = errs.New(errs.ErrConflict, "offspring has already been picked")
	ErrUnavailable    = errs.New(errs.ErrConflict, "offspring is no longer available")
	ErrUnknownBuyer   = errs.New(errs.ErrInvalidReference, "buyer is not a contact of this tenant")
	ErrUnknownPlan    = errs.New(errs.ErrInvalidReference, "breeding plan does not exist in this tenant")
	ErrPickNotFound   = errs.New(errs.ErrNotFound, "pick not found on this board")
	ErrNoParticipants = errs.Invalid("participants", "at least one participant is required to start")
	ErrNoOffspring    = errs.Invalid("plan_id", "the plan has no available offspring")
	ErrDuplicateBuyer = errs.Invalid("buyer_ids", "each buyer may appear only once")
)

type Board struct {
	ID            string `json:"id"`
	TenantID      string `json:"-"`
	PlanID        string `json:"plan_id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	PickWindowSec int64  `json:"pick_window_seconds"`
	TimeoutPolicy string `json:"timeout_policy"`
	MaxDeferrals  int    `json:"max_deferrals"`
	CurrentPickID string `json:"current_pick_id,omitempty"`
	// RemainingOnPauseSec holds the current pick's unused clock while paused.
	RemainingOnPauseSec *int64     `json:"remaining_on_pause_seconds,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// PickWindow is the time each buyer has on the clock. Zero means no deadline.
func (b Board) PickWindow() time.Duration {
	return time.Duration(b.PickWindowSec) * time.Second
}

type Pick struct {
	ID             string     `json:"id"`
	BoardID        string     `json:"board_id"`
	BuyerID        string     `json:"buyer_id"`
	Position       int        `json:"position"`
	Status         string     `json:"status"`
	OffspringID    string     `json:"offspring_id,omitempty"`
	Deferrals      int        `json:"deferrals"`
	ClockStartedAt *time.Time `json:"clock_started_at,omitempty"`
	DeadlineAt     *time.Time `json:"deadline_at,omitempty"`
	DeferredAt     *time.Time `json:"deferred_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// PoolEntry is one offspring snapshotted into a board when it started.
type PoolEntry struct {
	OffspringID     string `json:"offspring_id"`
	Name            string `json:"name"`
	Sex             string `json:"sex"`
	Color           string `json:"color,omitempty"`
	PlacementStatus string `json:"placement_status"`
	PickID          string `json:"pick_id,omitempty"`
}

// Unclaimed reports whether the offspring can still be picked.
func (e PoolEntry) Unclaimed() bool {
	return e.PickID == "" && e.PlacementStatus == "available"
}

type View struct {
	Board Board       `json:"board"`
	Picks []Pick      `json:"picks"`
	Pool  []PoolEntry `json:"pool"`
}

// PickRef locates an on-clock pick for the timeout sweeper.
type PickRef struct {
	TenantID string
	BoardID  string
	PickID   string
}

// Event is broadcast to live board viewers after a change commits.
type Event struct {
	Type          string    `json:"type"`
	BoardID       string    `json:"board_id"`
	BoardStatus   string    `json:"board_status"`
	PickID        string    `json:"pick_id,omitempty"`
	CurrentPickID string    `json:"current_pick_id,omitempty"`
	At            time.Time `json:"at"`
}

type CreateInput struct {
	PlanID            string `json:"plan_id" validate:"required,ulid"`
	Name              string `json:"name" validate:"required,max=200"`
	PickWindowSeconds *int64 `json:"pick_window_seconds" validate:"omitempty,gte=0,lte=2592000"`
	TimeoutPolicy     string `json:"timeout_policy" validate:"omitempty,oneof=skip defer"`
	MaxDeferrals      *int   `json:"max_deferrals" validate:"omitempty,gte=0,lte=10"`
}

type ParticipantsInput struct {
	BuyerIDs []string `json:"buyer_ids" validate:"required,min=1,max=200,dive,ulid"`
}

type Filters struct {
	Status string
	Limit  int
	After  string
}

type ListResult struct {
	Items      []Board `json:"items"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	Create(ctx context.Context, b *Board) error
	Get(ctx context.Context, tenantID, id string) (*Board, error)
	// Lock reads the board with a row lock held until the transaction ends.
	Lock(ctx context.Context, tenantID, id string) (*Board, error)
	Update(ctx context.Context, b *Board) error
	List(ctx context.Context, tenantID string, filters Filters) (ListResult, error)

	ListPicks(ctx context.Context, boardID string) ([]Pick, error)
	ReplacePicks(ctx context.Context, boardID string, picks []Pick) error
	UpdatePick(ctx context.Context, p *Pick) error

	PlanExists(ctx context.Context, tenantID, planID string) (bool, error)
	MissingContacts(ctx context.Context, tenantID string, contactIDs []string) ([]string, error)
	AvailableOffspring(ctx context.Context, tenantID, planID string) ([]string, error)
	SnapshotPool(ctx context.Context, boardID string, offspringIDs []string) error
	Pool(ctx context.Context, boardID string) ([]PoolEntry, error)
	ClaimOffspring(ctx context.Context, boardID, offspringID, pickID string) error
	// ReserveOffspring returns ErrUnavailable when the offspring is no longer available.
	ReserveOffspring(ctx context.Context, tenantID, offspringID, buyerID string, at time.Time) error
	CreateTask(ctx context.Context, t *tasks.Task) error

	OverdueOnClock(ctx context.Context, now time.Time, limit int) ([]PickRef, error)
}

// TimeoutScheduler enqueues the expiry of an on-clock pick at its deadline.
type TimeoutScheduler interface {
	ScheduleTimeout(ctx context.Context, tenantID, boardID, pickID string, at time.Time) error
}

// Notifier receives committed board changes.
type Notifier interface {
	BoardEvent(ctx context.Context, tenantID string, ev Event)
	PickOnClock(ctx context.Context, tenantID string, board Board, pick Pick)
}
