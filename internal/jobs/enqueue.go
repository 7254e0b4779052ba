package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/contacts"
	"github.com/BreederHQ/server/internal/domain/draftboard"
	"github.com/BreederHQ/server/internal/domain/messaging"
	"github.com/BreederHQ/server/internal/email"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// Inserter is satisfied by *river.Client.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// ContactLookup resolves a buyer's email for notifications.
type ContactLookup interface {
	Get(ctx context.Context, tenantID, id string) (*contacts.Contact, error)
}

// BoardBroadcaster pushes board events to live viewers.
type BoardBroadcaster interface {
	Broadcast(tenantID string, ev draftboard.Event)
}

// Queue turns domain side effects into River jobs. It implements
// draftboard.TimeoutScheduler, draftboard.Notifier, messaging.DeliveryQueue
// and messaging.Notifier.
type Queue struct {
	client   Inserter
	contacts ContactLookup
	live     BoardBroadcaster
	appURL   string
	logger   zerolog.Logger
}

var (
	_ draftboard.TimeoutScheduler = (*Queue)(nil)
	_ draftboard.Notifier         = (*Queue)(nil)
	_ messaging.DeliveryQueue     = (*Queue)(nil)
	_ messaging.Notifier          = (*Queue)(nil)
)

// NewQueue builds the adapter. live may be nil when no websocket hub runs.
func NewQueue(client Inserter, contacts ContactLookup, live BoardBroadcaster, appURL string, logger zerolog.Logger) *Queue {
	return &Queue{
		client:   client,
		contacts: contacts,
		live:     live,
		appURL:   strings.TrimRight(appURL, "/"),
		logger:   logger.With().Str("component", "job_queue").Logger(),
	}
}

func (q *Queue) ScheduleTimeout(ctx context.Context, tenantID, boardID, pickID string, at time.Time) error {
	args := DraftPickTimeoutArgs{TenantID: tenantID, BoardID: boardID, PickID: pickID, Deadline: at.Unix()}
	opts := args.InsertOpts()
	opts.ScheduledAt = at
	if _, err := q.client.Insert(ctx, args, &opts); err != nil {
		return fmt.Errorf("schedule pick timeout: %w", err)
	}
	return nil
}

func (q *Queue) EnqueueDelivery(ctx context.Context, tenantID, messageID string) error {
	if _, err := q.client.Insert(ctx, EmailDeliveryArgs{TenantID: tenantID, MessageID: messageID}, nil); err != nil {
		return fmt.Errorf("enqueue email delivery: %w", err)
	}
	return nil
}

func (q *Queue) BoardEvent(_ context.Context, tenantID string, ev draftboard.Event) {
	if q.live != nil {
		q.live.Broadcast(tenantID, ev)
	}
}

// PickOnClock emails the buyer. Buyers without an email address are skipped.
func (q *Queue) PickOnClock(ctx context.Context, tenantID string, board draftboard.Board, pick draftboard.Pick) {
	logger := q.logger.With().Str("tenant_id", tenantID).Str("board_id", board.ID).Str("pick_id", pick.ID).Logger()
	buyer, err := q.contacts.Get(ctx, tenantID, pick.BuyerID)
	if err != nil {
		logger.Warn().Err(err).Msg("on-clock buyer lookup failed")
		return
	}
	if buyer.Email == "" {
		logger.Debug().Msg("on-clock buyer has no email")
		return
	}
	n := email.PickOnClock(buyer.Email, buyer.DisplayName, board, pick, q.appURL+"/draft-boards/"+board.ID)
	if err := q.notify(ctx, n); err != nil {
		logger.Error().Err(err).Msg("failed to enqueue on-clock notification")
	}
}

func (q *Queue) NewMessage(ctx context.Context, mailbox messaging.Mailbox, thread messaging.Thread, msg messaging.Message) error {
	if mailbox.NotifyEmail == "" {
		return nil
	}
	return q.notify(ctx, email.NewMessage(mailbox, thread, msg, q.appURL+"/messages/"+thread.ID))
}

func (q *Queue) notify(ctx context.Context, n email.Notification) error {
	if _, err := q.client.Insert(ctx, NotificationEmailArgs{Notification: n}, nil); err != nil {
		return fmt.Errorf("enqueue %s notification: %w", n.Template, err)
	}
	return nil
}
