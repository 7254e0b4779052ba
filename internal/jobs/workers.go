package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/email"
	"github.com/BreederHQ/server/internal/metrics"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

const (
	sweepBatch         = 500
	webhookRetention   = 30 * 24 * time.Hour
	idempotencyTimeout = 24 * time.Hour
)

// DraftClock is the part of the draft board service the clock workers drive.
type DraftClock interface {
	Expire(ctx context.Context, tenantID, boardID, pickID string, now time.Time) (bool, error)
	Sweep(ctx context.Context, limit int) (int, error)
}

// MessageDelivery is the part of the messaging service the delivery worker drives.
type MessageDelivery interface {
	Deliver(ctx context.Context, tenantID, messageID string) error
	MarkFailed(ctx context.Context, tenantID, messageID, reason string) error
}

// NotificationSender sends rendered notification emails.
type NotificationSender interface {
	SendNotification(ctx context.Context, n email.Notification) error
}

// Pruner deletes rows older than a cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DraftPickTimeoutArgs identifies one clock run of a pick. A pick goes back on
// the clock after a deferral or a resume, and each run has its own deadline,
// so the deadline is part of the unique key.
type DraftPickTimeoutArgs struct {
	TenantID string `json:"tenant_id"`
	BoardID  string `json:"board_id"`
	PickID   string `json:"pick_id"`
	Deadline int64  `json:"deadline"`
}

func (DraftPickTimeoutArgs) Kind() string { return JobKindDraftPickTimeout }

// timeoutUniqueStates leaves out finished states so an earlier run that
// already fired never blocks a new one.
var timeoutUniqueStates = []rivertype.JobState{
	rivertype.JobStateAvailable,
	rivertype.JobStatePending,
	rivertype.JobStateRetryable,
	rivertype.JobStateRunning,
	rivertype.JobStateScheduled,
}

func (DraftPickTimeoutArgs) InsertOpts() river.InsertOpts {
	opts := InsertOptsForKind(JobKindDraftPickTimeout)
	opts.UniqueOpts = river.UniqueOpts{ByArgs: true, ByState: timeoutUniqueStates}
	return opts
}

// DraftPickTimeoutWorker expires one pick when its clock runs out. Expire is a
// no-op for picks already resolved, paused or rescheduled.
type DraftPickTimeoutWorker struct {
	river.WorkerDefaults[DraftPickTimeoutArgs]
	Drafts DraftClock
	Logger zerolog.Logger
}

func (w DraftPickTimeoutWorker) Work(ctx context.Context, job *river.Job[DraftPickTimeoutArgs]) error {
	if w.Drafts == nil {
		return fmt.Errorf("draft service not configured")
	}
	args := job.Args
	expired, err := w.Drafts.Expire(ctx, args.TenantID, args.BoardID, args.PickID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("expire pick %s: %w", args.PickID, err)
	}
	if expired {
		metrics.DraftPicks.WithLabelValues("timed_out").Inc()
	}
	w.Logger.Debug().
		Str("board_id", args.BoardID).
		Str("pick_id", args.PickID).
		Bool("expired", expired).
		Msg("pick timeout handled")
	return nil
}

type DraftSweepArgs struct{}

func (DraftSweepArgs) Kind() string { return JobKindDraftSweep }

func (DraftSweepArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindDraftSweep)
}

// DraftSweepWorker catches overdue picks whose timeout job was never scheduled.
type DraftSweepWorker struct {
	river.WorkerDefaults[DraftSweepArgs]
	Drafts DraftClock
	Logger zerolog.Logger
}

func (w DraftSweepWorker) Work(ctx context.Context, job *river.Job[DraftSweepArgs]) error {
	if w.Drafts == nil {
		return fmt.Errorf("draft service not configured")
	}
	n, err := w.Drafts.Sweep(ctx, sweepBatch)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.DraftPicks.WithLabelValues("timed_out").Add(float64(n))
		w.Logger.Info().Int("expired", n).Msg("draft sweep expired overdue picks")
	}
	return nil
}

type EmailDeliveryArgs struct {
	TenantID  string `json:"tenant_id"`
	MessageID string `json:"message_id"`
}

func (EmailDeliveryArgs) Kind() string { return JobKindEmailDelivery }

func (EmailDeliveryArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindEmailDelivery)
}

// EmailDeliveryWorker sends a queued outbound message. The last failed
// attempt marks the message failed.
type EmailDeliveryWorker struct {
	river.WorkerDefaults[EmailDeliveryArgs]
	Messages MessageDelivery
}

func (w EmailDeliveryWorker) Work(ctx context.Context, job *river.Job[EmailDeliveryArgs]) error {
	if w.Messages == nil {
		return fmt.Errorf("messaging service not configured")
	}
	err := w.Messages.Deliver(ctx, job.Args.TenantID, job.Args.MessageID)
	if err == nil {
		metrics.EmailDeliveries.WithLabelValues("message", "sent").Inc()
		return nil
	}
	if wait, ok := rateLimited(err); ok {
		metrics.EmailDeliveries.WithLabelValues("message", "rate_limited").Inc()
		return river.JobSnooze(wait)
	}
	metrics.EmailDeliveries.WithLabelValues("message", "error").Inc()
	if job.Attempt >= job.MaxAttempts {
		if markErr := w.Messages.MarkFailed(ctx, job.Args.TenantID, job.Args.MessageID, err.Error()); markErr != nil {
			return fmt.Errorf("mark message failed after %v: %w", err, markErr)
		}
	}
	return err
}

type NotificationEmailArgs struct {
	Notification email.Notification `json:"notification"`
}

func (NotificationEmailArgs) Kind() string { return JobKindNotificationEmail }

func (NotificationEmailArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindNotificationEmail)
}

type NotificationEmailWorker struct {
	river.WorkerDefaults[NotificationEmailArgs]
	Sender NotificationSender
}

func (w NotificationEmailWorker) Work(ctx context.Context, job *river.Job[NotificationEmailArgs]) error {
	if w.Sender == nil {
		return fmt.Errorf("email service not configured")
	}
	if err := w.Sender.SendNotification(ctx, job.Args.Notification); err != nil {
		if wait, ok := rateLimited(err); ok {
			metrics.EmailDeliveries.WithLabelValues("notification", "rate_limited").Inc()
			return river.JobSnooze(wait)
		}
		metrics.EmailDeliveries.WithLabelValues("notification", "error").Inc()
		return err
	}
	metrics.EmailDeliveries.WithLabelValues("notification", "sent").Inc()
	return nil
}

type WebhookEventsCleanupArgs struct{}

func (WebhookEventsCleanupArgs) Kind() string { return JobKindWebhookEventsCleanup }

func (WebhookEventsCleanupArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindWebhookEventsCleanup)
}

// WebhookEventsCleanupWorker forgets processed webhook event IDs after 30 days.
type WebhookEventsCleanupWorker struct {
	river.WorkerDefaults[WebhookEventsCleanupArgs]
	Events Pruner
	Logger zerolog.Logger
}

func (w WebhookEventsCleanupWorker) Work(ctx context.Context, job *river.Job[WebhookEventsCleanupArgs]) error {
	return prune(ctx, w.Events, webhookRetention, w.Logger, "webhook_events")
}

// IdempotencyCleanupArgs defines the job for cleaning expired idempotency keys.
type IdempotencyCleanupArgs struct{}

func (IdempotencyCleanupArgs) Kind() string { return JobKindIdempotencyCleanup }

func (IdempotencyCleanupArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindIdempotencyCleanup)
}

// IdempotencyCleanupWorker removes idempotency keys older than a day.
type IdempotencyCleanupWorker struct {
	river.WorkerDefaults[IdempotencyCleanupArgs]
	Keys   Pruner
	Logger zerolog.Logger
}

func (w IdempotencyCleanupWorker) Work(ctx context.Context, job *river.Job[IdempotencyCleanupArgs]) error {
	return prune(ctx, w.Keys, idempotencyTimeout, w.Logger, "idempotency_keys")
}

func prune(ctx context.Context, p Pruner, retention time.Duration, logger zerolog.Logger, table string) error {
	if p == nil {
		return fmt.Errorf("%s store not configured", table)
	}
	n, err := p.DeleteOlderThan(ctx, time.Now().Add(-retention))
	if err != nil {
		return fmt.Errorf("delete expired %s: %w", table, err)
	}
	if n > 0 {
		metrics.CleanupDeleted.WithLabelValues(table).Add(float64(n))
		logger.Info().Int64("deleted", n).Str("table", table).Msg("cleaned up expired rows")
	}
	return nil
}

// Deps are the services the workers call into.
type Deps struct {
	Drafts          DraftClock
	Messages        MessageDelivery
	Notifications   NotificationSender
	WebhookEvents   Pruner
	IdempotencyKeys Pruner
	Logger          zerolog.Logger
}

// NewWorkers registers every worker.
func NewWorkers(deps Deps) *river.Workers {
	logger := deps.Logger.With().Str("component", "jobs").Logger()
	workers := river.NewWorkers()
	river.AddWorker[DraftPickTimeoutArgs](workers, DraftPickTimeoutWorker{Drafts: deps.Drafts, Logger: logger})
	river.AddWorker[DraftSweepArgs](workers, DraftSweepWorker{Drafts: deps.Drafts, Logger: logger})
	river.AddWorker[EmailDeliveryArgs](workers, EmailDeliveryWorker{Messages: deps.Messages})
	river.AddWorker[NotificationEmailArgs](workers, NotificationEmailWorker{Sender: deps.Notifications})
	river.AddWorker[WebhookEventsCleanupArgs](workers, WebhookEventsCleanupWorker{Events: deps.WebhookEvents, Logger: logger})
	river.AddWorker[IdempotencyCleanupArgs](workers, IdempotencyCleanupWorker{Keys: deps.IdempotencyKeys, Logger: logger})
	return workers
}

// rateLimited reports how long to snooze when the provider throttled a send.
func rateLimited(err error) (time.Duration, bool) {
	var limited *email.RateLimitedError
	if errors.As(err, &limited) {
		return limited.RetryAfter, true
	}
	return 0, false
}
