package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindDraftPickTimeout     = "draft_pick_timeout"
	JobKindDraftSweep           = "draft_sweep"
	JobKindEmailDelivery        = "email_delivery"
	JobKindNotificationEmail    = "notification_email"
	JobKindWebhookEventsCleanup = "webhook_events_cleanup"
	JobKindIdempotencyCleanup   = "idempotency_cleanup"
)

const (
	DraftPickTimeoutMaxAttempts = 3
	DraftSweepMaxAttempts       = 1
	EmailMaxAttempts            = 5
	CleanupMaxAttempts          = 1
)

// QueueEmail isolates outbound mail so provider rate limits never delay draft clocks.
const QueueEmail = "email"

// kindPolicy is the retry and routing policy of one job kind.
type kindPolicy struct {
	attempts int
	base     time.Duration // first backoff; zero retries at once
	ceiling  time.Duration
	queue    string
}

var defaultPolicy = kindPolicy{attempts: EmailMaxAttempts, base: 30 * time.Second, ceiling: 30 * time.Minute}

// A stuck pick clock blocks every later pick, so its retries stay under a minute.
var kindPolicies = map[string]kindPolicy{
	JobKindDraftPickTimeout:     {attempts: DraftPickTimeoutMaxAttempts, base: 5 * time.Second, ceiling: time.Minute},
	JobKindDraftSweep:           {attempts: DraftSweepMaxAttempts},
	JobKindEmailDelivery:        {attempts: EmailMaxAttempts, base: 30 * time.Second, ceiling: 30 * time.Minute, queue: QueueEmail},
	JobKindNotificationEmail:    {attempts: EmailMaxAttempts, base: time.Minute, ceiling: time.Hour, queue: QueueEmail},
	JobKindWebhookEventsCleanup: {attempts: CleanupMaxAttempts},
	JobKindIdempotencyCleanup:   {attempts: CleanupMaxAttempts},
}

func policyFor(kind string) kindPolicy {
	if p, ok := kindPolicies[kind]; ok {
		return p
	}
	return defaultPolicy
}

// backoff doubles base per attempt up to the ceiling.
func (p kindPolicy) backoff(attempt int) time.Duration {
	if p.base <= 0 {
		return 0
	}
	delay := time.Duration(float64(p.base) * math.Pow(2, float64(max(attempt, 1)-1)))
	if p.ceiling > 0 && delay > p.ceiling {
		return p.ceiling
	}
	return delay
}

// RetryPolicy is River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct{}

// NextRetry schedules the next attempt relative to when the failed one started.
func (RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	from := time.Now()
	if job.AttemptedAt != nil {
		from = *job.AttemptedAt
	}
	return from.Add(policyFor(job.Kind).backoff(job.Attempt))
}

// InsertOptsForKind returns the attempts and queue a kind is inserted with.
func InsertOptsForKind(kind string) river.InsertOpts {
	p := policyFor(kind)
	return river.InsertOpts{MaxAttempts: p.attempts, Queue: p.queue}
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) *river.Config {
	config := &river.Config{
		Workers:      workers,
		RetryPolicy:  RetryPolicy{},
		MaxAttempts:  defaultPolicy.attempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
			QueueEmail:         {MaxWorkers: 4},
		},
		Hooks: hooks,
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = NewAlertingErrorHandler(logger, CountDiscardedEmail)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, hooks, periodicJobs))
}

// NewInsertOnlyClient builds a client that can enqueue but never works jobs.
func NewInsertOnlyClient(pool *pgxpool.Pool) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), &river.Config{})
}

// Migrate brings River's own tables up to date.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		return fmt.Errorf("migrate river schema: %w", err)
	}
	return nil
}

// NewPeriodicJobs schedules the draft sweep every sweepInterval (and once at
// start) plus the daily retention cleanups.
func NewPeriodicJobs(sweepInterval time.Duration) []*river.PeriodicJob {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	every := func(d time.Duration, args river.JobArgs, onStart bool) *river.PeriodicJob {
		return river.NewPeriodicJob(
			river.PeriodicInterval(d),
			func() (river.JobArgs, *river.InsertOpts) { return args, nil },
			&river.PeriodicJobOpts{RunOnStart: onStart},
		)
	}
	return []*river.PeriodicJob{
		every(sweepInterval, DraftSweepArgs{}, true),
		every(24*time.Hour, WebhookEventsCleanupArgs{}, false),
		every(24*time.Hour, IdempotencyCleanupArgs{}, false),
	}
}
