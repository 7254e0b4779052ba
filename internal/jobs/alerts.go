package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BreederHQ/server/internal/metrics"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// AlertFunc is invoked when a job has used its last attempt.
type AlertFunc func(ctx context.Context, job *rivertype.JobRow, err error)

// AlertingErrorHandler logs job failures and forwards exhausted jobs for alerting.
// Failures with attempts left are logged at warn; River retries them.
type AlertingErrorHandler struct {
	Logger *slog.Logger
	Notify AlertFunc
}

func NewAlertingErrorHandler(logger *slog.Logger, notify AlertFunc) *AlertingErrorHandler {
	return &AlertingErrorHandler{
		Logger: logger,
		Notify: notify,
	}
}

func (h *AlertingErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.report(ctx, job, err, "")
	return nil
}

func (h *AlertingErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.report(ctx, job, fmt.Errorf("panic: %v", panicVal), trace)
	return nil
}

func (h *AlertingErrorHandler) report(ctx context.Context, job *rivertype.JobRow, err error, trace string) {
	exhausted := exhausted(job)
	if h.Logger != nil {
		attrs := []any{"job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "max_attempts", job.MaxAttempts, "error", err}
		if trace != "" {
			attrs = append(attrs, "trace", trace)
		}
		if exhausted {
			h.Logger.ErrorContext(ctx, "job discarded after final attempt", attrs...)
		} else {
			h.Logger.WarnContext(ctx, "job failed, will retry", attrs...)
		}
	}
	if exhausted && h.Notify != nil {
		h.Notify(ctx, job, err)
	}
}

func exhausted(job *rivertype.JobRow) bool {
	return job.MaxAttempts > 0 && job.Attempt >= job.MaxAttempts
}

// CountDiscardedEmail records email jobs that ran out of attempts.
func CountDiscardedEmail(_ context.Context, job *rivertype.JobRow, _ error) {
	switch job.Kind {
	case JobKindEmailDelivery:
		metrics.EmailDeliveries.WithLabelValues("message", "discarded").Inc()
	case JobKindNotificationEmail:
		metrics.EmailDeliveries.WithLabelValues("notification", "discarded").Inc()
	}
}
