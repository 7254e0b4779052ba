package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobOutcome(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		attempt int
		err     error
		want    string
	}{
		{name: "success", attempt: 1, want: "ok"},
		{name: "retryable", attempt: 2, err: boom, want: "retry"},
		{name: "last attempt", attempt: 5, err: boom, want: "discarded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &rivertype.JobRow{Attempt: tt.attempt, MaxAttempts: 5}
			assert.Equal(t, tt.want, jobOutcome(job, tt.err))
		})
	}
}

func TestJobHookLifecycle(t *testing.T) {
	hook := NewJobHook()
	ctx := context.Background()

	enqueued := JobsEnqueued.WithLabelValues("draft_pick_expiry", "draft")
	before := testutil.ToFloat64(enqueued)
	require.NoError(t, hook.InsertBegin(ctx, &rivertype.JobInsertParams{Kind: "draft_pick_expiry", Queue: "draft"}))
	assert.Equal(t, before+1, testutil.ToFloat64(enqueued))

	started := time.Now().Add(-time.Second)
	job := &rivertype.JobRow{ID: 7, Kind: "draft_pick_expiry", Attempt: 1, MaxAttempts: 3, AttemptedAt: &started}
	finished := JobsFinished.WithLabelValues("draft_pick_expiry", "ok")
	doneBefore := testutil.ToFloat64(finished)

	require.NoError(t, hook.WorkBegin(ctx, job))
	assert.Equal(t, float64(1), testutil.ToFloat64(JobsRunning.WithLabelValues("draft_pick_expiry")))
	require.NoError(t, hook.WorkEnd(ctx, job, nil))

	assert.Equal(t, float64(0), testutil.ToFloat64(JobsRunning.WithLabelValues("draft_pick_expiry")))
	assert.Equal(t, doneBefore+1, testutil.ToFloat64(finished))
}
