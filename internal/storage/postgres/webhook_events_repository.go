package postgres

import (
	"context"
	"time"
)

// WebhookEventRepository remembers provider event IDs that were already applied.
type WebhookEventRepository struct {
	conn
}

// Seen reports whether the provider event was processed before.
func (r *WebhookEventRepository) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE provider = $1 AND event_id = $2)`,
		provider, eventID).Scan(&exists)
	if err != nil {
		return false, mapError("check webhook event", err)
	}
	return exists, nil
}

// MarkProcessed records the event and reports whether this call inserted it.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	tag, err := r.queryer().Exec(ctx, `
INSERT INTO webhook_events (provider, event_id, processed_at)
VALUES ($1, $2, now())
ON CONFLICT (provider, event_id) DO NOTHING`, provider, eventID)
	if err != nil {
		return false, mapError("mark webhook event", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WebhookEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM webhook_events WHERE processed_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, mapError("delete webhook events", err)
	}
	return tag.RowsAffected(), nil
}
