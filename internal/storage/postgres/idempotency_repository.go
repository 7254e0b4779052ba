package postgres

import (
	"context"
	"time"
)

// IdempotencyRepository stores replayable responses keyed by (tenant, Idempotency-Key).
// A row without a status code is a request still in flight.
type IdempotencyRepository struct {
	conn
}

// Claim inserts the key and reports whether this call owns it.
func (r *IdempotencyRepository) Claim(ctx context.Context, tenantID, key, requestHash string) (bool, error) {
	tag, err := r.queryer().Exec(ctx, `
INSERT INTO idempotency_keys (tenant_id, key, request_hash, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (tenant_id, key) DO NOTHING`, tenantID, key, requestHash)
	if err != nil {
		return false, mapError("claim idempotency key", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Lookup returns the stored request hash and response. status is 0 while the
// first request is still running.
func (r *IdempotencyRepository) Lookup(ctx context.Context, tenantID, key string) (string, int, []byte, error) {
	var (
		hash   string
		status *int
		body   []byte
	)
	err := r.queryer().QueryRow(ctx, `
SELECT request_hash, status_code, response_body
  FROM idempotency_keys
 WHERE tenant_id = $1 AND key = $2`, tenantID, key).Scan(&hash, &status, &body)
	if err != nil {
		return "", 0, nil, mapError("lookup idempotency key", err)
	}
	if status == nil {
		return hash, 0, nil, nil
	}
	return hash, *status, body, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, tenantID, key string, status int, body []byte) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE idempotency_keys SET status_code = $3, response_body = $4
 WHERE tenant_id = $1 AND key = $2`, tenantID, key, status, body)
	return expectOne("complete idempotency key", tag, err)
}

// Release forgets a claim whose request failed so the client may retry.
func (r *IdempotencyRepository) Release(ctx context.Context, tenantID, key string) error {
	_, err := r.queryer().Exec(ctx, `DELETE FROM idempotency_keys WHERE tenant_id = $1 AND key = $2`, tenantID, key)
	return mapError("release idempotency key", err)
}

func (r *IdempotencyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, mapError("delete idempotency keys", err)
	}
	return tag.RowsAffected(), nil
}
