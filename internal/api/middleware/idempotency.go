package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/api/problem"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	IdempotencyHeader       = "Idempotency-Key"
	ReplayedHeader          = "Idempotent-Replayed"
	maxIdempotencyKeyLength = 128
)

// IdempotencyStore persists one response per (tenant, key).
type IdempotencyStore interface {
	Claim(ctx context.Context, tenantID, key, requestHash string) (bool, error)
	Lookup(ctx context.Context, tenantID, key string) (string, int, []byte, error)
	Complete(ctx context.Context, tenantID, key string, status int, body []byte) error
	Release(ctx context.Context, tenantID, key string) error
}

// Idempotency makes a tenant-scoped POST safe to retry. The first request
// with a given Idempotency-Key runs and its response is stored; repeats with
// the same body get the stored response, a different body gets 422, and a
// repeat while the first is still running gets 409. Server errors release the
// key so the client can retry. Requests without the header run normally.
func Idempotency(store IdempotencyStore, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLength {
				problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", errs.Invalid("Idempotency-Key", "must be at most 128 characters"), env)
				return
			}
			scope, ok := ScopeFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypePayloadTooLarge, "Request body too large", err, env)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := requestHash(r, body)

			ctx := r.Context()
			claimed, err := store.Claim(ctx, scope.TenantID, key, hash)
			if err != nil {
				problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
				return
			}
			if !claimed {
				replay(w, r, store, scope.TenantID, key, hash, env)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger := zerolog.Ctx(ctx)
			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(context.WithoutCancel(ctx), scope.TenantID, key); err != nil {
					logger.Error().Err(err).Str("idempotency_key", key).Msg("release idempotency key failed")
				}
				return
			}
			if err := store.Complete(context.WithoutCancel(ctx), scope.TenantID, key, rec.status, rec.body.Bytes()); err != nil {
				logger.Error().Err(err).Str("idempotency_key", key).Msg("store idempotent response failed")
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store IdempotencyStore, tenantID, key, hash, env string) {
	storedHash, status, body, err := store.Lookup(r.Context(), tenantID, key)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		// Released between our claim attempt and lookup.
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Request in progress, retry", errs.ErrConflict, env)
		return
	case err != nil:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
		return
	}
	if storedHash != hash {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "Idempotency-Key reused with a different request", errs.Invalid("Idempotency-Key", "already used for a different request"), env)
		return
	}
	if status == 0 {
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Request in progress, retry", errs.ErrConflict, env)
		return
	}
	metrics.IdempotentReplays.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}
