package middleware

import (
	"fmt"
	"net/http"

	"github.com/BreederHQ/server/internal/api/problem"
)

const (
	DefaultMaxBodySize int64 = 1 << 20

	// WebhookMaxBodySize covers inbound email payloads with inline attachments.
	WebhookMaxBodySize int64 = 10 << 20
)

// RequestSize caps request bodies at maxBytes. A declared Content-Length over
// the cap is refused up front; chunked bodies fail on read with
// *http.MaxBytesError, which the handlers turn into the same 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	detail := fmt.Sprintf("Request bodies are limited to %d bytes", maxBytes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypePayloadTooLarge, "Request body too large", nil, "", problem.WithDetail(detail))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func DefaultRequestSize() func(http.Handler) http.Handler { return RequestSize(DefaultMaxBodySize) }

func WebhookRequestSize() func(http.Handler) http.Handler { return RequestSize(WebhookMaxBodySize) }
