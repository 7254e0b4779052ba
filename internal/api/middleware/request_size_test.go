package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readingHandler reads the whole body and answers 413 on MaxBytesError the
// way the JSON handlers do.
func readingHandler(read *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		*read = len(body)
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestSize(t *testing.T) {
	tests := []struct {
		name     string
		limit    int64
		size     int
		chunked  bool
		wantCode int
		wantRead int
	}{
		{name: "under limit", limit: 1024, size: 512, wantCode: http.StatusOK, wantRead: 512},
		{name: "at limit", limit: 1024, size: 1024, wantCode: http.StatusOK, wantRead: 1024},
		{name: "declared length over limit", limit: 1024, size: 2048, wantCode: http.StatusRequestEntityTooLarge},
		{name: "chunked body over limit", limit: 1024, size: 2048, chunked: true, wantCode: http.StatusRequestEntityTooLarge},
		{name: "empty body", limit: 1024, size: 0, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read := 0
			h := RequestSize(tt.limit)(readingHandler(&read))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/contacts", strings.NewReader(strings.Repeat("x", tt.size)))
			if tt.chunked {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantRead, read)
		})
	}
}

func TestRequestSizeRejectsBeforeHandler(t *testing.T) {
	called := false
	h := DefaultRequestSize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/animals", strings.NewReader("{}"))
	req.ContentLength = DefaultMaxBodySize + 1
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, called)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "limited to 1048576 bytes")
}

func TestWebhookRequestSizeAllowsLargeInbound(t *testing.T) {
	read := 0
	h := WebhookRequestSize()(readingHandler(&read))

	body := strings.Repeat("a", int(DefaultMaxBodySize)+10)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/inbound/email", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, len(body), read)
}
