package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	dashboard := []string{"https://app.breederhq.test/", "https://Admin.BreederHQ.test"}

	tests := []struct {
		name       string
		allowed    []string
		allowAll   bool
		method     string
		origin     string
		wantCode   int
		wantOrigin string
		reachNext  bool
	}{
		{name: "development reflects origin", allowAll: true, method: http.MethodGet, origin: "http://localhost:3000", wantCode: http.StatusOK, wantOrigin: "http://localhost:3000", reachNext: true},
		{name: "listed origin", allowed: dashboard, method: http.MethodGet, origin: "https://app.breederhq.test", wantCode: http.StatusOK, wantOrigin: "https://app.breederhq.test", reachNext: true},
		{name: "listed origin case-insensitive", allowed: dashboard, method: http.MethodPost, origin: "https://admin.breederhq.test", wantCode: http.StatusOK, wantOrigin: "https://admin.breederhq.test", reachNext: true},
		{name: "unlisted origin still served", allowed: dashboard, method: http.MethodGet, origin: "https://evil.example", wantCode: http.StatusOK, reachNext: true},
		{name: "same origin", allowed: dashboard, method: http.MethodGet, wantCode: http.StatusOK, reachNext: true},
		{name: "preflight", allowed: dashboard, method: http.MethodOptions, origin: "https://app.breederhq.test", wantCode: http.StatusNoContent, wantOrigin: "https://app.breederhq.test"},
		{name: "preflight from unlisted origin", allowed: dashboard, method: http.MethodOptions, origin: "https://evil.example", wantCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			h := CORS(tt.allowed, tt.allowAll, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/v1/draft-boards", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.reachNext, reached)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, corsMaxAge, w.Header().Get("Access-Control-Max-Age"))
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
			}
			if tt.origin != "" {
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			}
		})
	}
}
