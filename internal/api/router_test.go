package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func status(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(code) })
}

func TestMethodMux(t *testing.T) {
	mux := methodMux(map[string]http.Handler{
		http.MethodGet:  status(http.StatusOK),
		http.MethodPost: status(http.StatusCreated),
	})

	tests := []struct {
		method string
		want   int
		allow  string
	}{
		{method: http.MethodGet, want: http.StatusOK},
		{method: http.MethodPost, want: http.StatusCreated},
		{method: http.MethodPut, want: http.StatusMethodNotAllowed, allow: "GET, POST"},
		{method: http.MethodDelete, want: http.StatusMethodNotAllowed, allow: "GET, POST"},
		{method: http.MethodOptions, want: http.StatusMethodNotAllowed, allow: "GET, POST"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tt.method, "/api/v1/contacts", nil))
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.allow, w.Header().Get("Allow"))
		})
	}
}

func TestMethodMuxEmpty(t *testing.T) {
	w := httptest.NewRecorder()
	methodMux(map[string]http.Handler{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Empty(t, w.Header().Get("Allow"))
}

func TestAllowedMethodsSorted(t *testing.T) {
	got := allowedMethods(map[string]http.Handler{
		http.MethodPut:    status(http.StatusOK),
		http.MethodGet:    status(http.StatusOK),
		http.MethodDelete: status(http.StatusOK),
		http.MethodPatch:  status(http.StatusOK),
	})
	assert.Equal(t, "DELETE, GET, PATCH, PUT", got)
}
