package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getOpenAPI(t *testing.T, method string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v1/openapi.json", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	OpenAPIHandler().ServeHTTP(w, req)
	return w
}

func TestOpenAPIDocument(t *testing.T) {
	w := getOpenAPI(t, http.MethodGet, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("ETag"))

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc.OpenAPI)
	assert.Contains(t, doc.Paths, "/draft-boards/{id}/picks/{pickID}/select")
	assert.Contains(t, doc.Paths, "/webhooks/resend/inbound")
	assert.Contains(t, doc.Paths["/invoices/{id}/payments"], "post")
}

func TestOpenAPINegotiation(t *testing.T) {
	etag := getOpenAPI(t, http.MethodGet, nil).Header().Get("ETag")

	t.Run("yaml source", func(t *testing.T) {
		w := getOpenAPI(t, http.MethodGet, map[string]string{"Accept": "application/yaml"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
		assert.Equal(t, openAPISource, w.Body.Bytes())
	})

	t.Run("conditional get", func(t *testing.T) {
		w := getOpenAPI(t, http.MethodGet, map[string]string{"If-None-Match": etag})
		assert.Equal(t, http.StatusNotModified, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})

	t.Run("head", func(t *testing.T) {
		w := getOpenAPI(t, http.MethodHead, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})

	t.Run("writes rejected", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			w := getOpenAPI(t, method, nil)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
			assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
		}
	})
}

func TestOpenAPIConcurrentFirstLoad(t *testing.T) {
	bodies := make([]string, 10)
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			OpenAPIHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
			bodies[i] = w.Body.String()
		}()
	}
	wg.Wait()

	for _, body := range bodies[1:] {
		assert.Equal(t, bodies[0], body)
	}
}
