package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/BreederHQ/server/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHandler(t *testing.T) {
	w := httptest.NewRecorder()
	VersionHandler("1.4.0", "abc123def456", "2026-09-30T12:00:00Z").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	var got buildInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, buildInfo{
		Service:   "breederhq",
		Version:   "1.4.0",
		GitCommit: "abc123def456",
		BuildDate: "2026-09-30T12:00:00Z",
		GoVersion: runtime.Version(),
	}, got)
}

func TestNewBuildInfoDefaults(t *testing.T) {
	info := newBuildInfo("", "", "")
	assert.Equal(t, "dev", info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.BuildDate)
}

func TestVersionRouteIsGetOnly(t *testing.T) {
	router, _, _ := newTestRouter(t, auth.RoleViewer)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/version", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
