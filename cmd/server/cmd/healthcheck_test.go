package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// TestPerformHealthCheck tests the basic health check functionality
func TestPerformHealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		statusCode     int
		responseBody   interface{}
		expectHealthy  bool
		expectError    bool
		expectedStatus string
	}{
		{
			name:       "healthy server",
			statusCode: http.StatusOK,
			responseBody: HealthResponse{
				Status: "healthy",
				Checks: map[string]CheckResult{
					"database": {Status: "pass"},
				},
			},
			expectHealthy:  true,
			expectedStatus: "healthy",
		},
		{
			name:       "degraded server",
			statusCode: http.StatusOK,
			responseBody: HealthResponse{
				Status: "degraded",
				Checks: map[string]CheckResult{
					"database":  {Status: "pass"},
					"job_queue": {Status: "warn"},
				},
			},
			expectHealthy:  false,
			expectedStatus: "degraded",
		},
		{
			name:           "unhealthy server (503)",
			statusCode:     http.StatusServiceUnavailable,
			responseBody:   HealthResponse{Status: "unhealthy"},
			expectHealthy:  false,
			expectedStatus: "unhealthy",
		},
		{
			name:          "invalid response",
			statusCode:    http.StatusOK,
			responseBody:  "not json",
			expectHealthy: false,
			expectError:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if str, ok := tt.responseBody.(string); ok {
					fmt.Fprint(w, str)
				} else {
					_ = json.NewEncoder(w).Encode(tt.responseBody)
				}
			}))
			defer server.Close()

			result := performHealthCheck(server.URL)

			if result.IsHealthy != tt.expectHealthy {
				t.Errorf("expected IsHealthy=%v, got %v", tt.expectHealthy, result.IsHealthy)
			}
			if tt.expectError && result.Error == "" {
				t.Error("expected error, got none")
			}
			if !tt.expectError && result.Status != tt.expectedStatus {
				t.Errorf("expected status=%s, got %s", tt.expectedStatus, result.Status)
			}
			if result.LatencyMs < 0 {
				t.Error("expected non-negative latency")
			}
		})
	}
}

// TestPerformHealthCheckTimeout tests timeout handling
func TestPerformHealthCheckTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	orig := healthcheckTimeout
	healthcheckTimeout = 1
	defer func() { healthcheckTimeout = orig }()

	result := performHealthCheck(server.URL)

	if result.Error == "" {
		t.Error("expected timeout error, got none")
	}
	if result.IsHealthy {
		t.Error("expected unhealthy result on timeout")
	}
}

func TestHealthCheckURL(t *testing.T) {
	originalPort, hadPort := os.LookupEnv("SERVER_PORT")
	defer func() {
		if hadPort {
			os.Setenv("SERVER_PORT", originalPort)
		} else {
			os.Unsetenv("SERVER_PORT")
		}
		healthcheckURL = ""
	}()

	tests := []struct {
		name       string
		urlFlag    string
		serverPort string
		expected   string
	}{
		{name: "explicit URL", urlFlag: "http://example.com/health", expected: "http://example.com/health"},
		{name: "default with SERVER_PORT", serverPort: "9000", expected: "http://localhost:9000/health"},
		{name: "default without SERVER_PORT", expected: "http://localhost:8080/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			healthcheckURL = tt.urlFlag
			if tt.serverPort != "" {
				os.Setenv("SERVER_PORT", tt.serverPort)
			} else {
				os.Unsetenv("SERVER_PORT")
			}

			if got := healthCheckURL(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestHealthcheckCommandOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "degraded",
			Checks: map[string]CheckResult{
				"database":  {Status: "pass"},
				"job_queue": {Status: "warn", Message: "Job queue not initialized"},
			},
		})
	}))
	defer server.Close()

	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"healthcheck", "--url", server.URL})
	defer func() { healthcheckURL = "" }()

	err := root.Execute()
	if err == nil {
		t.Fatal("expected degraded server to fail the healthcheck")
	}

	output := buf.String()
	if !strings.Contains(output, "degraded") {
		t.Errorf("expected output to mention status, got:\n%s", output)
	}
	if !strings.Contains(output, "job_queue: warn") {
		t.Errorf("expected failing check to be listed, got:\n%s", output)
	}
	if strings.Contains(output, "database:") {
		t.Errorf("passing checks should not be listed, got:\n%s", output)
	}
}
