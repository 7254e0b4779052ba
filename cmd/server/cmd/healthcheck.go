package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthcheckCmd = &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /health endpoint.

This command is used by the container HEALTHCHECK. It exits with code 0 if
the server reports "healthy" and non-zero otherwise.`,
		Args: cobra.NoArgs,
		RunE: runHealthcheck,
	}

	healthcheckTimeout int
	healthcheckURL     string
	healthcheckJSON    bool
)

func init() {
	healthcheckCmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/health)")
	healthcheckCmd.Flags().BoolVar(&healthcheckJSON, "json", false, "print the result as JSON")
}

// HealthResponse matches the body served by the /health endpoint.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResult is the outcome of one probe.
type HealthCheckResult struct {
	URL        string                 `json:"url"`
	Status     string                 `json:"status,omitempty"`
	StatusCode int                    `json:"status_code,omitempty"`
	IsHealthy  bool                   `json:"is_healthy"`
	LatencyMs  int64                  `json:"latency_ms"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	result := performHealthCheck(healthCheckURL())

	out := cmd.OutOrStdout()
	if healthcheckJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%s: %s (%dms)\n", result.URL, statusOrError(result), result.LatencyMs)
		for name, check := range result.Checks {
			if check.Status != "pass" {
				fmt.Fprintf(out, "  %s: %s %s\n", name, check.Status, check.Message)
			}
		}
	}

	if !result.IsHealthy {
		return fmt.Errorf("unhealthy: %s", statusOrError(result))
	}
	return nil
}

func healthCheckURL() string {
	if healthcheckURL != "" {
		return healthcheckURL
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

func performHealthCheck(url string) HealthCheckResult {
	result := HealthCheckResult{URL: url}

	timeout := time.Duration(healthcheckTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	result.StatusCode = resp.StatusCode

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Error = fmt.Sprintf("invalid health response: %v", err)
		return result
	}
	result.Status = body.Status
	result.Checks = body.Checks
	result.IsHealthy = resp.StatusCode == http.StatusOK && body.Status == "healthy"
	return result
}

func statusOrError(r HealthCheckResult) string {
	if r.Error != "" {
		return r.Error
	}
	return r.Status
}
