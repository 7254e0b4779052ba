package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BreederHQ/server/internal/config"
	"github.com/BreederHQ/server/internal/jobs"
)

func TestOriginChecker(t *testing.T) {
	cfg := config.Defaults()
	cfg.Environment = "production"
	cfg.Server.AppURL = "https://app.breederhq.com"
	cfg.Server.BaseURL = "https://api.breederhq.com"
	cfg.Auth.TrustedOrigin = []string{"https://partner.example.com"}
	check := originChecker(cfg)

	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{name: "no origin", want: true},
		{name: "app", origin: "https://app.breederhq.com", want: true},
		{name: "trusted", origin: "https://partner.example.com", want: true},
		{name: "same host", origin: "https://internal.breederhq.local", host: "internal.breederhq.local", want: true},
		{name: "scheme mismatch", origin: "http://app.breederhq.com", want: false},
		{name: "foreign", origin: "https://evil.example.com", want: false},
		{name: "garbage", origin: "::::", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/draft-boards/x/live", nil)
			req.Host = "api.breederhq.com"
			if tt.host != "" {
				req.Host = tt.host
			}
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := check(req); got != tt.want {
				t.Errorf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
			}
		})
	}
}

func TestOriginCheckerDevelopmentAllowsAll(t *testing.T) {
	cfg := config.Defaults()
	check := originChecker(cfg)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	if !check(req) {
		t.Error("development should accept any origin")
	}
}

func TestLateInserterBeforeSet(t *testing.T) {
	var l lateInserter
	if _, err := l.Insert(context.Background(), jobs.DraftSweepArgs{}, nil); err == nil {
		t.Error("expected error before the client is set")
	}
}
