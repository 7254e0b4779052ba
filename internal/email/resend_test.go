package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BreederHQ/server/internal/config"
	"github.com/BreederHQ/server/internal/domain/draftboard"
	"github.com/BreederHQ/server/internal/domain/messaging"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	cfg := config.EmailConfig{
		Enabled:      true,
		From:         "BreederHQ <notify@breederhq.test>",
		ResendAPIKey: "test-api-key",
	}
	svc, err := NewService(cfg, zerolog.Nop())
	require.NoError(t, err)
	if handler != nil {
		server := httptest.NewServer(handler)
		t.Cleanup(server.Close)
		baseURL, _ := url.Parse(server.URL + "/")
		svc.resendClient.BaseURL = baseURL
	}
	return svc
}

func TestSendOutboundMessage(t *testing.T) {
	var got resend.SendEmailRequest
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/emails") {
			t.Errorf("Expected POST /emails, got %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("Expected Bearer token, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "re_123"})
	})

	id, err := svc.Send(context.Background(), messaging.OutboundEmail{
		To:         "ann@example.com",
		ReplyTo:    "reply+tok@in.breederhq.test",
		Subject:    "Re: Spring litter",
		Text:       "She is still available.",
		HTML:       "<p>She is still available.</p>",
		MessageID:  "<01j@in.breederhq.test>",
		InReplyTo:  "<abc@mail.example.com>",
		References: []string{"<first@mail.example.com>", "<abc@mail.example.com>"},
		Tags:       map[string]string{"tenant_id": "T1"},
	})
	require.NoError(t, err)
	require.Equal(t, "re_123", id)

	require.Equal(t, "BreederHQ <notify@breederhq.test>", got.From)
	require.Equal(t, []string{"ann@example.com"}, got.To)
	require.Equal(t, "reply+tok@in.breederhq.test", got.ReplyTo)
	require.Equal(t, "<01j@in.breederhq.test>", got.Headers["Message-ID"])
	require.Equal(t, "<abc@mail.example.com>", got.Headers["In-Reply-To"])
	require.Equal(t, "<first@mail.example.com> <abc@mail.example.com>", got.Headers["References"])
	require.Equal(t, []resend.Tag{{Name: "tenant_id", Value: "T1"}}, got.Tags)
}

func TestSendRateLimitError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Rate limit exceeded"})
	})

	_, err := svc.Send(context.Background(), messaging.OutboundEmail{To: "ann@example.com", Subject: "Hi", Text: "x"})
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	require.Equal(t, time.Minute, limited.RetryAfter)
	require.Contains(t, err.Error(), "rate limit")
}

func TestSendGenericAPIError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Invalid request", "name": "validation_error"})
	})

	_, err := svc.Send(context.Background(), messaging.OutboundEmail{To: "ann@example.com", Subject: "Hi", Text: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "resend API error")
}

func TestSendContextCancellation(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called with cancelled context")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Send(ctx, messaging.OutboundEmail{To: "ann@example.com", Subject: "Hi", Text: "x"})
	if err == nil {
		t.Fatal("Expected context cancellation error, got nil")
	}
	if !errors.Is(err, context.Canceled) && !strings.Contains(err.Error(), "context canceled") {
		t.Errorf("Expected context.Canceled error, got: %v", err)
	}
}

func TestSendNilClient(t *testing.T) {
	svc := &Service{config: config.EmailConfig{Enabled: true}, logger: zerolog.Nop()}
	_, err := svc.Send(context.Background(), messaging.OutboundEmail{To: "ann@example.com"})
	require.ErrorContains(t, err, "not initialized")
}

func TestSendDisabled(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	id, err := svc.Send(context.Background(), messaging.OutboundEmail{To: "ann@example.com"})
	require.NoError(t, err)
	require.Empty(t, id)

	_, err = svc.Send(context.Background(), messaging.OutboundEmail{To: "ann@example.com\r\nBcc: x@evil.test"})
	require.Error(t, err)
}

func TestSendNotification(t *testing.T) {
	var got resend.SendEmailRequest
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "re_n1"})
	})

	deadline := time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC)
	n := PickOnClock("ann@example.com", "Ann", draftboard.Board{Name: "Spring litter"},
		draftboard.Pick{Position: 2, DeadlineAt: &deadline}, "https://app.breederhq.test/draft-boards/B1")
	require.NoError(t, svc.SendNotification(context.Background(), n))

	require.Equal(t, "You're on the clock: Spring litter", got.Subject)
	require.Contains(t, got.Html, "Spring litter")
	require.Contains(t, got.Html, "pick #2")
	require.Contains(t, got.Html, "Fri May 1, 18:30 UTC")
	require.Contains(t, got.Html, "https://app.breederhq.test/draft-boards/B1")
}

func TestSendNotificationRejectsUnsafeLink(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unsafe notification must not be sent")
	})
	n := PickOnClock("ann@example.com", "Ann", draftboard.Board{Name: "B"}, draftboard.Pick{Position: 1}, "javascript:alert(1)")
	require.Error(t, svc.SendNotification(context.Background(), n))
}

func TestRenderNewMessage(t *testing.T) {
	svc := newTestService(t, nil)
	n := NewMessage(
		messaging.Mailbox{TenantID: "T1", Name: "Sunny Acres", NotifyEmail: "owner@sunny.test"},
		messaging.Thread{Subject: "Spring litter"},
		messaging.Message{From: "Ann Buyer <ann@example.com>", Text: "Is the <red> female\n\nstill available?", Verdict: messaging.VerdictSuspicious},
		"https://app.breederhq.test/messages/TH1",
	)
	require.Equal(t, "owner@sunny.test", n.To)
	require.Equal(t, "New message from Ann Buyer: Spring litter", n.Subject)

	html, err := svc.Render(n)
	require.NoError(t, err)
	require.Contains(t, html, "Sunny Acres")
	require.Contains(t, html, "Is the &lt;red&gt; female still available?")
	require.Contains(t, html, "looks suspicious")
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	p := preview(long)
	require.True(t, strings.HasSuffix(p, "…"))
	require.Len(t, []rune(p), previewLength+1)
}
