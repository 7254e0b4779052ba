package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BreederHQ/server/internal/api/problem"
	"github.com/BreederHQ/server/internal/domain/invoices"
	"github.com/BreederHQ/server/internal/domain/messaging"
	"github.com/BreederHQ/server/internal/metrics"
	"github.com/BreederHQ/server/internal/webhooks"
	"github.com/rs/zerolog"
)

const (
	providerStripe = "stripe"
	providerResend = "resend"
)

// EventLedger records processed provider event IDs.
type EventLedger interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type StripeEventHandler interface {
	HandleStripeEvent(ctx context.Context, event invoices.StripeEvent) error
}

type InboundReceiver interface {
	Receive(ctx context.Context, email messaging.InboundEmail) (messaging.Receipt, error)
}

type WebhooksHandler struct {
	Stripe         StripeEventHandler
	Inbound        InboundReceiver
	Events         EventLedger
	StripeVerifier *webhooks.Verifier
	ResendVerifier *webhooks.Verifier
	Logger         zerolog.Logger
	Env            string
}

// Stripe receives Connect and payment events. A handler failure answers 500
// so Stripe retries; the event is only marked processed after it applied.
func (h *WebhooksHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, h.Env)
	if !ok {
		return
	}
	event, err := h.StripeVerifier.VerifyStripe(body, r.Header.Get("Stripe-Signature"))
	if err == nil && event.ID == "" {
		err = fmt.Errorf("%w: event id missing", webhooks.ErrMalformedEvent)
	}
	if errors.Is(err, webhooks.ErrMalformedEvent) {
		metrics.WebhookDeliveries.WithLabelValues(providerStripe, "rejected").Inc()
		problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Malformed event", err, h.Env)
		return
	}
	if err != nil {
		h.rejectSignature(w, r, providerStripe, err)
		return
	}

	ctx := r.Context()
	seen, err := h.Events.Seen(ctx, providerStripe, event.ID)
	if err != nil {
		h.webhookFailure(w, r, providerStripe, event.ID, err)
		return
	}
	if seen {
		metrics.WebhookDeliveries.WithLabelValues(providerStripe, "duplicate").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if err := h.Stripe.HandleStripeEvent(ctx, event); err != nil {
		h.webhookFailure(w, r, providerStripe, event.ID, err)
		return
	}
	if _, err := h.Events.MarkProcessed(ctx, providerStripe, event.ID); err != nil {
		// Applying the event twice is harmless: payments are keyed by
		// their Stripe reference.
		h.Logger.Warn().Err(err).Str("event_id", event.ID).Msg("mark stripe event processed")
	}
	metrics.WebhookDeliveries.WithLabelValues(providerStripe, "processed").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// ResendInbound runs a received email through the inbound pipeline.
func (h *WebhooksHandler) ResendInbound(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, h.Env)
	if !ok {
		return
	}
	if err := h.ResendVerifier.VerifySvix(body, r.Header); err != nil {
		h.rejectSignature(w, r, providerResend, err)
		return
	}

	email, err := webhooks.ParseResendInbound(body)
	if errors.Is(err, webhooks.ErrIgnoredEvent) {
		metrics.WebhookDeliveries.WithLabelValues(providerResend, "ignored").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues(providerResend, "rejected").Inc()
		problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Malformed inbound email", err, h.Env)
		return
	}

	receipt, err := h.Inbound.Receive(r.Context(), email)
	if err != nil {
		h.webhookFailure(w, r, providerResend, email.ProviderID, err)
		return
	}
	metrics.InboundEmails.WithLabelValues(receipt.Verdict, receipt.Outcome).Inc()
	result := "processed"
	if receipt.Outcome == messaging.OutcomeDuplicate {
		result = "duplicate"
	}
	metrics.WebhookDeliveries.WithLabelValues(providerResend, result).Inc()
	writeJSON(w, http.StatusOK, receipt)
}

func (h *WebhooksHandler) rejectSignature(w http.ResponseWriter, r *http.Request, provider string, err error) {
	if errors.Is(err, webhooks.ErrNoSecret) {
		metrics.WebhookDeliveries.WithLabelValues(provider, "error").Inc()
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeServerError, "Webhook not configured", err, h.Env)
		return
	}
	metrics.WebhookDeliveries.WithLabelValues(provider, "rejected").Inc()
	h.Logger.Warn().Err(err).Str("provider", provider).Msg("webhook signature rejected")
	problem.Write(w, r, http.StatusUnauthorized, problem.TypeSignature, "Invalid webhook signature", err, h.Env)
}

func (h *WebhooksHandler) webhookFailure(w http.ResponseWriter, r *http.Request, provider, eventID string, err error) {
	metrics.WebhookDeliveries.WithLabelValues(provider, "error").Inc()
	h.Logger.Error().Err(err).Str("provider", provider).Str("event_id", eventID).Msg("webhook processing failed")
	problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
}
