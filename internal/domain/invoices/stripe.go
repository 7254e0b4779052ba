package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/BreederHQ/server/internal/audit"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/tenants"
)

// Stripe event types handled by HandleStripeEvent.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventChargeRefunded    = "charge.refunded"
	EventAccountUpdated    = "account.updated"
)

// ConnectUpdater receives Connect account status changes.
type ConnectUpdater interface {
	SyncConnect(ctx context.Context, connect tenants.Connect) error
}

// StripeEvent is the envelope of a verified Stripe webhook delivery.
type StripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Account string `json:"account,omitempty"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeMetadata struct {
	TenantID  string `json:"tenant_id"`
	InvoiceID string `json:"invoice_id"`
}

type checkoutSession struct {
	ID            string         `json:"id"`
	PaymentIntent string         `json:"payment_intent"`
	PaymentStatus string         `json:"payment_status"`
	AmountTotal   int64          `json:"amount_total"`
	Metadata      stripeMetadata `json:"metadata"`
}

type paymentIntent struct {
	ID             string         `json:"id"`
	AmountReceived int64          `json:"amount_received"`
	Metadata       stripeMetadata `json:"metadata"`
}

type charge struct {
	ID             string         `json:"id"`
	PaymentIntent  string         `json:"payment_intent"`
	AmountRefunded int64          `json:"amount_refunded"`
	Metadata       stripeMetadata `json:"metadata"`
	Refunds        struct {
		Data []struct {
			ID     string `json:"id"`
			Amount int64  `json:"amount"`
		} `json:"data"`
	} `json:"refunds"`
}

type account struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// HandleStripeEvent applies one Stripe event. Events that reference
// unknown invoices are logged and acknowledged so Stripe stops retrying them.
func (s *Service) HandleStripeEvent(ctx context.Context, event StripeEvent) error {
	logger := s.logger.With().Str("event_id", event.ID).Str("event_type", event.Type).Logger()

	var err error
	switch event.Type {
	case EventCheckoutCompleted:
		var session checkoutSession
		if err = json.Unmarshal(event.Data.Object, &session); err != nil {
			break
		}
		if session.PaymentStatus != "paid" {
			logger.Debug().Str("payment_status", session.PaymentStatus).Msg("checkout not paid yet")
			return nil
		}
		// The payment intent is the shared reference with payment_intent.succeeded.
		ref := session.PaymentIntent
		if ref == "" {
			ref = session.ID
		}
		err = s.stripePayment(ctx, session.Metadata, ref, session.AmountTotal)
	case EventPaymentSucceeded:
		var intent paymentIntent
		if err = json.Unmarshal(event.Data.Object, &intent); err != nil {
			break
		}
		err = s.stripePayment(ctx, intent.Metadata, intent.ID, intent.AmountReceived)
	case EventChargeRefunded:
		var ch charge
		if err = json.Unmarshal(event.Data.Object, &ch); err != nil {
			break
		}
		err = s.stripeRefund(ctx, ch)
	case EventAccountUpdated:
		var acct account
		if err = json.Unmarshal(event.Data.Object, &acct); err != nil {
			break
		}
		if s.connect == nil {
			return nil
		}
		err = s.connect.SyncConnect(ctx, tenants.Connect{
			AccountID:        acct.ID,
			ChargesEnabled:   acct.ChargesEnabled,
			DetailsSubmitted: acct.DetailsSubmitted,
		})
	default:
		logger.Debug().Msg("ignoring stripe event")
		return nil
	}

	var rejection *paymentRejection
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errMissingMetadata):
		logger.Warn().Err(err).Msg("stripe event does not match an invoice")
		return nil
	case errors.As(err, &rejection):
		// Redelivery cannot succeed. Staff reconcile from the audit entry.
		logger.Warn().Err(err).
			Str("tenant_id", rejection.meta.TenantID).
			Str("invoice_id", rejection.meta.InvoiceID).
			Int64("amount_cents", rejection.amount).
			Msg("stripe payment rejected by invoice")
		s.audit.Log(audit.Entry{
			Action:       "invoice.stripe_payment_rejected",
			TenantID:     rejection.meta.TenantID,
			ResourceType: "invoice",
			ResourceID:   rejection.meta.InvoiceID,
			Status:       "failure",
			Details: map[string]string{
				"event_id":     event.ID,
				"event_type":   event.Type,
				"external_ref": rejection.ref,
				"amount_cents": strconv.FormatInt(rejection.amount, 10),
				"reason":       err.Error(),
			},
		})
		return nil
	default:
		return fmt.Errorf("stripe %s: %w", event.Type, err)
	}
}

var errMissingMetadata = errors.New("missing tenant_id or invoice_id metadata")

// paymentRejection is a Stripe payment or refund the invoice refused.
type paymentRejection struct {
	meta   stripeMetadata
	ref    string
	amount int64
	err    error
}

func (e *paymentRejection) Error() string { return e.err.Error() }
func (e *paymentRejection) Unwrap() error { return e.err }

func rejected(meta stripeMetadata, ref string, amount int64, err error) error {
	if errors.Is(err, ErrOverpayment) || errors.Is(err, ErrOverRefund) || errors.Is(err, errs.ErrInvalidTransition) {
		return &paymentRejection{meta: meta, ref: ref, amount: amount, err: err}
	}
	return err
}

func (s *Service) stripePayment(ctx context.Context, meta stripeMetadata, ref string, amount int64) error {
	if meta.TenantID == "" || meta.InvoiceID == "" {
		return errMissingMetadata
	}
	if amount <= 0 {
		return nil
	}
	_, _, err := s.record(ctx, meta.TenantID, meta.InvoiceID, Payment{
		AmountCents: amount,
		Method:      MethodStripe,
		ExternalRef: ref,
		ReceivedAt:  s.now(),
	})
	return rejected(meta, ref, amount, err)
}

// stripeRefund records each refund on the charge as a negative payment
// keyed by refund id. The invoice comes from the charge metadata, or else
// from the payment recorded for the charge's payment intent.
func (s *Service) stripeRefund(ctx context.Context, ch charge) error {
	meta := ch.Metadata
	if (meta.TenantID == "" || meta.InvoiceID == "") && ch.PaymentIntent != "" {
		original, err := s.repo.FindPaymentByRef(ctx, ch.PaymentIntent)
		if err != nil {
			return err
		}
		meta = stripeMetadata{TenantID: original.TenantID, InvoiceID: original.InvoiceID}
	}
	if meta.TenantID == "" || meta.InvoiceID == "" {
		return errMissingMetadata
	}

	refunds := ch.Refunds.Data
	if len(refunds) == 0 && ch.AmountRefunded > 0 {
		return s.refund(ctx, meta, "refund:"+ch.ID, ch.AmountRefunded)
	}
	for _, r := range refunds {
		if err := s.refund(ctx, meta, r.ID, r.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) refund(ctx context.Context, meta stripeMetadata, ref string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	_, _, err := s.record(ctx, meta.TenantID, meta.InvoiceID, Payment{
		AmountCents: -amount,
		Method:      MethodStripe,
		ExternalRef: ref,
		Notes:       "refund",
		ReceivedAt:  s.now(),
	})
	return rejected(meta, ref, -amount, err)
}
