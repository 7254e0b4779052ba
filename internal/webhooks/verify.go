package webhooks

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/BreederHQ/server/internal/domain/invoices"
	"github.com/stripe/stripe-go/v82/webhook"
	svix "github.com/svix/svix-webhooks/go"
)

// DefaultTolerance is the accepted clock skew between signer and receiver.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("webhook signature missing")
	ErrInvalidSignature = errors.New("webhook signature invalid")
	ErrTimestampSkew    = errors.New("webhook timestamp outside tolerance")
	ErrNoSecret         = errors.New("webhook secret not configured")
	ErrMalformedEvent   = errors.New("webhook payload malformed")
)

// Verifier checks webhook signatures against a shared secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// VerifyStripe validates a Stripe-Signature header and decodes the event.
// A correctly signed body that is not an event yields ErrMalformedEvent.
func (v *Verifier) VerifyStripe(body []byte, header string) (invoices.StripeEvent, error) {
	var out invoices.StripeEvent
	if v.secret == "" {
		return out, ErrNoSecret
	}
	if header == "" {
		return out, ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(body, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case err == nil:
	case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader):
		return out, ErrMissingSignature
	case errors.Is(err, webhook.ErrNoValidSignature):
		return out, ErrInvalidSignature
	case errors.Is(err, webhook.ErrTooOld):
		return out, ErrTimestampSkew
	default:
		return out, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out.ID = event.ID
	out.Type = string(event.Type)
	out.Account = event.Account
	if event.Data != nil {
		out.Data.Object = event.Data.Raw
	}
	return out, nil
}

// VerifySvix validates the svix-id, svix-timestamp and svix-signature headers.
func (v *Verifier) VerifySvix(body []byte, headers http.Header) error {
	if v.secret == "" {
		return ErrNoSecret
	}
	if headers.Get("svix-id") == "" || headers.Get("svix-timestamp") == "" || headers.Get("svix-signature") == "" {
		return ErrMissingSignature
	}
	if err := v.checkTimestamp(headers.Get("svix-timestamp")); err != nil {
		return err
	}

	wh, err := svix.NewWebhook(v.secret)
	if err != nil {
		return fmt.Errorf("svix secret: %w", err)
	}
	if err := wh.VerifyIgnoringTimestamp(body, headers); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// checkTimestamp applies the configured tolerance in both directions.
func (v *Verifier) checkTimestamp(raw string) error {
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrInvalidSignature, raw)
	}
	skew := v.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return ErrTimestampSkew
	}
	return nil
}

// SignStripe builds a Stripe-Signature header. Used by tests and local tooling.
func SignStripe(secret string, at time.Time, body []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

// SignSvix sets Svix headers for body. Used by tests and local tooling.
func SignSvix(secret, id string, at time.Time, body []byte, headers http.Header) error {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return fmt.Errorf("svix secret: %w", err)
	}
	sig, err := wh.Sign(id, at, body)
	if err != nil {
		return err
	}
	headers.Set("svix-id", id)
	headers.Set("svix-timestamp", strconv.FormatInt(at.Unix(), 10))
	headers.Set("svix-signature", sig)
	return nil
}
