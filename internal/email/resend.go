package email

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/resend/resend-go/v2"
)

const defaultRateLimitBackoff = time.Minute

// RateLimitedError means Resend refused the send for now. Workers snooze
// the job for RetryAfter instead of spending an attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("email rate limit exceeded, retry in %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// deliver hands one request to Resend and returns the provider email id.
func (s *Service) deliver(ctx context.Context, req *resend.SendEmailRequest) (string, error) {
	if s.resendClient == nil {
		return "", errors.New("resend client not initialized")
	}

	sent, err := s.resendClient.Emails.SendWithContext(ctx, req)
	if err != nil {
		var limited *resend.RateLimitError
		if errors.As(err, &limited) {
			wait := defaultRateLimitBackoff
			if secs, convErr := strconv.Atoi(limited.Reset); convErr == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
			s.logger.Warn().
				Str("limit", limited.Limit).
				Str("remaining", limited.Remaining).
				Dur("retry_after", wait).
				Msg("resend rate limited")
			return "", &RateLimitedError{RetryAfter: wait, Err: err}
		}
		return "", fmt.Errorf("resend API error: %w", err)
	}

	s.logger.Debug().Str("email_id", sent.Id).Strs("to", req.To).Str("subject", req.Subject).Msg("email accepted by resend")
	return sent.Id, nil
}
