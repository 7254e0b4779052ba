package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/messaging"
)

// ResendInboundEvent is the event type Resend sends for received mail.
const ResendInboundEvent = "email.received"

// ErrIgnoredEvent reports a well-formed delivery of an event type we do not handle.
var ErrIgnoredEvent = errors.New("webhook event type ignored")

type resendEnvelope struct {
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

type resendInbound struct {
	EmailID     string             `json:"email_id"`
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Cc          []string           `json:"cc"`
	Subject     string             `json:"subject"`
	MessageID   string             `json:"message_id"`
	InReplyTo   string             `json:"in_reply_to"`
	References  stringList         `json:"references"`
	Text        string             `json:"text"`
	HTML        string             `json:"html"`
	Headers     headerSet          `json:"headers"`
	Attachments []resendAttachment `json:"attachments"`
	CreatedAt   time.Time          `json:"created_at"`
}

type resendAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// ParseResendInbound decodes an email.received delivery. Other event types
// return ErrIgnoredEvent.
func ParseResendInbound(body []byte) (messaging.InboundEmail, error) {
	var env resendEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return messaging.InboundEmail{}, fmt.Errorf("decode resend event: %w", err)
	}
	if env.Type != ResendInboundEvent {
		return messaging.InboundEmail{}, ErrIgnoredEvent
	}
	var data resendInbound
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return messaging.InboundEmail{}, fmt.Errorf("decode resend inbound email: %w", err)
	}

	headers := map[string]string(data.Headers)
	email := messaging.InboundEmail{
		ProviderID: data.EmailID,
		MessageID:  firstNonEmpty(data.MessageID, lookup(headers, "Message-ID")),
		InReplyTo:  firstNonEmpty(data.InReplyTo, lookup(headers, "In-Reply-To")),
		References: []string(data.References),
		From:       data.From,
		To:         append(append([]string{}, data.To...), data.Cc...),
		Subject:    data.Subject,
		Text:       data.Text,
		HTML:       data.HTML,
		Headers:    headers,
		ReceivedAt: data.CreatedAt,
	}
	if len(email.References) == 0 {
		email.References = strings.Fields(lookup(headers, "References"))
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = env.CreatedAt
	}
	for _, a := range data.Attachments {
		email.Attachments = append(email.Attachments, messaging.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return email, nil
}

// stringList accepts either a JSON array of strings or one space-separated string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = strings.Fields(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// headerSet accepts headers as an object or as a list of {name, value} pairs.
// Repeated names keep the first value.
type headerSet map[string]string

func (h *headerSet) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	out := map[string]string{}
	if b[0] == '{' {
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
		*h = out
		return nil
	}
	var pairs []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &pairs); err != nil {
		return err
	}
	for _, p := range pairs {
		if _, seen := out[p.Name]; !seen {
			out[p.Name] = p.Value
		}
	}
	*h = out
	return nil
}

func lookup(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
