package webhooks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseResendInbound(t *testing.T) {
	body := []byte(`{
		"type": "email.received",
		"created_at": "2026-04-01T10:00:00Z",
		"data": {
			"email_id": "em_42",
			"from": "Ann Buyer <ann@example.com>",
			"to": ["sunny-acres@in.breederhq.test"],
			"cc": ["reply+tok@in.breederhq.test"],
			"subject": "Re: Spring litter",
			"text": "Still available?",
			"html": "<p>Still available?</p>",
			"headers": [
				{"name": "Message-ID", "value": "<m2@example.com>"},
				{"name": "In-Reply-To", "value": "<m1@breederhq.test>"},
				{"name": "References", "value": "<m0@example.com> <m1@breederhq.test>"},
				{"name": "Received", "value": "first"},
				{"name": "Received", "value": "second"}
			],
			"attachments": [{"filename": "photo.jpg", "content_type": "image/jpeg", "size": 2048}]
		}
	}`)

	email, err := ParseResendInbound(body)
	require.NoError(t, err)
	require.Equal(t, "em_42", email.ProviderID)
	require.Equal(t, "<m2@example.com>", email.MessageID)
	require.Equal(t, "<m1@breederhq.test>", email.InReplyTo)
	require.Equal(t, []string{"<m0@example.com>", "<m1@breederhq.test>"}, email.References)
	require.Equal(t, []string{"sunny-acres@in.breederhq.test", "reply+tok@in.breederhq.test"}, email.To)
	require.Equal(t, "first", email.Header("received"))
	require.Equal(t, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), email.ReceivedAt)
	require.Len(t, email.Attachments, 1)
	require.Equal(t, int64(2048), email.Attachments[0].Size)
}

func TestParseResendInboundObjectHeaders(t *testing.T) {
	body := []byte(`{
		"type": "email.received",
		"data": {
			"email_id": "em_7",
			"created_at": "2026-04-02T08:30:00Z",
			"from": "bob@example.com",
			"to": ["kennel@in.breederhq.test"],
			"message_id": "<top@example.com>",
			"references": "<a@x> <b@x>",
			"headers": {"X-Spam-Flag": "NO", "Message-ID": "<header@example.com>"}
		}
	}`)

	email, err := ParseResendInbound(body)
	require.NoError(t, err)
	require.Equal(t, "<top@example.com>", email.MessageID)
	require.Equal(t, []string{"<a@x>", "<b@x>"}, email.References)
	require.Equal(t, "NO", email.Header("x-spam-flag"))
	require.Equal(t, time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC), email.ReceivedAt)
}

func TestParseResendInboundIgnoresOtherEvents(t *testing.T) {
	_, err := ParseResendInbound([]byte(`{"type":"email.delivered","data":{"email_id":"em_1"}}`))
	require.ErrorIs(t, err, ErrIgnoredEvent)

	_, err = ParseResendInbound([]byte(`not json`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrIgnoredEvent)
}
