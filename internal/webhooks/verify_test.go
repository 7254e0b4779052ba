package webhooks

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSvixSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("svix-test-secret-key"))

func fixedVerifier(secret string, now time.Time) *Verifier {
	v := NewVerifier(secret, 0)
	v.now = func() time.Time { return now }
	return v
}

func TestVerifyStripe(t *testing.T) {
	now := time.Now()
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","account":"acct_9","data":{"object":{"id":"pi_1"}}}`)
	v := NewVerifier("whsec_stripe", 0)

	event, err := v.VerifyStripe(body, SignStripe("whsec_stripe", now, body))
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, "payment_intent.succeeded", event.Type)
	require.Equal(t, "acct_9", event.Account)
	require.JSONEq(t, `{"id":"pi_1"}`, string(event.Data.Object))

	t.Run("rotated secrets send several v1 values", func(t *testing.T) {
		good := SignStripe("whsec_stripe", now, body)
		_, sigs, _ := strings.Cut(good, ",")
		header := "t=" + strconv.FormatInt(now.Unix(), 10) + ",v1=deadbeef," + sigs
		_, err := v.VerifyStripe(body, header)
		require.NoError(t, err)
	})
	t.Run("tampered body", func(t *testing.T) {
		_, err := v.VerifyStripe([]byte(`{"id":"evt_2"}`), SignStripe("whsec_stripe", now, body))
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.VerifyStripe(body, SignStripe("other", now, body))
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("stale timestamp", func(t *testing.T) {
		_, err := v.VerifyStripe(body, SignStripe("whsec_stripe", now.Add(-6*time.Minute), body))
		require.ErrorIs(t, err, ErrTimestampSkew)
	})
	t.Run("within tolerance", func(t *testing.T) {
		_, err := v.VerifyStripe(body, SignStripe("whsec_stripe", now.Add(-4*time.Minute), body))
		require.NoError(t, err)
	})
	t.Run("missing parts", func(t *testing.T) {
		_, err := v.VerifyStripe(body, "")
		require.ErrorIs(t, err, ErrMissingSignature)
		_, err = v.VerifyStripe(body, "t="+strconv.FormatInt(now.Unix(), 10))
		require.ErrorIs(t, err, ErrMissingSignature)
	})
	t.Run("signed garbage", func(t *testing.T) {
		garbage := []byte(`not json`)
		_, err := v.VerifyStripe(garbage, SignStripe("whsec_stripe", now, garbage))
		require.ErrorIs(t, err, ErrMalformedEvent)
	})
	t.Run("no secret configured", func(t *testing.T) {
		_, err := NewVerifier("", 0).VerifyStripe(body, "t=1,v1=00")
		require.ErrorIs(t, err, ErrNoSecret)
	})
}

func TestVerifySvix(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{"type":"email.received","data":{"email_id":"em_1"}}`)
	v := fixedVerifier(testSvixSecret, now)

	signed := func(at time.Time) http.Header {
		h := http.Header{}
		require.NoError(t, SignSvix(testSvixSecret, "msg_1", at, body, h))
		return h
	}

	require.NoError(t, v.VerifySvix(body, signed(now)))

	t.Run("any listed v1 signature may match", func(t *testing.T) {
		h := signed(now)
		h.Set("svix-signature", "v1,bm9wZQ== v2,ignored "+h.Get("svix-signature"))
		require.NoError(t, v.VerifySvix(body, h))
	})
	t.Run("id is part of the signed content", func(t *testing.T) {
		h := signed(now)
		h.Set("svix-id", "msg_2")
		require.ErrorIs(t, v.VerifySvix(body, h), ErrInvalidSignature)
	})
	t.Run("tampered body", func(t *testing.T) {
		require.ErrorIs(t, v.VerifySvix([]byte(`{}`), signed(now)), ErrInvalidSignature)
	})
	t.Run("future timestamp", func(t *testing.T) {
		require.ErrorIs(t, v.VerifySvix(body, signed(now.Add(10*time.Minute))), ErrTimestampSkew)
	})
	t.Run("missing headers", func(t *testing.T) {
		h := signed(now)
		h.Del("svix-timestamp")
		require.ErrorIs(t, v.VerifySvix(body, h), ErrMissingSignature)
	})
	t.Run("garbage timestamp", func(t *testing.T) {
		h := signed(now)
		h.Set("svix-timestamp", "yesterday")
		require.ErrorIs(t, v.VerifySvix(body, h), ErrInvalidSignature)
	})
	t.Run("no secret configured", func(t *testing.T) {
		require.ErrorIs(t, fixedVerifier("", now).VerifySvix(body, signed(now)), ErrNoSecret)
	})
}
