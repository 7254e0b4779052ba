package email

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BreederHQ/server/internal/config"
	"github.com/BreederHQ/server/internal/domain/messaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmailAddress(t *testing.T) {
	cases := []struct {
		addr string
		ok   bool
	}{
		{"breeder@kennel.test", true},
		{"front.desk+litters@kennel.co.uk", true},
		{"Hillside Kennel <hello@hillside.test>", true},
		{"7@x.io", true},
		{"vet@[10.0.0.7]", true},
		{"", false},
		{"kennel", false},
		{"@kennel.test", false},
		{"breeder@", false},
		{"bree der@kennel.test", false},
		{"breeder@@kennel.test", false},
		{"buyer@kennel.test\r\nBcc: list@spam.test", false},
		{"buyer@kennel.test\nSubject: hi", false},
		{"buyer@kennel.test\rX-Mailer: x", false},
	}
	for _, tc := range cases {
		t.Run(tc.addr, func(t *testing.T) {
			err := validateEmailAddress(tc.addr)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateLink(t *testing.T) {
	cases := []struct {
		link string
		ok   bool
	}{
		{"https://app.breederhq.test/draft-boards/01J?tab=picks", true},
		{"http://localhost:5173/messages", true},
		{"https://[::1]/board#top", true},
		{"", false},
		{"/relative/path", false},
		{"//app.breederhq.test/board", false},
		{"https://", false},
		{"javascript:alert(1)", false},
		{"data:text/html,<script>alert(1)</script>", false},
		{"mailto:owner@kennel.test", false},
		{"ftp://files.kennel.test/contract.pdf", false},
		{"ht!tp://kennel.test", false},
	}
	for _, tc := range cases {
		t.Run(tc.link, func(t *testing.T) {
			err := validateLink(tc.link)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestThreadingHeaders(t *testing.T) {
	assert.Nil(t, threadingHeaders(messaging.OutboundEmail{To: "a@b.test"}))

	h := threadingHeaders(messaging.OutboundEmail{
		MessageID:  "<m2@in.test>",
		References: []string{"<m0@in.test>", "<m1@in.test>"},
	})
	assert.Equal(t, map[string]string{
		"Message-ID": "<m2@in.test>",
		"References": "<m0@in.test> <m1@in.test>",
	}, h)
}

func TestNewServiceRejectsBadSender(t *testing.T) {
	_, err := NewService(config.EmailConfig{Enabled: true, From: "not an address"}, zerolog.Nop())
	require.Error(t, err)

	// Disabled services never send, so the sender is not checked.
	svc, err := NewService(config.EmailConfig{From: "not an address"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, svc.resendClient)
}

func TestNewServiceTemplatesDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.html"), []byte(`<p>{{.Subject}}</p>`), 0o600))

	svc, err := NewService(config.EmailConfig{TemplatesDir: dir}, zerolog.Nop())
	require.NoError(t, err)
	out, err := svc.Render(Notification{Template: "custom", Subject: "Pick window open"})
	require.NoError(t, err)
	assert.Equal(t, "<p>Pick window open</p>", out)

	_, err = NewService(config.EmailConfig{TemplatesDir: t.TempDir()}, zerolog.Nop())
	assert.Error(t, err, "an empty templates dir matches no files")
}
