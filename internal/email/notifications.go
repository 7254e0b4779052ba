package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/draftboard"
	"github.com/BreederHQ/server/internal/domain/messaging"
)

// Notification templates.
const (
	TemplatePickOnClock = "pick_on_clock"
	TemplateNewMessage  = "new_message"
)

const previewLength = 280

// Notification is a rendered-at-send-time email. It is serialized into job
// arguments, so Data holds only strings.
type Notification struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Link     string            `json:"link,omitempty"`
	Data     map[string]string `json:"data"`
}

// PickOnClock tells a buyer that it is their turn on a draft board.
func PickOnClock(to, buyerName string, board draftboard.Board, pick draftboard.Pick, boardURL string) Notification {
	deadline := "No deadline"
	if pick.DeadlineAt != nil {
		deadline = pick.DeadlineAt.UTC().Format("Mon Jan 2, 15:04 MST")
	}
	return Notification{
		Template: TemplatePickOnClock,
		To:       to,
		Subject:  fmt.Sprintf("You're on the clock: %s", board.Name),
		Link:     boardURL,
		Data: map[string]string{
			"BuyerName": buyerName,
			"BoardName": board.Name,
			"Position":  fmt.Sprintf("%d", pick.Position),
			"Deadline":  deadline,
		},
	}
}

// NewMessage tells a tenant that a buyer wrote in.
func NewMessage(mailbox messaging.Mailbox, thread messaging.Thread, msg messaging.Message, threadURL string) Notification {
	sender := messaging.NameOf(msg.From)
	if sender == "" {
		sender = messaging.AddressOf(msg.From)
	}
	subject := thread.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	data := map[string]string{
		"Tenant":  mailbox.Name,
		"Sender":  sender,
		"Subject": subject,
		"Preview": preview(msg.Text),
	}
	if msg.Verdict == messaging.VerdictSuspicious {
		data["Warning"] = "This message looks suspicious. Check links before opening them."
	}
	return Notification{
		Template: TemplateNewMessage,
		To:       mailbox.NotifyEmail,
		Subject:  fmt.Sprintf("New message from %s: %s", sender, subject),
		Link:     threadURL,
		Data:     data,
	}
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "…"
}

// Year is exposed to templates for the footer.
func (Notification) Year() int {
	return time.Now().Year()
}
