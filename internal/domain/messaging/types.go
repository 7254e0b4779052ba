package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/contacts"
	"github.com/BreederHQ/server/internal/domain/errs"
)

const (
	ThreadOpen     = "open"
	ThreadArchived = "archived"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message statuses. Inbound mail is delivered or quarantined; outbound mail
// moves queued -> sent or failed.
const (
	StatusDelivered   = "delivered"
	StatusQuarantined = "quarantined"
	StatusQueued      = "queued"
	StatusSent        = "sent"
	StatusFailed      = "failed"
)

const (
	VerdictClean      = "clean"
	VerdictSuspicious = "suspicious"
	VerdictSpam       = "spam"
	VerdictThreat     = "threat"
)

// Receipt outcomes of an inbound delivery.
const (
	OutcomeStored    = "stored"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
)

var (
	ErrNotQuarantined = errs.New(errs.ErrInvalidTransition, "message is not quarantined")
	ErrNoEmail        = errs.Invalid("contact_id", "contact has no email address")
	ErrUnknownContact = errs.New(errs.ErrInvalidReference, "contact does not exist in this tenant")
)

type Thread struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"-"`
	ContactID     string    `json:"contact_id"`
	Subject       string    `json:"subject"`
	Normalized    string    `json:"-"`
	ReplyToken    string    `json:"-"`
	Status        string    `json:"status"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Message struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"-"`
	ThreadID   string     `json:"thread_id"`
	Direction  string     `json:"direction"`
	ProviderID string     `json:"provider_id,omitempty"`
	MessageID  string     `json:"message_id,omitempty"`
	InReplyTo  string     `json:"in_reply_to,omitempty"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	Subject    string     `json:"subject"`
	Text       string     `json:"text"`
	HTML       string     `json:"html,omitempty"`
	Verdict    string     `json:"verdict"`
	SpamScore  float64    `json:"spam_score"`
	Reasons    []string   `json:"reasons"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Attachment is attachment metadata; content is never stored.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// InboundEmail is a received email as reported by the provider webhook.
type InboundEmail struct {
	ProviderID  string
	MessageID   string
	InReplyTo   string
	References  []string
	From        string
	To          []string
	Subject     string
	Text        string
	HTML        string
	Headers     map[string]string
	Attachments []Attachment
	ReceivedAt  time.Time
}

// Header returns a header value by case-insensitive name.
func (e InboundEmail) Header(name string) string {
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Receipt reports what the pipeline did with one inbound email.
type Receipt struct {
	Outcome   string  `json:"status"`
	TenantID  string  `json:"tenant_id,omitempty"`
	ThreadID  string  `json:"thread_id,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
	Verdict   string  `json:"verdict,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

// Mailbox is the tenant side of a conversation.
type Mailbox struct {
	TenantID    string
	Name        string
	NotifyEmail string
}

// OutboundEmail is one message handed to the email provider.
type OutboundEmail struct {
	From       string
	To         string
	ReplyTo    string
	Subject    string
	Text       string
	HTML       string
	MessageID  string
	InReplyTo  string
	References []string
	Tags       map[string]string
}

type ReplyInput struct {
	Text string `json:"text" validate:"required,max=50000"`
	HTML string `json:"html" validate:"max=200000"`
}

type ComposeInput struct {
	ContactID string `json:"contact_id" validate:"required,ulid"`
	Subject   string `json:"subject" validate:"required,max=300"`
	Text      string `json:"text" validate:"required,max=50000"`
	HTML      string `json:"html" validate:"max=200000"`
}

type ThreadFilters struct {
	Status    string
	ContactID string
	Limit     int
	After     string
}

type ThreadList struct {
	Items      []Thread `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type MessageFilters struct {
	// IncludeQuarantined lists quarantined messages too; they are hidden by default.
	IncludeQuarantined bool
	Limit              int
	After              string
}

type MessageList struct {
	Items      []Message `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	CreateThread(ctx context.Context, t *Thread) error
	GetThread(ctx context.Context, tenantID, id string) (*Thread, error)
	LockThread(ctx context.Context, tenantID, id string) (*Thread, error)
	UpdateThread(ctx context.Context, t *Thread) error
	ListThreads(ctx context.Context, tenantID string, filters ThreadFilters) (ThreadList, error)
	ThreadByReplyToken(ctx context.Context, token string) (*Thread, error)
	ThreadByMessageIDs(ctx context.Context, tenantID string, messageIDs []string) (*Thread, error)
	RecentThread(ctx context.Context, tenantID, contactID, normalizedSubject string, since time.Time) (*Thread, error)

	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, tenantID, id string) (*Message, error)
	LockMessage(ctx context.Context, tenantID, id string) (*Message, error)
	UpdateMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, tenantID, threadID string, filters MessageFilters) (MessageList, error)
	LastInbound(ctx context.Context, tenantID, threadID string) (*Message, error)
	InboundExists(ctx context.Context, providerID string) (bool, error)

	Mailbox(ctx context.Context, tenantID string) (*Mailbox, error)
	MailboxBySlug(ctx context.Context, slug string) (*Mailbox, error)

	// SenderContact finds the contact with this email, archived or not.
	SenderContact(ctx context.Context, tenantID, email string) (*contacts.Contact, error)
	GetContact(ctx context.Context, tenantID, id string) (*contacts.Contact, error)
	CreateContact(ctx context.Context, c *contacts.Contact) error
	RestoreContact(ctx context.Context, tenantID, id string, at time.Time) error
}

// DeliveryQueue schedules an outbound message for sending.
type DeliveryQueue interface {
	EnqueueDelivery(ctx context.Context, tenantID, messageID string) error
}

// Sender hands a message to the email provider and returns its id.
type Sender interface {
	Send(ctx context.Context, email OutboundEmail) (string, error)
}

// Notifier tells the tenant about new inbound mail.
type Notifier interface {
	NewMessage(ctx context.Context, mailbox Mailbox, thread Thread, msg Message) error
}
