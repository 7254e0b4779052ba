// Package messaging holds tenant conversations with contacts: outbound mail
// sent through the email provider and the inbound pipeline that routes,
// scores, threads and files replies.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/contacts"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/sanitize"
	"github.com/BreederHQ/server/internal/telemetry"
	"github.com/BreederHQ/server/internal/validation"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("domain/messaging")

// SubjectWindow bounds how far back a subject match may reuse a thread.
const SubjectWindow = 30 * 24 * time.Hour

const replyTokenBytes = 15

type Config struct {
	InboundDomain string
	FromAddress   string
}

type Service struct {
	repo     Repository
	queue    DeliveryQueue
	sender   Sender
	notifier Notifier
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, queue DeliveryQueue, sender Sender, notifier Notifier, cfg Config, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Service{
		repo:     repo,
		queue:    queue,
		sender:   sender,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "messaging").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type noopNotifier struct{}

func (noopNotifier) NewMessage(context.Context, Mailbox, Thread, Message) error { return nil }

// Receive runs one inbound email through the pipeline: deduplicate, route,
// score, match the sender, resolve the thread and store the sanitized message.
func (s *Service) Receive(ctx context.Context, email InboundEmail) (Receipt, error) {
	ctx, span := tracer.Start(ctx, "messaging.Receive")
	defer span.End()

	receipt, err := s.receive(ctx, email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return receipt, err
	}
	span.SetAttributes(
		attribute.String("inbound.outcome", receipt.Outcome),
		attribute.String("inbound.verdict", receipt.Verdict),
	)
	return receipt, nil
}

func (s *Service) receive(ctx context.Context, email InboundEmail) (Receipt, error) {
	if strings.TrimSpace(email.ProviderID) == "" {
		return Receipt{}, errs.Invalid("email_id", "is required")
	}
	logger := s.logger.With().Str("provider_id", email.ProviderID).Logger()

	exists, err := s.repo.InboundExists(ctx, email.ProviderID)
	if err != nil {
		return Receipt{}, err
	}
	if exists {
		return Receipt{Outcome: OutcomeDuplicate}, nil
	}

	sender := AddressOf(email.From)
	if sender == "" || !strings.Contains(sender, "@") {
		logger.Info().Msg("inbound email without a sender address dropped")
		return Receipt{Outcome: OutcomeDropped}, nil
	}

	var (
		mailbox *Mailbox
		thread  *Thread
	)
	route := ResolveRoute(email.To, s.cfg.InboundDomain)
	switch route.Kind {
	case RouteReply:
		thread, err = s.repo.ThreadByReplyToken(ctx, route.Token)
		if err == nil {
			mailbox, err = s.repo.Mailbox(ctx, thread.TenantID)
		}
	case RouteTenant:
		mailbox, err = s.repo.MailboxBySlug(ctx, route.Slug)
	}
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return Receipt{}, err
	}
	if mailbox == nil {
		logger.Info().Str("route", route.Kind).Strs("to", email.To).Msg("inbound email has no mailbox, dropped")
		return Receipt{Outcome: OutcomeDropped}, nil
	}

	assessment := Assess(email)
	now := s.now()
	receivedAt := email.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}

	msg := Message{
		ID:         ids.New(),
		TenantID:   mailbox.TenantID,
		Direction:  DirectionInbound,
		ProviderID: email.ProviderID,
		MessageID:  strings.TrimSpace(email.MessageID),
		InReplyTo:  strings.TrimSpace(email.InReplyTo),
		From:       sender,
		To:         strings.Join(email.To, ", "),
		Subject:    strings.TrimSpace(email.Subject),
		Text:       sanitize.StripQuotedText(email.Text),
		HTML:       s.cleanHTML(email.HTML),
		Verdict:    assessment.Verdict,
		SpamScore:  assessment.Score,
		Reasons:    assessment.Reasons,
		Status:     StatusDelivered,
		CreatedAt:  receivedAt,
	}
	if assessment.Verdict == VerdictThreat {
		msg.Status = StatusQuarantined
	}
	visible := assessment.Verdict == VerdictClean || assessment.Verdict == VerdictSuspicious

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if thread != nil {
			locked, err := repo.LockThread(ctx, thread.TenantID, thread.ID)
			if err != nil {
				return err
			}
			thread = locked
		} else {
			contact, err := s.senderContact(ctx, repo, mailbox.TenantID, sender, NameOf(email.From), visible, now)
			if err != nil {
				return err
			}
			thread, err = s.resolveThread(ctx, repo, mailbox.TenantID, contact.ID, email, now)
			if err != nil {
				return err
			}
		}

		msg.ThreadID = thread.ID
		if err := repo.CreateMessage(ctx, &msg); err != nil {
			return fmt.Errorf("store inbound message: %w", err)
		}
		if visible {
			thread.UnreadCount++
			thread.LastMessageAt = receivedAt
			thread.Status = ThreadOpen
		}
		thread.UpdatedAt = now
		return repo.UpdateThread(ctx, thread)
	})
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			// Lost a race with a concurrent delivery of the same provider id.
			return Receipt{Outcome: OutcomeDuplicate}, nil
		}
		return Receipt{}, err
	}

	logger.Info().
		Str("tenant_id", mailbox.TenantID).
		Str("thread_id", thread.ID).
		Str("verdict", assessment.Verdict).
		Float64("score", assessment.Score).
		Msg("inbound email stored")

	if visible {
		if err := s.notifier.NewMessage(ctx, *mailbox, *thread, msg); err != nil {
			logger.Warn().Err(err).Msg("tenant notification failed")
		}
	}
	return Receipt{
		Outcome:   OutcomeStored,
		TenantID:  mailbox.TenantID,
		ThreadID:  thread.ID,
		MessageID: msg.ID,
		Verdict:   assessment.Verdict,
		Score:     assessment.Score,
	}, nil
}

// cleanHTML strips quoted history and sanitizes. Unparseable markup is
// sanitized as received.
func (s *Service) cleanHTML(body string) string {
	stripped, err := sanitize.StripQuotedHTML(body)
	if err != nil {
		s.logger.Debug().Err(err).Msg("quoted reply stripping failed")
		stripped = body
	}
	return sanitize.HTML(stripped)
}

// senderContact matches the sender to a contact. Unknown senders of visible
// mail become leads; unknown senders of spam or threats are filed under an
// archived contact so they stay out of the CRM.
func (s *Service) senderContact(ctx context.Context, repo Repository, tenantID, email, name string, visible bool, now time.Time) (*contacts.Contact, error) {
	contact, err := repo.SenderContact(ctx, tenantID, email)
	switch {
	case err == nil:
		if contact.ArchivedAt != nil && visible && contact.Source == contacts.SourceInboundEmail {
			if err := repo.RestoreContact(ctx, tenantID, contact.ID, now); err != nil {
				return nil, err
			}
			contact.ArchivedAt = nil
		}
		return contact, nil
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	display := name
	if display == "" {
		display = email
	}
	contact = &contacts.Contact{
		ID:          ids.New(),
		TenantID:    tenantID,
		Kind:        contacts.KindPerson,
		DisplayName: display,
		Email:       email,
		Tags:        []string{"lead"},
		Source:      contacts.SourceInboundEmail,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !visible {
		contact.ArchivedAt = &now
		contact.Tags = []string{"quarantine"}
	}
	if err := repo.CreateContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("create lead contact: %w", err)
	}
	return contact, nil
}

// resolveThread finds the conversation by message references, then by
// subject with the same contact, and otherwise opens a new thread.
func (s *Service) resolveThread(ctx context.Context, repo Repository, tenantID, contactID string, email InboundEmail, now time.Time) (*Thread, error) {
	refs := make([]string, 0, len(email.References)+1)
	if v := strings.TrimSpace(email.InReplyTo); v != "" {
		refs = append(refs, v)
	}
	for _, r := range email.References {
		if r = strings.TrimSpace(r); r != "" {
			refs = append(refs, r)
		}
	}
	if len(refs) > 0 {
		t, err := repo.ThreadByMessageIDs(ctx, tenantID, refs)
		if err == nil {
			return repo.LockThread(ctx, tenantID, t.ID)
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
	}

	normalized := NormalizeSubject(email.Subject)
	t, err := repo.RecentThread(ctx, tenantID, contactID, normalized, now.Add(-SubjectWindow))
	if err == nil {
		return repo.LockThread(ctx, tenantID, t.ID)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	subject := strings.TrimSpace(email.Subject)
	if subject == "" {
		subject = "(no subject)"
	}
	thread, err := s.newThread(tenantID, contactID, subject, now)
	if err != nil {
		return nil, err
	}
	if err := repo.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

func (s *Service) newThread(tenantID, contactID, subject string, now time.Time) (*Thread, error) {
	token, err := ids.NewToken(replyTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("reply token: %w", err)
	}
	return &Thread{
		ID:            ids.New(),
		TenantID:      tenantID,
		ContactID:     contactID,
		Subject:       subject,
		Normalized:    NormalizeSubject(subject),
		ReplyToken:    token,
		Status:        ThreadOpen,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *Service) ListThreads(ctx context.Context, tenantID string, filters ThreadFilters) (ThreadList, error) {
	switch filters.Status {
	case "", ThreadOpen, ThreadArchived:
	default:
		return ThreadList{}, errs.Invalid("status", "must be one of: open, archived")
	}
	return s.repo.ListThreads(ctx, tenantID, filters)
}

func (s *Service) GetThread(ctx context.Context, tenantID, id string) (*Thread, error) {
	return s.repo.GetThread(ctx, tenantID, id)
}

func (s *Service) ListMessages(ctx context.Context, tenantID, threadID string, filters MessageFilters) (MessageList, error) {
	if _, err := s.repo.GetThread(ctx, tenantID, threadID); err != nil {
		return MessageList{}, err
	}
	return s.repo.ListMessages(ctx, tenantID, threadID, filters)
}

func (s *Service) MarkRead(ctx context.Context, tenantID, threadID string) (*Thread, error) {
	return s.mutateThread(ctx, tenantID, threadID, func(t *Thread) error {
		t.UnreadCount = 0
		return nil
	})
}

func (s *Service) Archive(ctx context.Context, tenantID, threadID string) (*Thread, error) {
	return s.mutateThread(ctx, tenantID, threadID, func(t *Thread) error {
		if t.Status == ThreadArchived {
			return errs.Transition("thread", t.Status, ThreadArchived)
		}
		t.Status = ThreadArchived
		t.UnreadCount = 0
		return nil
	})
}

func (s *Service) mutateThread(ctx context.Context, tenantID, threadID string, fn func(*Thread) error) (*Thread, error) {
	var out *Thread
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		t, err := repo.LockThread(ctx, tenantID, threadID)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.UpdatedAt = s.now()
		if err := repo.UpdateThread(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Release moves a quarantined message into the thread as delivered mail.
func (s *Service) Release(ctx context.Context, tenantID, messageID string) (*Message, error) {
	var out *Message
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		msg, err := repo.LockMessage(ctx, tenantID, messageID)
		if err != nil {
			return err
		}
		if msg.Status != StatusQuarantined {
			return ErrNotQuarantined
		}
		thread, err := repo.LockThread(ctx, tenantID, msg.ThreadID)
		if err != nil {
			return err
		}
		msg.Status = StatusDelivered
		if err := repo.UpdateMessage(ctx, msg); err != nil {
			return err
		}
		now := s.now()
		thread.UnreadCount++
		thread.Status = ThreadOpen
		if msg.CreatedAt.After(thread.LastMessageAt) {
			thread.LastMessageAt = msg.CreatedAt
		}
		thread.UpdatedAt = now
		if err := repo.UpdateThread(ctx, thread); err != nil {
			return err
		}
		out = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("message_id", messageID).Msg("quarantined message released")
	return out, nil
}

// Reply queues an outbound message on an existing thread.
func (s *Service) Reply(ctx context.Context, tenantID, threadID string, input ReplyInput) (*Message, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	var out *Message
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		thread, err := repo.LockThread(ctx, tenantID, threadID)
		if err != nil {
			return err
		}
		msg, err := s.queueOutbound(ctx, repo, thread, ReplySubject(thread.Subject), input.Text, input.HTML)
		if err != nil {
			return err
		}
		out = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.enqueue(ctx, tenantID, out.ID)
	return out, nil
}

// Compose starts a new thread with a contact and queues its first message.
func (s *Service) Compose(ctx context.Context, tenantID string, input ComposeInput) (*Thread, *Message, error) {
	if err := validation.Struct(input); err != nil {
		return nil, nil, err
	}
	var (
		thread *Thread
		msg    *Message
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		contact, err := repo.GetContact(ctx, tenantID, ids.Normalize(input.ContactID))
		if errors.Is(err, errs.ErrNotFound) {
			return ErrUnknownContact
		}
		if err != nil {
			return err
		}
		thread, err = s.newThread(tenantID, contact.ID, strings.TrimSpace(input.Subject), s.now())
		if err != nil {
			return err
		}
		if err := repo.CreateThread(ctx, thread); err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
		msg, err = s.queueOutbound(ctx, repo, thread, thread.Subject, input.Text, input.HTML)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.enqueue(ctx, tenantID, msg.ID)
	return thread, msg, nil
}

func (s *Service) queueOutbound(ctx context.Context, repo Repository, thread *Thread, subject, text, html string) (*Message, error) {
	contact, err := repo.GetContact(ctx, thread.TenantID, thread.ContactID)
	if err != nil {
		return nil, err
	}
	if contact.Email == "" {
		return nil, ErrNoEmail
	}
	var inReplyTo string
	last, err := repo.LastInbound(ctx, thread.TenantID, thread.ID)
	switch {
	case err == nil:
		inReplyTo = last.MessageID
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	now := s.now()
	msgID := ids.New()
	msg := &Message{
		ID:        msgID,
		TenantID:  thread.TenantID,
		ThreadID:  thread.ID,
		Direction: DirectionOutbound,
		MessageID: "<" + strings.ToLower(msgID) + "@" + s.cfg.InboundDomain + ">",
		InReplyTo: inReplyTo,
		From:      s.cfg.FromAddress,
		To:        contact.Email,
		Subject:   subject,
		Text:      strings.TrimSpace(text),
		HTML:      sanitize.HTML(html),
		Verdict:   VerdictClean,
		Reasons:   []string{},
		Status:    StatusQueued,
		CreatedAt: now,
	}
	if err := repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("queue message: %w", err)
	}
	thread.LastMessageAt = now
	thread.Status = ThreadOpen
	thread.UpdatedAt = now
	if err := repo.UpdateThread(ctx, thread); err != nil {
		return nil, err
	}
	return msg, nil
}

// enqueue hands the message to the delivery queue. A failure leaves the
// message queued; it is logged rather than returned because the message is
// already stored.
func (s *Service) enqueue(ctx context.Context, tenantID, messageID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueDelivery(ctx, tenantID, messageID); err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Str("message_id", messageID).Msg("enqueue delivery failed")
	}
}

// Deliver sends a queued outbound message. Messages no longer queued are
// skipped so retried jobs never send twice.
func (s *Service) Deliver(ctx context.Context, tenantID, messageID string) error {
	msg, err := s.repo.GetMessage(ctx, tenantID, messageID)
	if err != nil {
		return err
	}
	if msg.Direction != DirectionOutbound || msg.Status != StatusQueued {
		return nil
	}
	thread, err := s.repo.GetThread(ctx, tenantID, msg.ThreadID)
	if err != nil {
		return err
	}
	if s.sender == nil {
		return errors.New("email sender not configured")
	}

	out := OutboundEmail{
		From:      msg.From,
		To:        msg.To,
		ReplyTo:   ReplyAddress(thread.ReplyToken, s.cfg.InboundDomain),
		Subject:   msg.Subject,
		Text:      msg.Text,
		HTML:      msg.HTML,
		MessageID: msg.MessageID,
		InReplyTo: msg.InReplyTo,
		Tags:      map[string]string{"tenant_id": tenantID, "message_id": msg.ID},
	}
	if msg.InReplyTo != "" {
		out.References = []string{msg.InReplyTo}
	}
	providerID, err := s.sender.Send(ctx, out)
	if err != nil {
		return fmt.Errorf("send message %s: %w", msg.ID, err)
	}

	now := s.now()
	msg.Status = StatusSent
	msg.ProviderID = providerID
	msg.SentAt = &now
	msg.Error = ""
	return s.repo.UpdateMessage(ctx, msg)
}

// MarkFailed records that delivery was abandoned.
func (s *Service) MarkFailed(ctx context.Context, tenantID, messageID, reason string) error {
	msg, err := s.repo.GetMessage(ctx, tenantID, messageID)
	if err != nil {
		return err
	}
	if msg.Status != StatusQueued {
		return nil
	}
	msg.Status = StatusFailed
	msg.Error = reason
	s.logger.Warn().Str("tenant_id", tenantID).Str("message_id", messageID).Str("reason", reason).Msg("outbound message failed")
	return s.repo.UpdateMessage(ctx, msg)
}
