package messaging

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/contacts"
	"github.com/BreederHQ/server/internal/domain/errs"
)

type memoryRepo struct {
	threads   map[string]*Thread
	messages  map[string]*Message
	contacts  map[string]*contacts.Contact
	mailboxes map[string]Mailbox
	slugs     map[string]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		threads:   map[string]*Thread{},
		messages:  map[string]*Message{},
		contacts:  map[string]*contacts.Contact{},
		mailboxes: map[string]Mailbox{},
		slugs:     map[string]string{},
	}
}

func (m *memoryRepo) addMailbox(tenantID, slug, name string) {
	m.mailboxes[tenantID] = Mailbox{TenantID: tenantID, Name: name, NotifyEmail: "owner@" + slug + ".test"}
	m.slugs[slug] = tenantID
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	threads := make(map[string]*Thread, len(m.threads))
	for k, v := range m.threads {
		cp := *v
		threads[k] = &cp
	}
	messages := make(map[string]*Message, len(m.messages))
	for k, v := range m.messages {
		cp := *v
		messages[k] = &cp
	}
	people := make(map[string]*contacts.Contact, len(m.contacts))
	for k, v := range m.contacts {
		cp := *v
		people[k] = &cp
	}
	if err := fn(ctx, m); err != nil {
		m.threads, m.messages, m.contacts = threads, messages, people
		return err
	}
	return nil
}

func (m *memoryRepo) CreateThread(_ context.Context, t *Thread) error {
	cp := *t
	m.threads[t.ID] = &cp
	return nil
}

func (m *memoryRepo) GetThread(_ context.Context, tenantID, id string) (*Thread, error) {
	t, ok := m.threads[id]
	if !ok || t.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memoryRepo) LockThread(ctx context.Context, tenantID, id string) (*Thread, error) {
	return m.GetThread(ctx, tenantID, id)
}

func (m *memoryRepo) UpdateThread(_ context.Context, t *Thread) error {
	cp := *t
	m.threads[t.ID] = &cp
	return nil
}

func (m *memoryRepo) ListThreads(_ context.Context, tenantID string, _ ThreadFilters) (ThreadList, error) {
	var out []Thread
	for _, t := range m.threads {
		if t.TenantID == tenantID {
			out = append(out, *t)
		}
	}
	return ThreadList{Items: out}, nil
}

func (m *memoryRepo) ThreadByReplyToken(_ context.Context, token string) (*Thread, error) {
	for _, t := range m.threads {
		if t.ReplyToken == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memoryRepo) ThreadByMessageIDs(ctx context.Context, tenantID string, messageIDs []string) (*Thread, error) {
	for _, msg := range m.messages {
		if msg.TenantID != tenantID || msg.MessageID == "" {
			continue
		}
		for _, id := range messageIDs {
			if msg.MessageID == id {
				return m.GetThread(ctx, tenantID, msg.ThreadID)
			}
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memoryRepo) RecentThread(_ context.Context, tenantID, contactID, normalized string, since time.Time) (*Thread, error) {
	var best *Thread
	for _, t := range m.threads {
		if t.TenantID != tenantID || t.ContactID != contactID || t.Normalized != normalized ||
			t.Status != ThreadOpen || t.LastMessageAt.Before(since) {
			continue
		}
		if best == nil || t.LastMessageAt.After(best.LastMessageAt) {
			best = t
		}
	}
	if best == nil {
		return nil, errs.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memoryRepo) CreateMessage(_ context.Context, msg *Message) error {
	if msg.ProviderID != "" && msg.Direction == DirectionInbound {
		for _, existing := range m.messages {
			if existing.ProviderID == msg.ProviderID && existing.Direction == DirectionInbound {
				return errs.ErrConflict
			}
		}
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memoryRepo) GetMessage(_ context.Context, tenantID, id string) (*Message, error) {
	msg, ok := m.messages[id]
	if !ok || msg.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memoryRepo) LockMessage(ctx context.Context, tenantID, id string) (*Message, error) {
	return m.GetMessage(ctx, tenantID, id)
}

func (m *memoryRepo) UpdateMessage(_ context.Context, msg *Message) error {
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memoryRepo) threadMessages(threadID string) []Message {
	var out []Message
	for _, msg := range m.messages {
		if msg.ThreadID == threadID {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memoryRepo) ListMessages(_ context.Context, _ string, threadID string, filters MessageFilters) (MessageList, error) {
	var out []Message
	for _, msg := range m.threadMessages(threadID) {
		if msg.Status == StatusQuarantined && !filters.IncludeQuarantined {
			continue
		}
		out = append(out, msg)
	}
	return MessageList{Items: out}, nil
}

func (m *memoryRepo) LastInbound(_ context.Context, _ string, threadID string) (*Message, error) {
	msgs := m.threadMessages(threadID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Direction == DirectionInbound {
			cp := msgs[i]
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memoryRepo) InboundExists(_ context.Context, providerID string) (bool, error) {
	for _, msg := range m.messages {
		if msg.ProviderID == providerID && msg.Direction == DirectionInbound {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) Mailbox(_ context.Context, tenantID string) (*Mailbox, error) {
	mb, ok := m.mailboxes[tenantID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &mb, nil
}

func (m *memoryRepo) MailboxBySlug(ctx context.Context, slug string) (*Mailbox, error) {
	tenantID, ok := m.slugs[slug]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return m.Mailbox(ctx, tenantID)
}

func (m *memoryRepo) SenderContact(_ context.Context, tenantID, email string) (*contacts.Contact, error) {
	for _, c := range m.contacts {
		if c.TenantID == tenantID && strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memoryRepo) GetContact(_ context.Context, tenantID, id string) (*contacts.Contact, error) {
	c, ok := m.contacts[id]
	if !ok || c.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryRepo) CreateContact(_ context.Context, c *contacts.Contact) error {
	cp := *c
	m.contacts[c.ID] = &cp
	return nil
}

func (m *memoryRepo) RestoreContact(_ context.Context, tenantID, id string, _ time.Time) error {
	c, ok := m.contacts[id]
	if !ok || c.TenantID != tenantID {
		return errs.ErrNotFound
	}
	c.ArchivedAt = nil
	return nil
}

type recordingQueue struct {
	enqueued []string
	err      error
}

func (q *recordingQueue) EnqueueDelivery(_ context.Context, _ string, messageID string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, messageID)
	return nil
}

type recordingSender struct {
	sent []OutboundEmail
	err  error
}

func (s *recordingSender) Send(_ context.Context, email OutboundEmail) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, email)
	return "re_" + email.To, nil
}

type recordingNotifier struct {
	messages []Message
}

func (n *recordingNotifier) NewMessage(_ context.Context, _ Mailbox, _ Thread, msg Message) error {
	n.messages = append(n.messages, msg)
	return errors.New("smtp down")
}
