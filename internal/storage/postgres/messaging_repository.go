package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/contacts"
	"github.com/BreederHQ/server/internal/domain/messaging"
	"github.com/jackc/pgx/v5"
)

var _ messaging.Repository = (*MessagingRepository)(nil)

type MessagingRepository struct {
	conn
}

func (r *MessagingRepository) WithTx(ctx context.Context, fn func(context.Context, messaging.Repository) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &MessagingRepository{conn: conn{pool: r.pool, tx: tx}})
	})
}

const threadColumns = `id, tenant_id, contact_id, subject, normalized_subject, reply_token, status, last_message_at,
       unread_count, created_at, updated_at`

func scanThread(row pgx.Row) (*messaging.Thread, error) {
	var t messaging.Thread
	if err := row.Scan(&t.ID, &t.TenantID, &t.ContactID, &t.Subject, &t.Normalized, &t.ReplyToken, &t.Status,
		&t.LastMessageAt, &t.UnreadCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *MessagingRepository) thread(ctx context.Context, op, where string, args ...any) (*messaging.Thread, error) {
	t, err := scanThread(r.queryer().QueryRow(ctx, `SELECT `+threadColumns+` FROM threads WHERE `+where, args...))
	if err != nil {
		return nil, mapError(op, err)
	}
	return t, nil
}

func (r *MessagingRepository) CreateThread(ctx context.Context, t *messaging.Thread) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO threads (id, tenant_id, contact_id, subject, normalized_subject, reply_token, status, last_message_at,
                     unread_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.TenantID, t.ContactID, t.Subject, t.Normalized, t.ReplyToken, t.Status, t.LastMessageAt.UTC(),
		t.UnreadCount, t.CreatedAt, t.UpdatedAt)
	return mapError("create thread", err)
}

func (r *MessagingRepository) GetThread(ctx context.Context, tenantID, id string) (*messaging.Thread, error) {
	return r.thread(ctx, "get thread", `tenant_id = $1 AND id = $2`, tenantID, id)
}

func (r *MessagingRepository) LockThread(ctx context.Context, tenantID, id string) (*messaging.Thread, error) {
	return r.thread(ctx, "lock thread", `tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id)
}

func (r *MessagingRepository) UpdateThread(ctx context.Context, t *messaging.Thread) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE threads SET status = $3, last_message_at = $4, unread_count = $5, updated_at = $6
 WHERE tenant_id = $1 AND id = $2`,
		t.TenantID, t.ID, t.Status, t.LastMessageAt.UTC(), t.UnreadCount, t.UpdatedAt)
	return expectOne("update thread", tag, err)
}

// ListThreads orders by most recent activity; the cursor carries (last_message_at, id).
func (r *MessagingRepository) ListThreads(ctx context.Context, tenantID string, filters messaging.ThreadFilters) (messaging.ThreadList, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return messaging.ThreadList{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+threadColumns+`
  FROM threads
 WHERE tenant_id = $1
   AND ($2::text IS NULL OR status = $2)
   AND ($3::text IS NULL OR contact_id = $3)
   AND ($4::timestamptz IS NULL OR (last_message_at, id) < ($4, $5))
 ORDER BY last_message_at DESC, id DESC
 LIMIT $6`, tenantID, nullableString(filters.Status), nullableString(filters.ContactID), cursorTS, cursorID, limit+1)
	if err != nil {
		return messaging.ThreadList{}, mapError("list threads", err)
	}
	defer rows.Close()
	items := make([]messaging.Thread, 0, limit+1)
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return messaging.ThreadList{}, fmt.Errorf("scan thread: %w", err)
		}
		items = append(items, *t)
	}
	if err := rows.Err(); err != nil {
		return messaging.ThreadList{}, mapError("list threads", err)
	}
	items, next := pagination.Trim(items, limit, func(t messaging.Thread) (time.Time, string) {
		return t.LastMessageAt, t.ID
	})
	return messaging.ThreadList{Items: items, NextCursor: next}, nil
}

func (r *MessagingRepository) ThreadByReplyToken(ctx context.Context, token string) (*messaging.Thread, error) {
	return r.thread(ctx, "thread by reply token", `reply_token = $1`, token)
}

func (r *MessagingRepository) ThreadByMessageIDs(ctx context.Context, tenantID string, messageIDs []string) (*messaging.Thread, error) {
	t, err := scanThread(r.queryer().QueryRow(ctx, `
SELECT `+prefixed("t.", threadColumns)+`
  FROM threads t
  JOIN messages m ON m.thread_id = t.id
 WHERE m.tenant_id = $1 AND m.message_id = ANY($2::text[])
 ORDER BY m.created_at DESC
 LIMIT 1`, tenantID, messageIDs))
	if err != nil {
		return nil, mapError("thread by message ids", err)
	}
	return t, nil
}

func (r *MessagingRepository) RecentThread(ctx context.Context, tenantID, contactID, normalized string, since time.Time) (*messaging.Thread, error) {
	return r.thread(ctx, "recent thread", `
tenant_id = $1 AND contact_id = $2 AND normalized_subject = $3 AND status = 'open' AND last_message_at >= $4
ORDER BY last_message_at DESC
LIMIT 1`, tenantID, contactID, normalized, since.UTC())
}

const messageColumns = `id, tenant_id, thread_id, direction, provider_id, message_id, in_reply_to, from_addr, to_addr,
       subject, body_text, body_html, verdict, spam_score, reasons, status, error, sent_at, created_at`

func scanMessage(row pgx.Row) (*messaging.Message, error) {
	var m messaging.Message
	var providerID *string
	if err := row.Scan(&m.ID, &m.TenantID, &m.ThreadID, &m.Direction, &providerID, &m.MessageID, &m.InReplyTo, &m.From,
		&m.To, &m.Subject, &m.Text, &m.HTML, &m.Verdict, &m.SpamScore, &m.Reasons, &m.Status, &m.Error, &m.SentAt,
		&m.CreatedAt); err != nil {
		return nil, err
	}
	m.ProviderID = derefString(providerID)
	if m.Reasons == nil {
		m.Reasons = []string{}
	}
	return &m, nil
}

func (r *MessagingRepository) CreateMessage(ctx context.Context, m *messaging.Message) error {
	reasons := m.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	_, err := r.queryer().Exec(ctx, `
INSERT INTO messages (id, tenant_id, thread_id, direction, provider_id, message_id, in_reply_to, from_addr, to_addr,
                      subject, body_text, body_html, verdict, spam_score, reasons, status, error, sent_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		m.ID, m.TenantID, m.ThreadID, m.Direction, nullableString(m.ProviderID), m.MessageID, m.InReplyTo, m.From, m.To,
		m.Subject, m.Text, m.HTML, m.Verdict, m.SpamScore, reasons, m.Status, m.Error, utcPtr(m.SentAt), m.CreatedAt.UTC())
	return mapError("create message", err)
}

func (r *MessagingRepository) GetMessage(ctx context.Context, tenantID, id string) (*messaging.Message, error) {
	m, err := scanMessage(r.queryer().QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get message", err)
	}
	return m, nil
}

func (r *MessagingRepository) LockMessage(ctx context.Context, tenantID, id string) (*messaging.Message, error) {
	m, err := scanMessage(r.queryer().QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return nil, mapError("lock message", err)
	}
	return m, nil
}

func (r *MessagingRepository) UpdateMessage(ctx context.Context, m *messaging.Message) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE messages SET provider_id = $3, status = $4, error = $5, sent_at = $6
 WHERE tenant_id = $1 AND id = $2`,
		m.TenantID, m.ID, nullableString(m.ProviderID), m.Status, m.Error, utcPtr(m.SentAt))
	return expectOne("update message", tag, err)
}

func (r *MessagingRepository) ListMessages(ctx context.Context, tenantID, threadID string, filters messaging.MessageFilters) (messaging.MessageList, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return messaging.MessageList{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+messageColumns+`
  FROM messages
 WHERE tenant_id = $1 AND thread_id = $2
   AND ($3::boolean OR status <> 'quarantined')
   AND ($4::timestamptz IS NULL OR (created_at, id) > ($4, $5))
 ORDER BY created_at, id
 LIMIT $6`, tenantID, threadID, filters.IncludeQuarantined, cursorTS, cursorID, limit+1)
	if err != nil {
		return messaging.MessageList{}, mapError("list messages", err)
	}
	defer rows.Close()
	items := make([]messaging.Message, 0, limit+1)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return messaging.MessageList{}, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return messaging.MessageList{}, mapError("list messages", err)
	}
	items, next := pagination.Trim(items, limit, func(m messaging.Message) (time.Time, string) {
		return m.CreatedAt, m.ID
	})
	return messaging.MessageList{Items: items, NextCursor: next}, nil
}

func (r *MessagingRepository) LastInbound(ctx context.Context, tenantID, threadID string) (*messaging.Message, error) {
	m, err := scanMessage(r.queryer().QueryRow(ctx, `
SELECT `+messageColumns+`
  FROM messages
 WHERE tenant_id = $1 AND thread_id = $2 AND direction = 'inbound' AND status <> 'quarantined'
 ORDER BY created_at DESC, id DESC
 LIMIT 1`, tenantID, threadID))
	if err != nil {
		return nil, mapError("last inbound message", err)
	}
	return m, nil
}

func (r *MessagingRepository) InboundExists(ctx context.Context, providerID string) (bool, error) {
	var ok bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM messages WHERE provider_id = $1 AND direction = 'inbound')`, providerID).Scan(&ok)
	return ok, mapError("inbound exists", err)
}

func (r *MessagingRepository) mailbox(ctx context.Context, op, where, arg string) (*messaging.Mailbox, error) {
	var mb messaging.Mailbox
	err := r.queryer().QueryRow(ctx, `SELECT id, name, notify_email FROM tenants WHERE `+where, arg).
		Scan(&mb.TenantID, &mb.Name, &mb.NotifyEmail)
	if err != nil {
		return nil, mapError(op, err)
	}
	return &mb, nil
}

func (r *MessagingRepository) Mailbox(ctx context.Context, tenantID string) (*messaging.Mailbox, error) {
	return r.mailbox(ctx, "get mailbox", `id = $1`, tenantID)
}

func (r *MessagingRepository) MailboxBySlug(ctx context.Context, slug string) (*messaging.Mailbox, error) {
	return r.mailbox(ctx, "get mailbox by slug", `inbound_slug = $1`, slug)
}

// SenderContact prefers an active contact over an archived one with the same email.
func (r *MessagingRepository) SenderContact(ctx context.Context, tenantID, email string) (*contacts.Contact, error) {
	c, err := scanContact(r.queryer().QueryRow(ctx, `
SELECT `+contactColumns+` FROM contacts
 WHERE tenant_id = $1 AND lower(email) = lower($2)
 ORDER BY archived_at NULLS FIRST
 LIMIT 1`, tenantID, email))
	if err != nil {
		return nil, mapError("sender contact", err)
	}
	return c, nil
}

func (r *MessagingRepository) GetContact(ctx context.Context, tenantID, id string) (*contacts.Contact, error) {
	return (&ContactRepository{conn: r.conn}).Get(ctx, tenantID, id)
}

// CreateContact inserts a lead, archived when the sender's mail was held back.
func (r *MessagingRepository) CreateContact(ctx context.Context, c *contacts.Contact) error {
	if err := (&ContactRepository{conn: r.conn}).Create(ctx, c); err != nil {
		return err
	}
	if c.ArchivedAt == nil {
		return nil
	}
	return (&ContactRepository{conn: r.conn}).Archive(ctx, c.TenantID, c.ID, *c.ArchivedAt)
}

func (r *MessagingRepository) RestoreContact(ctx context.Context, tenantID, id string, at time.Time) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE contacts SET archived_at = NULL, updated_at = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, at)
	return expectOne("restore contact", tag, err)
}
