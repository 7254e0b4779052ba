package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/domain/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inboundMessage(tenantID, threadID, providerID, messageID, status string, at time.Time) *messaging.Message {
	return &messaging.Message{
		ID:         ids.New(),
		TenantID:   tenantID,
		ThreadID:   threadID,
		Direction:  messaging.DirectionInbound,
		ProviderID: providerID,
		MessageID:  messageID,
		From:       "buyer@example.com",
		To:         "oak-in@inbound.breederhq.test",
		Subject:    "Puppy availability",
		Text:       "Is Blue still available?",
		Verdict:    messaging.VerdictClean,
		Status:     status,
		CreatedAt:  at,
	}
}

func TestMessagingRepository(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	pool := store.Pool()
	repo := store.Messaging()

	base := time.Date(2026, 5, 2, 15, 0, 0, 0, time.UTC)
	tenantID := insertTenant(t, ctx, pool, "oak")
	contactID := insertContact(t, ctx, pool, tenantID, "Buyer", "buyer@example.com")

	thread := &messaging.Thread{
		ID:            ids.New(),
		TenantID:      tenantID,
		ContactID:     contactID,
		Subject:       "Puppy availability",
		Normalized:    "puppy availability",
		ReplyToken:    "tok123",
		Status:        messaging.ThreadOpen,
		LastMessageAt: base,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
	require.NoError(t, repo.CreateThread(ctx, thread))

	first := inboundMessage(tenantID, thread.ID, "re_1", "<a@mail.example.com>", messaging.StatusDelivered, base)
	held := inboundMessage(tenantID, thread.ID, "re_2", "<b@mail.example.com>", messaging.StatusQuarantined, base.Add(time.Minute))
	held.Verdict = messaging.VerdictSuspicious
	held.Reasons = []string{"link_shortener"}
	require.NoError(t, repo.CreateMessage(ctx, first))
	require.NoError(t, repo.CreateMessage(ctx, held))

	t.Run("mailbox by inbound slug", func(t *testing.T) {
		mb, err := repo.MailboxBySlug(ctx, "oak-in")
		require.NoError(t, err)
		assert.Equal(t, tenantID, mb.TenantID)

		_, err = repo.MailboxBySlug(ctx, "nobody")
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("provider ids are deduplicated", func(t *testing.T) {
		exists, err := repo.InboundExists(ctx, "re_1")
		require.NoError(t, err)
		assert.True(t, exists)

		err = repo.CreateMessage(ctx, inboundMessage(tenantID, thread.ID, "re_1", "", messaging.StatusDelivered, base))
		require.ErrorIs(t, err, errs.ErrConflict)
	})

	t.Run("thread lookups", func(t *testing.T) {
		got, err := repo.ThreadByReplyToken(ctx, "tok123")
		require.NoError(t, err)
		assert.Equal(t, thread.ID, got.ID)

		got, err = repo.ThreadByMessageIDs(ctx, tenantID, []string{"<unknown@x>", "<a@mail.example.com>"})
		require.NoError(t, err)
		assert.Equal(t, thread.ID, got.ID)

		got, err = repo.RecentThread(ctx, tenantID, contactID, "puppy availability", base.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, thread.ID, got.ID)

		_, err = repo.RecentThread(ctx, tenantID, contactID, "puppy availability", base.Add(time.Hour))
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("quarantined messages hidden by default", func(t *testing.T) {
		list, err := repo.ListMessages(ctx, tenantID, thread.ID, messaging.MessageFilters{})
		require.NoError(t, err)
		require.Len(t, list.Items, 1)
		assert.Equal(t, first.ID, list.Items[0].ID)

		list, err = repo.ListMessages(ctx, tenantID, thread.ID, messaging.MessageFilters{IncludeQuarantined: true})
		require.NoError(t, err)
		require.Len(t, list.Items, 2)
		assert.Equal(t, []string{"link_shortener"}, list.Items[1].Reasons)

		last, err := repo.LastInbound(ctx, tenantID, thread.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, last.ID)
	})

	t.Run("update thread inside transaction", func(t *testing.T) {
		err := repo.WithTx(ctx, func(ctx context.Context, tx messaging.Repository) error {
			locked, err := tx.LockThread(ctx, tenantID, thread.ID)
			if err != nil {
				return err
			}
			locked.UnreadCount++
			locked.LastMessageAt = base.Add(2 * time.Minute)
			locked.UpdatedAt = locked.LastMessageAt
			return tx.UpdateThread(ctx, locked)
		})
		require.NoError(t, err)

		got, err := repo.GetThread(ctx, tenantID, thread.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.UnreadCount)
		assert.True(t, got.LastMessageAt.Equal(base.Add(2*time.Minute)))
	})
}
