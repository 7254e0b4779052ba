package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/BreederHQ/server/internal/domain/contacts"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContact(tenantID, name, email string, createdAt time.Time) *contacts.Contact {
	return &contacts.Contact{
		ID:          ids.New(),
		TenantID:    tenantID,
		Kind:        contacts.KindPerson,
		DisplayName: name,
		Email:       email,
		Tags:        []string{"waitlist"},
		Source:      "manual",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestContactRepository(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	tenantA := insertTenant(t, ctx, store.Pool(), "alder")
	tenantB := insertTenant(t, ctx, store.Pool(), "birch")
	repo := store.Contacts()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := newContact(tenantA, "Jamie Rivera", "jamie@example.com", base)
	second := newContact(tenantA, "Sam Okafor", "sam@example.com", base.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	t.Run("get is tenant scoped", func(t *testing.T) {
		got, err := repo.Get(ctx, tenantA, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Jamie Rivera", got.DisplayName)
		assert.Equal(t, []string{"waitlist"}, got.Tags)

		_, err = repo.Get(ctx, tenantB, first.ID)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("email unique per tenant ignoring case", func(t *testing.T) {
		err := repo.Create(ctx, newContact(tenantA, "Jamie Again", "JAMIE@example.com", base))
		require.ErrorIs(t, err, errs.ErrConflict)

		require.NoError(t, repo.Create(ctx, newContact(tenantB, "Jamie Elsewhere", "jamie@example.com", base)))
	})

	t.Run("keyset pagination", func(t *testing.T) {
		page, err := repo.List(ctx, tenantA, contacts.Filters{Limit: 1})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, first.ID, page.Items[0].ID)
		require.NotEmpty(t, page.NextCursor)

		page, err = repo.List(ctx, tenantA, contacts.Filters{Limit: 1, After: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, second.ID, page.Items[0].ID)
		assert.Empty(t, page.NextCursor)
	})

	t.Run("search escapes wildcards", func(t *testing.T) {
		page, err := repo.List(ctx, tenantA, contacts.Filters{Query: "okaf"})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, second.ID, page.Items[0].ID)

		page, err = repo.List(ctx, tenantA, contacts.Filters{Query: "%"})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})

	t.Run("archived contacts hidden by default", func(t *testing.T) {
		require.NoError(t, repo.Archive(ctx, tenantA, second.ID, base.Add(time.Hour)))

		page, err := repo.List(ctx, tenantA, contacts.Filters{})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)

		page, err = repo.List(ctx, tenantA, contacts.Filters{IncludeArchived: true})
		require.NoError(t, err)
		assert.Len(t, page.Items, 2)

		_, err = repo.FindByEmail(ctx, tenantA, "SAM@example.com")
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("archive unknown contact", func(t *testing.T) {
		err := repo.Archive(ctx, tenantB, first.ID, base)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestWebhookEventRepository(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	repo := store.WebhookEvents()

	inserted, err := repo.MarkProcessed(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.MarkProcessed(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, inserted)

	seen, err := repo.Seen(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = repo.Seen(ctx, "resend", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestIdempotencyRepository(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	tenantID := insertTenant(t, ctx, store.Pool(), "cedar")
	repo := store.IdempotencyKeys()

	claimed, err := repo.Claim(ctx, tenantID, "key-1", "hash-a")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.Claim(ctx, tenantID, "key-1", "hash-a")
	require.NoError(t, err)
	assert.False(t, claimed)

	hash, status, body, err := repo.Lookup(ctx, tenantID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-a", hash)
	assert.Zero(t, status)
	assert.Nil(t, body)

	require.NoError(t, repo.Complete(ctx, tenantID, "key-1", 201, []byte(`{"id":"x"}`)))
	_, status, body, err = repo.Lookup(ctx, tenantID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, 201, status)
	assert.JSONEq(t, `{"id":"x"}`, string(body))

	require.NoError(t, repo.Release(ctx, tenantID, "key-1"))
	_, _, _, err = repo.Lookup(ctx, tenantID, "key-1")
	require.ErrorIs(t, err, errs.ErrNotFound)

	err = repo.Complete(ctx, tenantID, "missing", 200, nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMigrationVersion(t *testing.T) {
	setupPostgres(t)

	version, dirty, err := MigrationVersion(sharedDBURL, "")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.GreaterOrEqual(t, version, uint(5))
}
