package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/BreederHQ/server/internal/domain/draftboard"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftRepositoryPickFlow(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	pool := store.Pool()
	repo := store.DraftBoards()

	base := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	tenantID := insertTenant(t, ctx, pool, "maple")
	otherTenant := insertTenant(t, ctx, pool, "willow")
	planID := insertPlan(t, ctx, pool, tenantID, "Spring litter")
	blue := insertOffspring(t, ctx, pool, tenantID, planID, "Blue", "male", base)
	red := insertOffspring(t, ctx, pool, tenantID, planID, "Red", "female", base.Add(time.Minute))
	alice := insertContact(t, ctx, pool, tenantID, "Alice", "alice@example.com")
	bob := insertContact(t, ctx, pool, tenantID, "Bob", "bob@example.com")

	board := &draftboard.Board{
		ID:            ids.New(),
		TenantID:      tenantID,
		PlanID:        planID,
		Name:          "Spring picks",
		Status:        draftboard.BoardDraft,
		PickWindowSec: 3600,
		TimeoutPolicy: draftboard.PolicySkip,
		MaxDeferrals:  1,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
	require.NoError(t, repo.Create(ctx, board))

	exists, err := repo.PlanExists(ctx, tenantID, planID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.PlanExists(ctx, otherTenant, planID)
	require.NoError(t, err)
	assert.False(t, exists)

	missing, err := repo.MissingContacts(ctx, tenantID, []string{alice, bob, "01HZX3Q8W6M5V2KJ9T4B7N0ZZZ"})
	require.NoError(t, err)
	assert.Equal(t, []string{"01HZX3Q8W6M5V2KJ9T4B7N0ZZZ"}, missing)

	first := draftboard.Pick{ID: ids.New(), BuyerID: alice, Position: 1, Status: draftboard.PickPending}
	second := draftboard.Pick{ID: ids.New(), BuyerID: bob, Position: 2, Status: draftboard.PickPending}
	require.NoError(t, repo.ReplacePicks(ctx, board.ID, []draftboard.Pick{second, first}))

	picks, err := repo.ListPicks(ctx, board.ID)
	require.NoError(t, err)
	require.Len(t, picks, 2)
	assert.Equal(t, first.ID, picks[0].ID)
	assert.Equal(t, second.ID, picks[1].ID)

	available, err := repo.AvailableOffspring(ctx, tenantID, planID)
	require.NoError(t, err)
	assert.Equal(t, []string{blue, red}, available)
	require.NoError(t, repo.SnapshotPool(ctx, board.ID, available))

	t.Run("claim is exclusive", func(t *testing.T) {
		require.NoError(t, repo.ClaimOffspring(ctx, board.ID, blue, first.ID))
		err := repo.ClaimOffspring(ctx, board.ID, blue, second.ID)
		require.ErrorIs(t, err, draftboard.ErrAlreadyClaimed)
	})

	t.Run("reserve requires available offspring", func(t *testing.T) {
		require.NoError(t, repo.ReserveOffspring(ctx, tenantID, blue, alice, base.Add(time.Hour)))
		err := repo.ReserveOffspring(ctx, tenantID, blue, bob, base.Add(time.Hour))
		require.ErrorIs(t, err, draftboard.ErrUnavailable)
	})

	t.Run("pool reflects claims", func(t *testing.T) {
		entries, err := repo.Pool(ctx, board.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, blue, entries[0].OffspringID)
		assert.Equal(t, first.ID, entries[0].PickID)
		assert.Equal(t, "reserved", entries[0].PlacementStatus)
		assert.Equal(t, red, entries[1].OffspringID)
		assert.Empty(t, entries[1].PickID)
	})

	t.Run("overdue picks on open boards", func(t *testing.T) {
		now := time.Now().UTC()
		second.Status = draftboard.PickOnClock
		second.ClockStartedAt = timePtr(now.Add(-2 * time.Hour))
		second.DeadlineAt = timePtr(now.Add(-time.Hour))
		require.NoError(t, repo.UpdatePick(ctx, &second))

		refs, err := repo.OverdueOnClock(ctx, now, 10)
		require.NoError(t, err)
		assert.Empty(t, refs, "draft boards are not swept")

		board.Status = draftboard.BoardOpen
		board.CurrentPickID = second.ID
		board.StartedAt = timePtr(now.Add(-2 * time.Hour))
		board.UpdatedAt = now
		require.NoError(t, repo.Update(ctx, board))

		refs, err = repo.OverdueOnClock(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, draftboard.PickRef{TenantID: tenantID, BoardID: board.ID, PickID: second.ID}, refs[0])
	})

	t.Run("lock inside transaction", func(t *testing.T) {
		err := repo.WithTx(ctx, func(ctx context.Context, tx draftboard.Repository) error {
			locked, err := tx.Lock(ctx, tenantID, board.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, second.ID, locked.CurrentPickID)
			return nil
		})
		require.NoError(t, err)

		_, err = repo.Get(ctx, otherTenant, board.ID)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}
