package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/tenants"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentRefreshRotation(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	svc := tenants.NewService(store.Tenants(), auth.NewJWTManager("test-secret", 15*time.Minute, "breederhq"), 24*time.Hour, zerolog.Nop())

	session, err := svc.Register(ctx, tenants.RegisterInput{
		TenantName: "Cedar Ridge Kennels",
		Name:       "Rae Breeder",
		Email:      "rae@example.com",
		Password:   "correct horse battery",
	})
	require.NoError(t, err)

	const callers = 4
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = svc.Refresh(ctx, session.RefreshToken)
		}()
	}
	wg.Wait()

	var rotated, reused int
	for _, err := range results {
		switch {
		case err == nil:
			rotated++
		case assert.ErrorIs(t, err, tenants.ErrRefreshReuse):
			reused++
		}
	}
	assert.Equal(t, 1, rotated)
	assert.Equal(t, callers-1, reused)

	stored, err := store.Tenants().GetRefreshTokenByHash(ctx, auth.HashToken(session.RefreshToken))
	require.NoError(t, err)
	assert.NotNil(t, stored.RevokedAt)
}

func TestLockRefreshTokenByHash(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	repo := store.Tenants()

	err := repo.WithTx(ctx, func(ctx context.Context, tx tenants.Repository) error {
		_, err := tx.LockRefreshTokenByHash(ctx, auth.HashToken("bhqr_missing"))
		return err
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
}
