package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/tenants"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubStripe struct {
	created  int
	account  *Account
	getErr   error
	linkedTo string
}

func (s *stubStripe) CreateAccount(_ context.Context, p AccountParams) (*Account, error) {
	s.created++
	return &Account{ID: "acct_new", Metadata: map[string]string{"tenant_id": p.TenantID}}, nil
}

func (s *stubStripe) GetAccount(context.Context, string) (*Account, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.account, nil
}

func (s *stubStripe) CreateAccountLink(_ context.Context, accountID, _, _ string) (*AccountLink, error) {
	s.linkedTo = accountID
	return &AccountLink{URL: "https://connect.stripe.test/" + accountID, ExpiresAt: 1760000000}, nil
}

type stubTenants struct {
	tenant *tenants.Tenant
	synced []tenants.Connect
}

func (s *stubTenants) Get(_ context.Context, id string) (*tenants.Tenant, error) {
	if s.tenant == nil || s.tenant.ID != id {
		return nil, errs.ErrNotFound
	}
	cp := *s.tenant
	return &cp, nil
}

func (s *stubTenants) SetConnectAccount(_ context.Context, _ string, accountID string) error {
	s.tenant.Stripe = tenants.Connect{AccountID: accountID}
	return nil
}

func (s *stubTenants) SyncConnect(_ context.Context, c tenants.Connect) error {
	s.synced = append(s.synced, c)
	s.tenant.Stripe = c
	return nil
}

func TestStartOnboardingCreatesAccountOnce(t *testing.T) {
	stripe := &stubStripe{}
	store := &stubTenants{tenant: &tenants.Tenant{ID: "T1", Name: "Sunny"}}
	svc := NewService(stripe, store, Config{}, zerolog.Nop())

	first, err := svc.StartOnboarding(context.Background(), "T1", "owner@sunny.test")
	require.NoError(t, err)
	require.Equal(t, "acct_new", first.AccountID)
	require.Equal(t, "https://connect.stripe.test/acct_new", first.URL)

	_, err = svc.StartOnboarding(context.Background(), "T1", "owner@sunny.test")
	require.NoError(t, err)
	require.Equal(t, 1, stripe.created)
	require.Equal(t, "acct_new", stripe.linkedTo)
}

func TestStartOnboardingWithoutStripe(t *testing.T) {
	svc := NewService(nil, &stubTenants{}, Config{}, zerolog.Nop())
	_, err := svc.StartOnboarding(context.Background(), "T1", "")
	require.ErrorIs(t, err, ErrNotConfigured)
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestStatusSyncsChanges(t *testing.T) {
	stripe := &stubStripe{account: &Account{ID: "acct_1", ChargesEnabled: true, DetailsSubmitted: true}}
	store := &stubTenants{tenant: &tenants.Tenant{ID: "T1", Stripe: tenants.Connect{AccountID: "acct_1"}}}
	svc := NewService(stripe, store, Config{}, zerolog.Nop())

	status, err := svc.Status(context.Background(), "T1")
	require.NoError(t, err)
	require.True(t, status.ChargesEnabled)
	require.Len(t, store.synced, 1)

	_, err = svc.Status(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, store.synced, 1, "unchanged state is not written again")
}

func TestStatusFallsBackToStoredState(t *testing.T) {
	stripe := &stubStripe{getErr: errors.New("timeout")}
	store := &stubTenants{tenant: &tenants.Tenant{ID: "T1", Stripe: tenants.Connect{AccountID: "acct_1", DetailsSubmitted: true}}}
	svc := NewService(stripe, store, Config{}, zerolog.Nop())

	status, err := svc.Status(context.Background(), "T1")
	require.NoError(t, err)
	require.True(t, status.DetailsSubmitted)

	stripe.getErr = &APIError{Status: 404}
	_, err = svc.Status(context.Background(), "T1")
	require.ErrorIs(t, err, errs.ErrNotFound)

	none := NewService(stripe, &stubTenants{tenant: &tenants.Tenant{ID: "T2"}}, Config{}, zerolog.Nop())
	status, err = none.Status(context.Background(), "T2")
	require.NoError(t, err)
	require.Empty(t, status.AccountID)
}
