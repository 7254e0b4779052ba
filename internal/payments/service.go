// Package payments onboards tenants onto Stripe Connect so buyers can pay
// invoices online.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/tenants"
	"github.com/rs/zerolog"
)

var ErrNotConfigured = errs.New(errs.ErrConflict, "online payments are not configured")

// Stripe is the slice of the Stripe API onboarding needs.
type Stripe interface {
	CreateAccount(ctx context.Context, p AccountParams) (*Account, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error)
}

// Tenants reads and records the tenant's Connect account.
type Tenants interface {
	Get(ctx context.Context, tenantID string) (*tenants.Tenant, error)
	SetConnectAccount(ctx context.Context, tenantID, accountID string) error
	SyncConnect(ctx context.Context, connect tenants.Connect) error
}

type Config struct {
	ReturnURL  string
	RefreshURL string
}

type Onboarding struct {
	AccountID string    `json:"account_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	stripe  Stripe
	tenants Tenants
	cfg     Config
	logger  zerolog.Logger
}

// NewService builds the onboarding service. A nil stripe disables onboarding.
func NewService(stripe Stripe, tenants Tenants, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		stripe:  stripe,
		tenants: tenants,
		cfg:     cfg,
		logger:  logger.With().Str("component", "payments").Logger(),
	}
}

// StartOnboarding creates the tenant's Express account when missing and
// returns a fresh account link.
func (s *Service) StartOnboarding(ctx context.Context, tenantID, email string) (*Onboarding, error) {
	if s.stripe == nil {
		return nil, ErrNotConfigured
	}
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	accountID := tenant.Stripe.AccountID
	if accountID == "" {
		account, err := s.stripe.CreateAccount(ctx, AccountParams{
			TenantID:     tenant.ID,
			Email:        email,
			BusinessName: tenant.Name,
		})
		if err != nil {
			return nil, err
		}
		if err := s.tenants.SetConnectAccount(ctx, tenant.ID, account.ID); err != nil {
			return nil, fmt.Errorf("record connect account: %w", err)
		}
		accountID = account.ID
		s.logger.Info().Str("tenant_id", tenant.ID).Str("account_id", accountID).Msg("connect account created")
	}

	link, err := s.stripe.CreateAccountLink(ctx, accountID, s.cfg.RefreshURL, s.cfg.ReturnURL)
	if err != nil {
		return nil, err
	}
	return &Onboarding{AccountID: accountID, URL: link.URL, ExpiresAt: time.Unix(link.ExpiresAt, 0).UTC()}, nil
}

// Status refreshes the tenant's Connect state from Stripe. If Stripe cannot be
// reached the stored state is returned.
func (s *Service) Status(ctx context.Context, tenantID string) (*tenants.Connect, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	connect := tenant.Stripe
	if connect.AccountID == "" || s.stripe == nil {
		return &connect, nil
	}

	account, err := s.stripe.GetAccount(ctx, connect.AccountID)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			return nil, fmt.Errorf("connect account %s: %w", connect.AccountID, errs.ErrNotFound)
		}
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("stripe status refresh failed; returning stored state")
		return &connect, nil
	}
	fresh := tenants.Connect{
		AccountID:        account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}
	if fresh != connect {
		if err := s.tenants.SyncConnect(ctx, fresh); err != nil {
			return nil, err
		}
	}
	return &fresh, nil
}
