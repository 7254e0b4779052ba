// Package tenants manages breeding operations (tenants), their users and
// memberships, and the login / refresh-token lifecycle.
//
// Refresh tokens are opaque, stored as SHA-256 hashes and rotated on every use.
// Presenting a token that was already rotated revokes its whole family, which
// logs out every session descended from the same login.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/validation"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	repo       Repository
	tokens     TokenIssuer
	refreshTTL time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, tokens TokenIssuer, refreshTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		logger:     logger.With().Str("component", "tenants").Logger(),
		now:        time.Now,
	}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases name and collapses anything outside [a-z0-9] into single dashes.
func Slugify(name string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 63 {
		slug = strings.TrimRight(slug[:63], "-")
	}
	return slug
}

// Register creates a tenant, its owner user and the owner membership in one transaction.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, errs.Invalid("password", err.Error())
	}

	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(input.TenantName)
	}
	if slug == "" {
		return nil, errs.Invalid("slug", "must contain letters or digits")
	}
	tz := input.TimeZone
	if tz == "" {
		tz = "UTC"
	}

	now := s.now().UTC()
	email := input.Email
	tenant := &Tenant{ID: ids.New(), Slug: slug, Name: strings.TrimSpace(input.TenantName), InboundSlug: slug, TimeZone: tz, NotifyEmail: email, CreatedAt: now, UpdatedAt: now}
	user := &User{ID: ids.New(), Email: email, Name: strings.TrimSpace(input.Name), PasswordHash: hash, CreatedAt: now}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetUserByEmail(ctx, email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		if err := repo.CreateTenant(ctx, tenant); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				return ErrSlugTaken
			}
			return err
		}
		if err := repo.CreateUser(ctx, user); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				return ErrEmailTaken
			}
			return err
		}
		return repo.CreateMembership(ctx, Membership{TenantID: tenant.ID, UserID: user.ID, Role: auth.RoleOwner, CreatedAt: now})
	})
	if err != nil {
		return nil, fmt.Errorf("register tenant: %w", err)
	}

	s.logger.Info().Str("tenant_id", tenant.ID).Str("slug", slug).Msg("tenant registered")
	return s.issue(ctx, user, ids.New())
}

// Login verifies credentials and starts a new refresh-token family.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, user, ids.New())
}

// Refresh rotates a refresh token. A revoked token revokes its family.
func (s *Service) Refresh(ctx context.Context, plain string) (*Session, error) {
	if strings.TrimSpace(plain) == "" {
		return nil, ErrInvalidRefresh
	}
	now := s.now().UTC()

	var session *Session
	var reusedFamily string
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		stored, err := repo.LockRefreshTokenByHash(ctx, auth.HashToken(plain))
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}
		if stored.RevokedAt != nil {
			reusedFamily = stored.FamilyID
			return ErrRefreshReuse
		}
		if !now.Before(stored.ExpiresAt) {
			return ErrInvalidRefresh
		}

		user, err := repo.GetUser(ctx, stored.UserID)
		if err != nil {
			return err
		}
		next, nextPlain, err := s.newRefresh(user.ID, stored.FamilyID, now)
		if err != nil {
			return err
		}
		if err := repo.CreateRefreshToken(ctx, next); err != nil {
			return err
		}
		if err := repo.RevokeRefreshToken(ctx, stored.ID, next.ID, now); err != nil {
			return err
		}
		session, err = s.access(user, nextPlain, next.ExpiresAt)
		return err
	})
	if errors.Is(err, ErrRefreshReuse) {
		// revoked outside the rolled-back transaction so it persists
		if revokeErr := s.repo.RevokeRefreshFamily(ctx, reusedFamily, now); revokeErr != nil {
			return nil, fmt.Errorf("revoke token family: %w", revokeErr)
		}
		s.logger.Warn().Str("family_id", reusedFamily).Msg("refresh token reuse, family revoked")
		return nil, ErrRefreshReuse
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return session, nil
}

// Logout revokes the token's whole family. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, plain string) error {
	if strings.TrimSpace(plain) == "" {
		return nil
	}
	stored, err := s.repo.GetRefreshTokenByHash(ctx, auth.HashToken(plain))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("logout: %w", err)
	}
	return s.repo.RevokeRefreshFamily(ctx, stored.FamilyID, s.now().UTC())
}

func (s *Service) Me(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	memberships, err := s.repo.ListMemberships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return &Profile{User: *user, Memberships: memberships}, nil
}

// Membership resolves the caller's role in a tenant.
func (s *Service) Membership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	m, err := s.repo.GetMembership(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}
	return m, nil
}

func (s *Service) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.repo.GetTenant(ctx, tenantID)
}

func (s *Service) Update(ctx context.Context, tenantID string, input UpdateInput) (*Tenant, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	tenant, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		tenant.Name = strings.TrimSpace(*input.Name)
	}
	if input.TimeZone != nil {
		tenant.TimeZone = *input.TimeZone
	}
	if input.NotifyEmail != nil {
		tenant.NotifyEmail = normalizeEmail(*input.NotifyEmail)
	}
	tenant.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	return tenant, nil
}

func (s *Service) ByInboundSlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.repo.GetTenantByInboundSlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
}

// SetConnectAccount records a newly created Stripe Connect account.
func (s *Service) SetConnectAccount(ctx context.Context, tenantID, accountID string) error {
	return s.repo.UpdateConnect(ctx, tenantID, Connect{AccountID: accountID})
}

// SyncConnect applies an account.updated notification. Unknown accounts are ignored.
func (s *Service) SyncConnect(ctx context.Context, connect Connect) error {
	tenant, err := s.repo.GetTenantByStripeAccount(ctx, connect.AccountID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.logger.Warn().Str("account_id", connect.AccountID).Msg("connect update for unknown account")
			return nil
		}
		return err
	}
	return s.repo.UpdateConnect(ctx, tenant.ID, connect)
}

// Dashboard gathers the tenant's headline counts concurrently.
func (s *Service) Dashboard(ctx context.Context, tenantID string) (*Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, fn func(context.Context, string) (int64, error)) {
		g.Go(func() error {
			n, err := fn(gctx, tenantID)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	count(&d.Contacts, s.repo.CountContacts)
	count(&d.ActivePlans, s.repo.CountActivePlans)
	count(&d.AvailableOffspring, s.repo.CountAvailableOffspring)
	count(&d.OpenInvoices, s.repo.CountOpenInvoices)
	count(&d.UnreadThreads, s.repo.CountUnreadThreads)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return &d, nil
}

func (s *Service) issue(ctx context.Context, user *User, familyID string) (*Session, error) {
	now := s.now().UTC()
	token, plain, err := s.newRefresh(user.ID, familyID, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateRefreshToken(ctx, token); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return s.access(user, plain, token.ExpiresAt)
}

func (s *Service) newRefresh(userID, familyID string, now time.Time) (RefreshToken, string, error) {
	plain, hash, err := auth.NewRefreshToken()
	if err != nil {
		return RefreshToken{}, "", err
	}
	return RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}, plain, nil
}

func (s *Service) access(user *User, refreshPlain string, refreshExpires time.Time) (*Session, error) {
	token, expiresAt, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &Session{
		AccessToken:      token,
		AccessExpiresAt:  expiresAt,
		RefreshToken:     refreshPlain,
		RefreshExpiresAt: refreshExpires,
		User:             *user,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
