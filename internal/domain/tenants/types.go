package tenants

import (
	"context"
	"time"

	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/domain/errs"
)

var (
	ErrInvalidCredentials = errs.New(errs.ErrForbidden, "invalid email or password")
	ErrInvalidRefresh     = errs.New(errs.ErrForbidden, "invalid or expired refresh token")
	ErrRefreshReuse       = errs.New(errs.ErrForbidden, "refresh token reuse detected")
	ErrNotMember          = errs.New(errs.ErrForbidden, "not a member of this tenant")
	ErrSlugTaken          = errs.New(errs.ErrConflict, "tenant slug is already taken")
	ErrEmailTaken         = errs.New(errs.ErrConflict, "email is already registered")
)

type Tenant struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	InboundSlug string    `json:"inbound_slug"`
	TimeZone    string    `json:"time_zone"`
	NotifyEmail string    `json:"notify_email,omitempty"`
	Stripe      Connect   `json:"stripe"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Connect is the tenant's Stripe Connect account state.
type Connect struct {
	AccountID        string `json:"account_id,omitempty"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Membership struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Role       auth.Role `json:"role"`
	TenantName string    `json:"tenant_name,omitempty"`
	TenantSlug string    `json:"tenant_slug,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RefreshToken is a stored, hashed refresh credential. Tokens rotated from the
// same login share a FamilyID.
type RefreshToken struct {
	ID         string
	UserID     string
	FamilyID   string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string
	CreatedAt  time.Time
}

// Session is returned by login and refresh.
type Session struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             User      `json:"user"`
}

type Profile struct {
	User        User         `json:"user"`
	Memberships []Membership `json:"memberships"`
}

type Dashboard struct {
	Contacts           int64 `json:"contacts"`
	ActivePlans        int64 `json:"active_plans"`
	AvailableOffspring int64 `json:"available_offspring"`
	OpenInvoices       int64 `json:"open_invoices"`
	UnreadThreads      int64 `json:"unread_threads"`
}

type RegisterInput struct {
	TenantName string `json:"tenant_name" validate:"required,max=200"`
	Slug       string `json:"slug" validate:"omitempty,max=63"`
	Name       string `json:"name" validate:"max=200"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	TimeZone   string `json:"time_zone" validate:"omitempty,timezone"`
}

type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	TimeZone    *string `json:"time_zone" validate:"omitempty,timezone"`
	NotifyEmail *string `json:"notify_email" validate:"omitempty,email"`
}

// Repository is the tenants, users and credentials store.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantByInboundSlug(ctx context.Context, slug string) (*Tenant, error)
	GetTenantByStripeAccount(ctx context.Context, accountID string) (*Tenant, error)
	UpdateTenant(ctx context.Context, tenant *Tenant) error
	UpdateConnect(ctx context.Context, tenantID string, connect Connect) error

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	CreateMembership(ctx context.Context, m Membership) error
	GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error)
	ListMemberships(ctx context.Context, userID string) ([]Membership, error)

	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error)
	LockRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id, replacedBy string, at time.Time) error
	RevokeRefreshFamily(ctx context.Context, familyID string, at time.Time) error

	CountContacts(ctx context.Context, tenantID string) (int64, error)
	CountActivePlans(ctx context.Context, tenantID string) (int64, error)
	CountAvailableOffspring(ctx context.Context, tenantID string) (int64, error)
	CountOpenInvoices(ctx context.Context, tenantID string) (int64, error)
	CountUnreadThreads(ctx context.Context, tenantID string) (int64, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Generate(userID, email string) (string, time.Time, error)
}
