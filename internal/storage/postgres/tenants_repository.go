package postgres

import (
	"context"
	"time"

	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/domain/tenants"
	"github.com/jackc/pgx/v5"
)

var _ tenants.Repository = (*TenantRepository)(nil)

type TenantRepository struct {
	conn
}

func (r *TenantRepository) WithTx(ctx context.Context, fn func(context.Context, tenants.Repository) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &TenantRepository{conn: conn{pool: r.pool, tx: tx}})
	})
}

const tenantColumns = `id, slug, name, inbound_slug, time_zone, notify_email,
       stripe_account_id, stripe_charges_enabled, stripe_details_submitted, created_at, updated_at`

func scanTenant(row pgx.Row) (*tenants.Tenant, error) {
	var t tenants.Tenant
	var accountID *string
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.InboundSlug, &t.TimeZone, &t.NotifyEmail,
		&accountID, &t.Stripe.ChargesEnabled, &t.Stripe.DetailsSubmitted, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Stripe.AccountID = derefString(accountID)
	return &t, nil
}

func (r *TenantRepository) CreateTenant(ctx context.Context, t *tenants.Tenant) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO tenants (id, slug, name, inbound_slug, time_zone, notify_email, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Slug, t.Name, t.InboundSlug, t.TimeZone, t.NotifyEmail, t.CreatedAt, t.UpdatedAt)
	return mapError("create tenant", err)
}

func (r *TenantRepository) GetTenant(ctx context.Context, id string) (*tenants.Tenant, error) {
	t, err := scanTenant(r.queryer().QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	return t, mapError("get tenant", err)
}

func (r *TenantRepository) GetTenantByInboundSlug(ctx context.Context, slug string) (*tenants.Tenant, error) {
	t, err := scanTenant(r.queryer().QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE inbound_slug = $1`, slug))
	return t, mapError("get tenant by inbound slug", err)
}

func (r *TenantRepository) GetTenantByStripeAccount(ctx context.Context, accountID string) (*tenants.Tenant, error) {
	t, err := scanTenant(r.queryer().QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE stripe_account_id = $1`, accountID))
	return t, mapError("get tenant by stripe account", err)
}

func (r *TenantRepository) UpdateTenant(ctx context.Context, t *tenants.Tenant) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE tenants SET name = $2, time_zone = $3, notify_email = $4, updated_at = $5 WHERE id = $1`,
		t.ID, t.Name, t.TimeZone, t.NotifyEmail, t.UpdatedAt)
	return expectOne("update tenant", tag, err)
}

func (r *TenantRepository) UpdateConnect(ctx context.Context, tenantID string, c tenants.Connect) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE tenants
   SET stripe_account_id = $2, stripe_charges_enabled = $3, stripe_details_submitted = $4, updated_at = now()
 WHERE id = $1`, tenantID, nullableString(c.AccountID), c.ChargesEnabled, c.DetailsSubmitted)
	return expectOne("update connect status", tag, err)
}

func (r *TenantRepository) CreateUser(ctx context.Context, u *tenants.User) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt)
	return mapError("create user", err)
}

func (r *TenantRepository) getUser(ctx context.Context, where string, arg string) (*tenants.User, error) {
	var u tenants.User
	err := r.queryer().QueryRow(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, mapError("get user", err)
	}
	return &u, nil
}

func (r *TenantRepository) GetUser(ctx context.Context, id string) (*tenants.User, error) {
	return r.getUser(ctx, "id = $1", id)
}

func (r *TenantRepository) GetUserByEmail(ctx context.Context, email string) (*tenants.User, error) {
	return r.getUser(ctx, "lower(email) = lower($1)", email)
}

func (r *TenantRepository) CreateMembership(ctx context.Context, m tenants.Membership) error {
	_, err := r.queryer().Exec(ctx, `INSERT INTO memberships (tenant_id, user_id, role, created_at) VALUES ($1, $2, $3, $4)`,
		m.TenantID, m.UserID, string(m.Role), m.CreatedAt)
	return mapError("create membership", err)
}

func (r *TenantRepository) GetMembership(ctx context.Context, tenantID, userID string) (*tenants.Membership, error) {
	var m tenants.Membership
	var role string
	err := r.queryer().QueryRow(ctx, `
SELECT m.tenant_id, m.user_id, m.role, t.name, t.slug, m.created_at
  FROM memberships m JOIN tenants t ON t.id = m.tenant_id
 WHERE m.tenant_id = $1 AND m.user_id = $2`, tenantID, userID).
		Scan(&m.TenantID, &m.UserID, &role, &m.TenantName, &m.TenantSlug, &m.CreatedAt)
	if err != nil {
		return nil, mapError("get membership", err)
	}
	m.Role = auth.NormalizeRole(role)
	return &m, nil
}

func (r *TenantRepository) ListMemberships(ctx context.Context, userID string) ([]tenants.Membership, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT m.tenant_id, m.user_id, m.role, t.name, t.slug, m.created_at
  FROM memberships m JOIN tenants t ON t.id = m.tenant_id
 WHERE m.user_id = $1
 ORDER BY t.name`, userID)
	if err != nil {
		return nil, mapError("list memberships", err)
	}
	defer rows.Close()

	var out []tenants.Membership
	for rows.Next() {
		var m tenants.Membership
		var role string
		if err := rows.Scan(&m.TenantID, &m.UserID, &role, &m.TenantName, &m.TenantSlug, &m.CreatedAt); err != nil {
			return nil, mapError("scan membership", err)
		}
		m.Role = auth.NormalizeRole(role)
		out = append(out, m)
	}
	return out, mapError("list memberships", rows.Err())
}

func (r *TenantRepository) CreateRefreshToken(ctx context.Context, t tenants.RefreshToken) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO refresh_tokens (id, user_id, family_id, token_hash, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, t.ID, t.UserID, t.FamilyID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	return mapError("create refresh token", err)
}

const refreshTokenSelect = `
SELECT id, user_id, family_id, token_hash, expires_at, revoked_at, replaced_by, created_at
  FROM refresh_tokens WHERE token_hash = $1`

func (r *TenantRepository) GetRefreshTokenByHash(ctx context.Context, hash string) (*tenants.RefreshToken, error) {
	return r.refreshToken(ctx, "get refresh token", refreshTokenSelect, hash)
}

// LockRefreshTokenByHash must run inside WithTx. A concurrent rotation of
// the same token waits here and then sees it revoked.
func (r *TenantRepository) LockRefreshTokenByHash(ctx context.Context, hash string) (*tenants.RefreshToken, error) {
	return r.refreshToken(ctx, "lock refresh token", refreshTokenSelect+` FOR UPDATE`, hash)
}

func (r *TenantRepository) refreshToken(ctx context.Context, op, sql, hash string) (*tenants.RefreshToken, error) {
	var t tenants.RefreshToken
	var replacedBy *string
	err := r.queryer().QueryRow(ctx, sql, hash).
		Scan(&t.ID, &t.UserID, &t.FamilyID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &replacedBy, &t.CreatedAt)
	if err != nil {
		return nil, mapError(op, err)
	}
	t.ReplacedBy = derefString(replacedBy)
	return &t, nil
}

func (r *TenantRepository) RevokeRefreshToken(ctx context.Context, id, replacedBy string, at time.Time) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3 WHERE id = $1 AND revoked_at IS NULL`,
		id, at, nullableString(replacedBy))
	return expectOne("revoke refresh token", tag, err)
}

func (r *TenantRepository) RevokeRefreshFamily(ctx context.Context, familyID string, at time.Time) error {
	_, err := r.queryer().Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE family_id = $1 AND revoked_at IS NULL`, familyID, at)
	return mapError("revoke refresh family", err)
}

func (r *TenantRepository) count(ctx context.Context, op, sql, tenantID string) (int64, error) {
	var n int64
	if err := r.queryer().QueryRow(ctx, sql, tenantID).Scan(&n); err != nil {
		return 0, mapError(op, err)
	}
	return n, nil
}

func (r *TenantRepository) CountContacts(ctx context.Context, tenantID string) (int64, error) {
	return r.count(ctx, "count contacts", `SELECT count(*) FROM contacts WHERE tenant_id = $1 AND archived_at IS NULL`, tenantID)
}

func (r *TenantRepository) CountActivePlans(ctx context.Context, tenantID string) (int64, error) {
	return r.count(ctx, "count plans", `SELECT count(*) FROM breeding_plans WHERE tenant_id = $1 AND status NOT IN ('complete', 'cancelled')`, tenantID)
}

func (r *TenantRepository) CountAvailableOffspring(ctx context.Context, tenantID string) (int64, error) {
	return r.count(ctx, "count offspring", `SELECT count(*) FROM offspring WHERE tenant_id = $1 AND placement_status = 'available'`, tenantID)
}

func (r *TenantRepository) CountOpenInvoices(ctx context.Context, tenantID string) (int64, error) {
	return r.count(ctx, "count invoices", `SELECT count(*) FROM invoices WHERE tenant_id = $1 AND status IN ('issued', 'partially_paid')`, tenantID)
}

func (r *TenantRepository) CountUnreadThreads(ctx context.Context, tenantID string) (int64, error) {
	return r.count(ctx, "count threads", `SELECT count(*) FROM threads WHERE tenant_id = $1 AND status = 'open' AND unread_count > 0`, tenantID)
}
