package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/api/problem"
	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/domain/tenants"
	"github.com/rs/zerolog"
)

const (
	TenantHeader     = "X-Tenant-ID"
	TenantQueryParam = "tenant_id"
)

// MembershipResolver loads a user's role within a tenant.
type MembershipResolver interface {
	Membership(ctx context.Context, tenantID, userID string) (*tenants.Membership, error)
}

// Scope is the tenant a request acts on and the caller's role there.
type Scope struct {
	TenantID string
	UserID   string
	Role     auth.Role
}

type scopeContextKey struct{}

// TenantScope resolves X-Tenant-ID (or ?tenant_id=) against the caller's memberships. It must
// run after Authenticate. Callers without a membership get 403.
func TenantScope(resolver MembershipResolver, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserID(r.Context())
			if userID == "" {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			raw := r.Header.Get(TenantHeader)
			if raw == "" {
				// Browsers cannot set headers on websocket upgrades.
				raw = r.URL.Query().Get(TenantQueryParam)
			}
			tenantID := strings.ToUpper(strings.TrimSpace(raw))
			if tenantID == "" {
				problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Missing "+TenantHeader+" header", errs.Invalid("tenant_id", "required"), env)
				return
			}
			if err := ids.ValidateULID(tenantID); err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Invalid "+TenantHeader+" header", err, env)
				return
			}

			membership, err := resolver.Membership(r.Context(), tenantID, userID)
			if err != nil {
				if errors.Is(err, errs.ErrNotFound) {
					problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Not a member of this tenant", errs.ErrForbidden, env)
					return
				}
				problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
				return
			}

			scope := Scope{TenantID: tenantID, UserID: userID, Role: membership.Role}
			ctx := context.WithValue(r.Context(), scopeContextKey{}, scope)
			logger := zerolog.Ctx(ctx).With().Str("tenant_id", tenantID).Str("user_id", userID).Logger()
			ctx = logger.WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ScopeFrom returns the resolved tenant scope.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}

// RequireRole rejects callers ranked below min in the current tenant.
func RequireRole(min auth.Role, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, ok := ScopeFrom(r.Context())
			if !ok || !scope.Role.AtLeast(min) {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Insufficient permissions", errs.ErrForbidden, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithScope is used by tests and jobs that act on a tenant outside the HTTP chain.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}
