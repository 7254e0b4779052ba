package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/tenants"
	"github.com/stretchr/testify/require"
)

const (
	testTenant  = "01HZX3Q8W6M5V2KJ9T4B7N0C1D"
	otherTenant = "01HZX3Q8W6M5V2KJ9T4B7N0C1E"
)

func newManager() *auth.JWTManager {
	return auth.NewJWTManager("test-secret-test-secret-test-secret", time.Hour, "breederhq")
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CookieAuthenticated(r.Context()) {
			w.Header().Set("X-Via", "cookie")
		}
		_, _ = w.Write([]byte(UserID(r.Context())))
	})
}

func TestAuthenticateBearer(t *testing.T) {
	manager := newManager()
	token, _, err := manager.Generate("U1", "ann@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Authenticate(manager, "bhq_session", "test")(echoUser()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "U1", rec.Body.String())
	require.Empty(t, rec.Header().Get("X-Via"))
}

func TestAuthenticateCookie(t *testing.T) {
	manager := newManager()
	token, _, err := manager.Generate("U2", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "bhq_session", Value: token})
	rec := httptest.NewRecorder()
	Authenticate(manager, "bhq_session", "test")(echoUser()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "U2", rec.Body.String())
	require.Equal(t, "cookie", rec.Header().Get("X-Via"))
}

func TestAuthenticateRejects(t *testing.T) {
	manager := newManager()
	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{name: "no credentials", setup: func(*http.Request) {}},
		{name: "bad scheme", setup: func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }},
		{name: "garbage token", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }},
		{name: "garbage cookie", setup: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "bhq_session", Value: "nope"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			Authenticate(manager, "bhq_session", "test")(echoUser()).ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	stale, _, err := auth.NewJWTManager("test-secret-test-secret-test-secret", -time.Hour, "breederhq").Generate("U1", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+stale)
	rec := httptest.NewRecorder()
	Authenticate(newManager(), "bhq_session", "test")(echoUser()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error_description="expired"`)
	require.Contains(t, rec.Body.String(), "Token expired")
}

type membershipMap map[string]auth.Role

func (m membershipMap) Membership(_ context.Context, tenantID, userID string) (*tenants.Membership, error) {
	role, ok := m[tenantID+"/"+userID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &tenants.Membership{TenantID: tenantID, UserID: userID, Role: role}, nil
}

func withUser(r *http.Request, userID string) *http.Request {
	claims := &auth.Claims{}
	claims.Subject = userID
	return r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
}

func TestTenantScope(t *testing.T) {
	members := membershipMap{testTenant + "/U1": auth.RoleStaff}
	var got Scope
	handler := TenantScope(members, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ScopeFrom(r.Context())
	}))

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil), "U1")
	req.Header.Set(TenantHeader, testTenant)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, Scope{TenantID: testTenant, UserID: "U1", Role: auth.RoleStaff}, got)

	req = withUser(httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil), "U1")
	req.Header.Set(TenantHeader, otherTenant)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = withUser(httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil), "U1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = withUser(httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil), "U1")
	req.Header.Set(TenantHeader, "not-a-ulid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(auth.RoleStaff, "test")(okHandler())
	for role, want := range map[auth.Role]int{
		auth.RoleViewer: http.StatusForbidden,
		auth.RoleStaff:  http.StatusOK,
		auth.RoleAdmin:  http.StatusOK,
		auth.RoleOwner:  http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/contacts", nil)
		req = req.WithContext(WithScope(req.Context(), Scope{TenantID: testTenant, UserID: "U1", Role: role}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, role)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/contacts", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
