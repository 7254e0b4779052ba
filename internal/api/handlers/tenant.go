package handlers

import (
	"context"
	"net/http"

	"github.com/BreederHQ/server/internal/api/middleware"
	"github.com/BreederHQ/server/internal/audit"
	"github.com/BreederHQ/server/internal/domain/tenants"
	"github.com/BreederHQ/server/internal/payments"
)

type TenantService interface {
	Get(ctx context.Context, tenantID string) (*tenants.Tenant, error)
	Update(ctx context.Context, tenantID string, input tenants.UpdateInput) (*tenants.Tenant, error)
	Dashboard(ctx context.Context, tenantID string) (*tenants.Dashboard, error)
}

type PaymentsService interface {
	StartOnboarding(ctx context.Context, tenantID, email string) (*payments.Onboarding, error)
	Status(ctx context.Context, tenantID string) (*tenants.Connect, error)
}

type TenantHandler struct {
	Service  TenantService
	Payments PaymentsService
	Audit    *audit.Logger
	Env      string
}

func NewTenantHandler(service TenantService, payments PaymentsService, auditLog *audit.Logger, env string) *TenantHandler {
	return &TenantHandler{Service: service, Payments: payments, Audit: auditLog, Env: env}
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	tenant, err := h.Service.Get(r.Context(), s.TenantID)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input tenants.UpdateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	tenant, err := h.Service.Update(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	h.Audit.FromRequest(r, audit.Actor{TenantID: s.TenantID, UserID: s.UserID}, "tenant.update", "tenant", s.TenantID, nil)
	writeJSON(w, http.StatusOK, tenant)
}

func (h *TenantHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	dashboard, err := h.Service.Dashboard(r.Context(), s.TenantID)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// StartOnboarding returns a Stripe Connect onboarding link for the tenant.
func (h *TenantHandler) StartOnboarding(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	if h.Payments == nil {
		writeDomainError(w, r, payments.ErrNotConfigured, h.Env)
		return
	}
	email := ""
	if claims := middleware.Claims(r.Context()); claims != nil {
		email = claims.Email
	}
	onboarding, err := h.Payments.StartOnboarding(r.Context(), s.TenantID, email)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	h.Audit.FromRequest(r, audit.Actor{TenantID: s.TenantID, UserID: s.UserID}, "payments.onboarding", "connect_account", onboarding.AccountID, nil)
	writeJSON(w, http.StatusOK, onboarding)
}

func (h *TenantHandler) PaymentsStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	if h.Payments == nil {
		writeDomainError(w, r, payments.ErrNotConfigured, h.Env)
		return
	}
	status, err := h.Payments.Status(r.Context(), s.TenantID)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
