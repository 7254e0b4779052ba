package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/audit"
	"github.com/BreederHQ/server/internal/domain/invoices"
)

type InvoiceService interface {
	Create(ctx context.Context, tenantID string, input invoices.CreateInput) (*invoices.Invoice, error)
	Get(ctx context.Context, tenantID, id string) (*invoices.Detail, error)
	List(ctx context.Context, tenantID string, filters invoices.Filters) (invoices.ListResult, error)
	Issue(ctx context.Context, tenantID, id string) (*invoices.Invoice, error)
	Void(ctx context.Context, tenantID, id string) (*invoices.Invoice, error)
	RecordPayment(ctx context.Context, tenantID, invoiceID string, input invoices.PaymentInput) (*invoices.Payment, *invoices.Invoice, error)
	ListPayments(ctx context.Context, tenantID, invoiceID string) ([]invoices.Payment, error)
}

type InvoicesHandler struct {
	Service InvoiceService
	Audit   *audit.Logger
	Env     string
}

func NewInvoicesHandler(service InvoiceService, auditLog *audit.Logger, env string) *InvoicesHandler {
	return &InvoicesHandler{Service: service, Audit: auditLog, Env: env}
}

func (h *InvoicesHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.List(r.Context(), s.TenantID, invoices.Filters{
		ContactID: strings.ToUpper(strings.TrimSpace(q.Get("contact_id"))),
		Status:    strings.TrimSpace(q.Get("status")),
		Limit:     page.Limit,
		After:     page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InvoicesHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input invoices.CreateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	invoice, err := h.Service.Create(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (h *InvoicesHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	detail, err := h.Service.Get(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *InvoicesHandler) Issue(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "issue", h.Service.Issue)
}

func (h *InvoicesHandler) Void(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "void", h.Service.Void)
}

func (h *InvoicesHandler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string, string) (*invoices.Invoice, error)) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	invoice, err := fn(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	h.Audit.FromRequest(r, audit.Actor{TenantID: s.TenantID, UserID: s.UserID}, "invoice."+action, "invoice", id, nil)
	writeJSON(w, http.StatusOK, invoice)
}

// RecordPayment applies a manual payment. The route sits behind the
// Idempotency middleware so retried submissions are not double counted.
func (h *InvoicesHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input invoices.PaymentInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	payment, invoice, err := h.Service.RecordPayment(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	h.Audit.FromRequest(r, audit.Actor{TenantID: s.TenantID, UserID: s.UserID}, "invoice.payment", "payment", payment.ID,
		map[string]string{"invoice_id": id})
	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment, "invoice": invoice})
}

func (h *InvoicesHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	items, err := h.Service.ListPayments(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	if items == nil {
		items = []invoices.Payment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
