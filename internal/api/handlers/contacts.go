package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/domain/contacts"
)

type ContactService interface {
	Create(ctx context.Context, tenantID string, input contacts.CreateInput) (*contacts.Contact, error)
	Get(ctx context.Context, tenantID, id string) (*contacts.Contact, error)
	Update(ctx context.Context, tenantID, id string, input contacts.UpdateInput) (*contacts.Contact, error)
	Archive(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string, filters contacts.Filters) (contacts.ListResult, error)
}

type ContactsHandler struct {
	Service ContactService
	Env     string
}

func NewContactsHandler(service ContactService, env string) *ContactsHandler {
	return &ContactsHandler{Service: service, Env: env}
}

func (h *ContactsHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.List(r.Context(), s.TenantID, contacts.Filters{
		Query:           strings.TrimSpace(q.Get("q")),
		Tag:             strings.TrimSpace(q.Get("tag")),
		IncludeArchived: boolParam(r, "include_archived"),
		Limit:           page.Limit,
		After:           page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ContactsHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input contacts.CreateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	contact, err := h.Service.Create(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (h *ContactsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	contact, err := h.Service.Get(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (h *ContactsHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input contacts.UpdateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	contact, err := h.Service.Update(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (h *ContactsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	if err := h.Service.Archive(r.Context(), s.TenantID, id); err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
