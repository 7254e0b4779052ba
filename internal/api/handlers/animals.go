package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/audit"
	"github.com/BreederHQ/server/internal/domain/animals"
)

type AnimalService interface {
	Create(ctx context.Context, tenantID string, input animals.CreateInput) (*animals.Animal, error)
	Get(ctx context.Context, tenantID, id string) (*animals.Animal, error)
	List(ctx context.Context, tenantID string, filters animals.Filters) (animals.ListResult, error)
	Update(ctx context.Context, tenantID, id string, input animals.UpdateInput) (*animals.Animal, error)
	Archive(ctx context.Context, tenantID, id string) error
	RegenerateExchangeCode(ctx context.Context, tenantID, id string) (*animals.Animal, error)
	RequestLink(ctx context.Context, tenantID string, input animals.LinkRequest) (*animals.Link, error)
	Approve(ctx context.Context, tenantID, linkID string) (*animals.Link, error)
	Reject(ctx context.Context, tenantID, linkID string) (*animals.Link, error)
	Revoke(ctx context.Context, tenantID, linkID string) (*animals.Link, error)
	ListLinks(ctx context.Context, tenantID string, filters animals.LinkFilters) ([]animals.Link, error)
	Linked(ctx context.Context, tenantID, animalID string) (*animals.LinkedAnimal, error)
}

type AnimalsHandler struct {
	Service AnimalService
	Audit   *audit.Logger
	Env     string
}

func NewAnimalsHandler(service AnimalService, auditLog *audit.Logger, env string) *AnimalsHandler {
	return &AnimalsHandler{Service: service, Audit: auditLog, Env: env}
}

func (h *AnimalsHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.List(r.Context(), s.TenantID, animals.Filters{
		Species: strings.TrimSpace(q.Get("species")),
		Sex:     strings.TrimSpace(q.Get("sex")),
		Status:  strings.TrimSpace(q.Get("status")),
		Query:   strings.TrimSpace(q.Get("q")),
		Limit:   page.Limit,
		After:   page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AnimalsHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input animals.CreateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	animal, err := h.Service.Create(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, animal)
}

func (h *AnimalsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	animal, err := h.Service.Get(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, animal)
}

func (h *AnimalsHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input animals.UpdateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	animal, err := h.Service.Update(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, animal)
}

func (h *AnimalsHandler) Archive(w http.ResponseWriter, r *http.Request) {
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

// RegenerateExchangeCode invalidates the old shareable code.
func (h *AnimalsHandler) RegenerateExchangeCode(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	animal, err := h.Service.RegenerateExchangeCode(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	h.Audit.FromRequest(r, audit.Actor{TenantID: s.TenantID, UserID: s.UserID}, "animal.exchange_code.regenerate", "animal", id, nil)
	writeJSON(w, http.StatusOK, animal)
}

func (h *AnimalsHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	links, err := h.Service.ListLinks(r.Context(), s.TenantID, animals.LinkFilters{
		Direction: strings.TrimSpace(q.Get("direction")),
		Status:    strings.TrimSpace(q.Get("status")),
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	if links == nil {
		links = []animals.Link{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": links})
}

func (h *AnimalsHandler) RequestLink(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input animals.LinkRequest
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	link, err := h.Service.RequestLink(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (h *AnimalsHandler) ApproveLink(w http.ResponseWriter, r *http.Request) {
	h.decideLink(w, r, "approve", h.Service.Approve)
}

func (h *AnimalsHandler) RejectLink(w http.ResponseWriter, r *http.Request) {
	h.decideLink(w, r, "reject", h.Service.Reject)
}

func (h *AnimalsHandler) RevokeLink(w http.ResponseWriter, r *http.Request) {
	h.decideLink(w, r, "revoke", h.Service.Revoke)
}

func (h *AnimalsHandler) decideLink(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string, string) (*animals.Link, error)) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	link, err := fn(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	h.Audit.FromRequest(r, audit.Actor{TenantID: s.TenantID, UserID: s.UserID}, "animal_link."+action, "animal_link", id, nil)
	writeJSON(w, http.StatusOK, link)
}

// Linked returns another tenant's animal through an approved link.
func (h *AnimalsHandler) Linked(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	animal, err := h.Service.Linked(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, animal)
}
