package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/domain/breeding"
)

type BreedingService interface {
	Create(ctx context.Context, tenantID string, input breeding.CreateInput) (*breeding.Plan, error)
	Get(ctx context.Context, tenantID, id string) (*breeding.Plan, error)
	List(ctx context.Context, tenantID string, filters breeding.Filters) (breeding.ListResult, error)
	Update(ctx context.Context, tenantID, id string, input breeding.UpdateInput) (*breeding.Plan, error)
	Transition(ctx context.Context, tenantID, id string, input breeding.TransitionInput) (*breeding.Plan, error)
	RecordBirth(ctx context.Context, tenantID, id string, input breeding.BirthInput) (*breeding.BirthResult, error)
}

type BreedingHandler struct {
	Service BreedingService
	Env     string
}

func NewBreedingHandler(service BreedingService, env string) *BreedingHandler {
	return &BreedingHandler{Service: service, Env: env}
}

func (h *BreedingHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.List(r.Context(), s.TenantID, breeding.Filters{
		Status:  strings.TrimSpace(q.Get("status")),
		Species: strings.TrimSpace(q.Get("species")),
		Limit:   page.Limit,
		After:   page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BreedingHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input breeding.CreateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	plan, err := h.Service.Create(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (h *BreedingHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	plan, err := h.Service.Get(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *BreedingHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input breeding.UpdateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	plan, err := h.Service.Update(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *BreedingHandler) Transition(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input breeding.TransitionInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	plan, err := h.Service.Transition(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// RecordBirth marks the plan birthed and creates the litter's offspring.
func (h *BreedingHandler) RecordBirth(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input breeding.BirthInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	result, err := h.Service.RecordBirth(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
