package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/api/problem"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/offspring"
)

type OffspringService interface {
	Get(ctx context.Context, tenantID, id string) (*offspring.Offspring, error)
	List(ctx context.Context, tenantID string, filters offspring.Filters) (offspring.ListResult, error)
	Update(ctx context.Context, tenantID, id string, input offspring.UpdateInput) (*offspring.Offspring, error)
	SetPlacement(ctx context.Context, tenantID, id string, input offspring.PlacementInput) (*offspring.Offspring, error)
	ApplyPricing(ctx context.Context, tenantID, planID string, schedule offspring.PricingSchedule) ([]offspring.PriceChange, error)
	AddAssessment(ctx context.Context, tenantID, offspringID string, input offspring.AssessmentInput) (*offspring.Assessment, error)
	ListAssessments(ctx context.Context, tenantID, offspringID string) ([]offspring.Assessment, error)
}

type OffspringHandler struct {
	Service OffspringService
	Env     string
}

func NewOffspringHandler(service OffspringService, env string) *OffspringHandler {
	return &OffspringHandler{Service: service, Env: env}
}

func (h *OffspringHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.List(r.Context(), s.TenantID, offspring.Filters{
		PlanID: strings.ToUpper(strings.TrimSpace(q.Get("plan_id"))),
		Status: strings.TrimSpace(q.Get("status")),
		Limit:  page.Limit,
		After:  page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *OffspringHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	item, err := h.Service.Get(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *OffspringHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input offspring.UpdateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	item, err := h.Service.Update(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *OffspringHandler) SetPlacement(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input offspring.PlacementInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	input.BuyerID = strings.ToUpper(strings.TrimSpace(input.BuyerID))
	item, err := h.Service.SetPlacement(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ApplyPricing prices a plan's litter from a YAML or JSON schedule body.
func (h *OffspringHandler) ApplyPricing(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	planID, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	body, ok := readBody(w, r, h.Env)
	if !ok {
		return
	}
	schedule, err := offspring.ParseSchedule(body)
	if err != nil {
		if _, isValidation := errs.AsValidation(err); isValidation {
			writeDomainError(w, r, err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Malformed pricing schedule", err, h.Env)
		return
	}
	changes, err := h.Service.ApplyPricing(r.Context(), s.TenantID, planID, schedule)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	if changes == nil {
		changes = []offspring.PriceChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func (h *OffspringHandler) AddAssessment(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input offspring.AssessmentInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	assessment, err := h.Service.AddAssessment(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, assessment)
}

func (h *OffspringHandler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	items, err := h.Service.ListAssessments(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	if items == nil {
		items = []offspring.Assessment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
