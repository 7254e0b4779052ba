package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/domain/nutrition"
)

type NutritionService interface {
	Log(ctx context.Context, tenantID string, input nutrition.LogInput) (*nutrition.FeedingLog, error)
	List(ctx context.Context, tenantID string, filters nutrition.Filters) (nutrition.ListResult, error)
	Delete(ctx context.Context, tenantID, id string) error
	DailySummary(ctx context.Context, tenantID string, q nutrition.SummaryQuery) (*nutrition.Summary, error)
}

type NutritionHandler struct {
	Service NutritionService
	Env     string
}

func NewNutritionHandler(service NutritionService, env string) *NutritionHandler {
	return &NutritionHandler{Service: service, Env: env}
}

func (h *NutritionHandler) Log(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input nutrition.LogInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	input.AnimalID = strings.ToUpper(strings.TrimSpace(input.AnimalID))
	entry, err := h.Service.Log(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *NutritionHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	from, err := timeParam(r, "from")
	if err != nil {
		writeBadQuery(w, r, "from", err, h.Env)
		return
	}
	to, err := timeParam(r, "to")
	if err != nil {
		writeBadQuery(w, r, "to", err, h.Env)
		return
	}
	result, err := h.Service.List(r.Context(), s.TenantID, nutrition.Filters{
		AnimalID: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("animal_id"))),
		From:     from,
		To:       to,
		Limit:    page.Limit,
		After:    page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *NutritionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), s.TenantID, id); err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Summary totals an animal's feedings per calendar day in the tenant's zone.
func (h *NutritionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	summary, err := h.Service.DailySummary(r.Context(), s.TenantID, nutrition.SummaryQuery{
		AnimalID: id,
		From:     strings.TrimSpace(q.Get("from")),
		To:       strings.TrimSpace(q.Get("to")),
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
