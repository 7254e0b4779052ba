package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/domain/marketplace"
)

type ListingService interface {
	Create(ctx context.Context, tenantID string, input marketplace.CreateInput) (*marketplace.Listing, error)
	Get(ctx context.Context, tenantID, id string) (*marketplace.Listing, error)
	List(ctx context.Context, tenantID string, filters marketplace.Filters) (marketplace.ListResult, error)
	Update(ctx context.Context, tenantID, id string, input marketplace.UpdateInput) (*marketplace.Listing, error)
	Publish(ctx context.Context, tenantID, id string) (*marketplace.Listing, error)
	Archive(ctx context.Context, tenantID, id string) (*marketplace.Listing, error)
	PublicGet(ctx context.Context, id string) (*marketplace.PublicListing, error)
	PublicList(ctx context.Context, filters marketplace.PublicFilters) (marketplace.PublicListResult, error)
}

type ListingsHandler struct {
	Service ListingService
	Env     string
}

func NewListingsHandler(service ListingService, env string) *ListingsHandler {
	return &ListingsHandler{Service: service, Env: env}
}

func (h *ListingsHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.List(r.Context(), s.TenantID, marketplace.Filters{
		Status: strings.TrimSpace(q.Get("status")),
		Kind:   strings.TrimSpace(q.Get("kind")),
		Limit:  page.Limit,
		After:  page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ListingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input marketplace.CreateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	listing, err := h.Service.Create(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (h *ListingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	listing, err := h.Service.Get(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *ListingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input marketplace.UpdateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	listing, err := h.Service.Update(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *ListingsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.Service.Publish)
}

func (h *ListingsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.Service.Archive)
}

func (h *ListingsHandler) change(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (*marketplace.Listing, error)) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	listing, err := fn(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// PublicList serves published listings without authentication.
func (h *ListingsHandler) PublicList(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.PublicList(r.Context(), marketplace.PublicFilters{
		Species: strings.TrimSpace(q.Get("species")),
		Region:  strings.TrimSpace(q.Get("region")),
		Limit:   page.Limit,
		After:   page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, result)
}

func (h *ListingsHandler) PublicGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	listing, err := h.Service.PublicGet(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, listing)
}
