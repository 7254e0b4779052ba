package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/BreederHQ/server/internal/documents"
)

type DocumentService interface {
	Invoice(ctx context.Context, tenantID, invoiceID, format string) (*documents.Document, error)
	Contract(ctx context.Context, tenantID, offspringID, format string) (*documents.Document, error)
}

type DocumentsHandler struct {
	Service DocumentService
	Env     string
}

func NewDocumentsHandler(service DocumentService, env string) *DocumentsHandler {
	return &DocumentsHandler{Service: service, Env: env}
}

// Invoice renders GET /invoices/{id}/document?format=html|pdf.
func (h *DocumentsHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, h.Service.Invoice)
}

// Contract renders the sales contract for a placed offspring.
func (h *DocumentsHandler) Contract(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, h.Service.Contract)
}

func (h *DocumentsHandler) render(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string, string) (*documents.Document, error)) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	doc, err := fn(r.Context(), s.TenantID, id, format)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}

	disposition := "inline"
	if boolParam(r, "download") {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.Filename))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}
