package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/documents"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDocuments struct {
	formats []string
}

func (s *stubDocuments) Invoice(_ context.Context, _, invoiceID, format string) (*documents.Document, error) {
	s.formats = append(s.formats, format)
	if format == "pdf" {
		return &documents.Document{Body: []byte("%PDF-1.7"), ContentType: "application/pdf", Filename: "INV-0001.pdf"}, nil
	}
	return &documents.Document{Body: []byte("<html></html>"), ContentType: "text/html; charset=utf-8", Filename: "INV-0001.html"}, nil
}

func (s *stubDocuments) Contract(context.Context, string, string, string) (*documents.Document, error) {
	return nil, errs.New(errs.ErrInvalidTransition, "offspring has no buyer")
}

func TestDocumentsInvoice(t *testing.T) {
	params := map[string]string{"id": testBoard}

	t.Run("inline html", func(t *testing.T) {
		stub := &stubDocuments{}
		h := NewDocumentsHandler(stub, "test")

		w := httptest.NewRecorder()
		h.Invoice(w, scopedRequest(http.MethodGet, "/?format=HTML", "", auth.RoleViewer, params))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"html"}, stub.formats)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, `inline; filename="INV-0001.html"`, w.Header().Get("Content-Disposition"))
		assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
		assert.Equal(t, "13", w.Header().Get("Content-Length"))
	})

	t.Run("pdf download", func(t *testing.T) {
		h := NewDocumentsHandler(&stubDocuments{}, "test")

		w := httptest.NewRecorder()
		h.Invoice(w, scopedRequest(http.MethodGet, "/?format=pdf&download=true", "", auth.RoleViewer, params))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="INV-0001.pdf"`, w.Header().Get("Content-Disposition"))
		assert.Equal(t, "%PDF-1.7", w.Body.String())
	})
}

func TestDocumentsContractError(t *testing.T) {
	h := NewDocumentsHandler(&stubDocuments{}, "test")

	w := httptest.NewRecorder()
	h.Contract(w, scopedRequest(http.MethodGet, "/", "", auth.RoleViewer, map[string]string{"id": testPup}))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "offspring has no buyer")
}
