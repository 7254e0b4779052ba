package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/audit"
	"github.com/BreederHQ/server/internal/domain/messaging"
)

type MessagingService interface {
	ListThreads(ctx context.Context, tenantID string, filters messaging.ThreadFilters) (messaging.ThreadList, error)
	GetThread(ctx context.Context, tenantID, id string) (*messaging.Thread, error)
	ListMessages(ctx context.Context, tenantID, threadID string, filters messaging.MessageFilters) (messaging.MessageList, error)
	MarkRead(ctx context.Context, tenantID, threadID string) (*messaging.Thread, error)
	Archive(ctx context.Context, tenantID, threadID string) (*messaging.Thread, error)
	Release(ctx context.Context, tenantID, messageID string) (*messaging.Message, error)
	Reply(ctx context.Context, tenantID, threadID string, input messaging.ReplyInput) (*messaging.Message, error)
	Compose(ctx context.Context, tenantID string, input messaging.ComposeInput) (*messaging.Thread, *messaging.Message, error)
}

type MessagingHandler struct {
	Service MessagingService
	Audit   *audit.Logger
	Env     string
}

func NewMessagingHandler(service MessagingService, auditLog *audit.Logger, env string) *MessagingHandler {
	return &MessagingHandler{Service: service, Audit: auditLog, Env: env}
}

func (h *MessagingHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.ListThreads(r.Context(), s.TenantID, messaging.ThreadFilters{
		Status:    strings.TrimSpace(q.Get("status")),
		ContactID: strings.ToUpper(strings.TrimSpace(q.Get("contact_id"))),
		Limit:     page.Limit,
		After:     page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MessagingHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	thread, err := h.Service.GetThread(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// ListMessages hides quarantined mail unless ?include_quarantined=true.
func (h *MessagingHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	result, err := h.Service.ListMessages(r.Context(), s.TenantID, id, messaging.MessageFilters{
		IncludeQuarantined: boolParam(r, "include_quarantined"),
		Limit:              page.Limit,
		After:              page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MessagingHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.threadChange(w, r, h.Service.MarkRead)
}

func (h *MessagingHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.threadChange(w, r, h.Service.Archive)
}

func (h *MessagingHandler) threadChange(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (*messaging.Thread, error)) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	thread, err := fn(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *MessagingHandler) Reply(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input messaging.ReplyInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	msg, err := h.Service.Reply(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}

func (h *MessagingHandler) Compose(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input messaging.ComposeInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	input.ContactID = strings.ToUpper(strings.TrimSpace(input.ContactID))
	thread, msg, err := h.Service.Compose(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"thread": thread, "message": msg})
}

// Release moves a quarantined message into the inbox.
func (h *MessagingHandler) Release(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	msg, err := h.Service.Release(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	h.Audit.FromRequest(r, audit.Actor{TenantID: s.TenantID, UserID: s.UserID}, "message.release", "message", id,
		map[string]string{"verdict": msg.Verdict})
	writeJSON(w, http.StatusOK, msg)
}
