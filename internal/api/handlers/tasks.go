package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/domain/tasks"
)

type TaskService interface {
	Create(ctx context.Context, tenantID string, input tasks.CreateInput) (*tasks.Task, error)
	List(ctx context.Context, tenantID string, filters tasks.Filters) (tasks.ListResult, error)
	Complete(ctx context.Context, tenantID, id string) (*tasks.Task, error)
	Reopen(ctx context.Context, tenantID, id string) (*tasks.Task, error)
}

type TasksHandler struct {
	Service TaskService
	Env     string
}

func NewTasksHandler(service TaskService, env string) *TasksHandler {
	return &TasksHandler{Service: service, Env: env}
}

func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.Service.List(r.Context(), s.TenantID, tasks.Filters{
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

func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input tasks.CreateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	task, err := h.Service.Create(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TasksHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.Service.Complete)
}

func (h *TasksHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.Service.Reopen)
}

func (h *TasksHandler) setStatus(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (*tasks.Task, error)) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	task, err := fn(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
