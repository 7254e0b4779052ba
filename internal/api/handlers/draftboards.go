package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/audit"
	"github.com/BreederHQ/server/internal/domain/draftboard"
	"github.com/BreederHQ/server/internal/metrics"
	"github.com/rs/zerolog"
)

type DraftBoardService interface {
	Create(ctx context.Context, tenantID string, input draftboard.CreateInput) (*draftboard.Board, error)
	List(ctx context.Context, tenantID string, filters draftboard.Filters) (draftboard.ListResult, error)
	Get(ctx context.Context, tenantID, id string) (*draftboard.View, error)
	SetParticipants(ctx context.Context, tenantID, boardID string, input draftboard.ParticipantsInput) ([]draftboard.Pick, error)
	Start(ctx context.Context, tenantID, boardID string) (*draftboard.Board, error)
	MakePick(ctx context.Context, tenantID, boardID, pickID, offspringID string) (*draftboard.Board, error)
	Defer(ctx context.Context, tenantID, boardID, pickID string) (*draftboard.Board, error)
	Pass(ctx context.Context, tenantID, boardID, pickID string) (*draftboard.Board, error)
	Pause(ctx context.Context, tenantID, boardID string) (*draftboard.Board, error)
	Resume(ctx context.Context, tenantID, boardID string) (*draftboard.Board, error)
	Cancel(ctx context.Context, tenantID, boardID string) (*draftboard.Board, error)
}

// LiveHub streams board events to websocket viewers.
type LiveHub interface {
	Serve(w http.ResponseWriter, r *http.Request, tenantID, boardID string, initial any) error
}

type DraftBoardsHandler struct {
	Service DraftBoardService
	Hub     LiveHub
	Audit   *audit.Logger
	Logger  zerolog.Logger
	Env     string
}

func NewDraftBoardsHandler(service DraftBoardService, hub LiveHub, auditLog *audit.Logger, logger zerolog.Logger, env string) *DraftBoardsHandler {
	return &DraftBoardsHandler{Service: service, Hub: hub, Audit: auditLog, Logger: logger, Env: env}
}

type pickRequest struct {
	OffspringID string `json:"offspring_id"`
}

func (h *DraftBoardsHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	page, ok := pageParams(w, r, h.Env)
	if !ok {
		return
	}
	result, err := h.Service.List(r.Context(), s.TenantID, draftboard.Filters{
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Limit:  page.Limit,
		After:  page.After,
	})
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *DraftBoardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	var input draftboard.CreateInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	input.PlanID = strings.ToUpper(strings.TrimSpace(input.PlanID))
	board, err := h.Service.Create(r.Context(), s.TenantID, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

// Get returns the board with its pick order and offspring pool.
func (h *DraftBoardsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	view, err := h.Service.Get(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *DraftBoardsHandler) SetParticipants(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	var input draftboard.ParticipantsInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	for i, buyer := range input.BuyerIDs {
		input.BuyerIDs[i] = strings.ToUpper(strings.TrimSpace(buyer))
	}
	picks, err := h.Service.SetParticipants(r.Context(), s.TenantID, id, input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	if picks == nil {
		picks = []draftboard.Pick{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"picks": picks})
}

func (h *DraftBoardsHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "start", h.Service.Start)
}

func (h *DraftBoardsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "pause", h.Service.Pause)
}

func (h *DraftBoardsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "resume", h.Service.Resume)
}

func (h *DraftBoardsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "cancel", h.Service.Cancel)
}

func (h *DraftBoardsHandler) lifecycle(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string, string) (*draftboard.Board, error)) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	board, err := fn(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	h.Audit.FromRequest(r, audit.Actor{TenantID: s.TenantID, UserID: s.UserID}, "draft_board."+action, "draft_board", id, nil)
	writeJSON(w, http.StatusOK, board)
}

// Select claims an offspring for the pick currently on the clock.
func (h *DraftBoardsHandler) Select(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	boardID, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	pickID, ok := idParam(w, r, "pickID", h.Env)
	if !ok {
		return
	}
	var body pickRequest
	if !decodeJSON(w, r, &body, h.Env) {
		return
	}
	board, err := h.Service.MakePick(r.Context(), s.TenantID, boardID, pickID, strings.ToUpper(strings.TrimSpace(body.OffspringID)))
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	metrics.DraftPicks.WithLabelValues("picked").Inc()
	writeJSON(w, http.StatusOK, board)
}

func (h *DraftBoardsHandler) Defer(w http.ResponseWriter, r *http.Request) {
	h.pickAction(w, r, "deferred", h.Service.Defer)
}

func (h *DraftBoardsHandler) Pass(w http.ResponseWriter, r *http.Request) {
	h.pickAction(w, r, "passed", h.Service.Pass)
}

func (h *DraftBoardsHandler) pickAction(w http.ResponseWriter, r *http.Request, outcome string, fn func(context.Context, string, string, string) (*draftboard.Board, error)) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	boardID, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	pickID, ok := idParam(w, r, "pickID", h.Env)
	if !ok {
		return
	}
	board, err := fn(r.Context(), s.TenantID, boardID, pickID)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	metrics.DraftPicks.WithLabelValues(outcome).Inc()
	writeJSON(w, http.StatusOK, board)
}

// Live upgrades to a websocket that receives the board snapshot followed by
// every committed change.
func (h *DraftBoardsHandler) Live(w http.ResponseWriter, r *http.Request) {
	s, ok := scope(w, r, h.Env)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", h.Env)
	if !ok {
		return
	}
	view, err := h.Service.Get(r.Context(), s.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}

	metrics.DraftBoardViewers.Inc()
	defer metrics.DraftBoardViewers.Dec()
	if err := h.Hub.Serve(w, r, s.TenantID, id, view); err != nil {
		// The upgrader has already answered the client.
		h.Logger.Debug().Err(err).Str("board_id", id).Msg("draft board upgrade failed")
	}
}
