// Package tasks tracks follow-ups owed by buyers, such as deposits and contracts.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/validation"
	"github.com/rs/zerolog"
)

const (
	StatusOpen = "open"
	StatusDone = "done"
)

// DepositTaskTitle is the task created for a buyer when a draft pick is made.
const DepositTaskTitle = "Complete deposit and contract"

var ErrUnknownContact = errs.New(errs.ErrInvalidReference, "contact does not exist in this tenant")

type Task struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"-"`
	ContactID   string     `json:"contact_id"`
	OffspringID string     `json:"offspring_id,omitempty"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CreateInput struct {
	ContactID   string     `json:"contact_id" validate:"required,ulid"`
	OffspringID string     `json:"offspring_id" validate:"omitempty,ulid"`
	Title       string     `json:"title" validate:"required,max=200"`
	Notes       string     `json:"notes" validate:"max=5000"`
	DueAt       *time.Time `json:"due_at"`
}

type Filters struct {
	ContactID string
	Status    string
	Limit     int
	After     string
}

type ListResult struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, tenantID, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	List(ctx context.Context, tenantID string, filters Filters) (ListResult, error)
	ContactExists(ctx context.Context, tenantID, contactID string) (bool, error)
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "tasks").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewDepositTask builds the task a buyer receives after picking an offspring,
// due dueIn after now.
func NewDepositTask(tenantID, contactID, offspringID string, now time.Time, dueIn time.Duration) *Task {
	due := now.Add(dueIn)
	return &Task{
		ID:          ids.New(),
		TenantID:    tenantID,
		ContactID:   contactID,
		OffspringID: offspringID,
		Title:       DepositTaskTitle,
		DueAt:       &due,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*Task, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	contactID := ids.Normalize(input.ContactID)
	ok, err := s.repo.ContactExists(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownContact
	}
	now := s.now()
	t := &Task{
		ID:          ids.New(),
		TenantID:    tenantID,
		ContactID:   contactID,
		OffspringID: ids.Normalize(input.OffspringID),
		Title:       strings.TrimSpace(input.Title),
		Notes:       input.Notes,
		DueAt:       input.DueAt,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	if filters.Status != "" && filters.Status != StatusOpen && filters.Status != StatusDone {
		return ListResult{}, errs.Invalid("status", "must be one of: open, done")
	}
	return s.repo.List(ctx, tenantID, filters)
}

func (s *Service) Complete(ctx context.Context, tenantID, id string) (*Task, error) {
	return s.setStatus(ctx, tenantID, id, StatusDone)
}

func (s *Service) Reopen(ctx context.Context, tenantID, id string) (*Task, error) {
	return s.setStatus(ctx, tenantID, id, StatusOpen)
}

func (s *Service) setStatus(ctx context.Context, tenantID, id, status string) (*Task, error) {
	t, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if t.Status == status {
		return nil, errs.Transition("task", t.Status, status)
	}
	now := s.now()
	t.Status = status
	t.CompletedAt = nil
	if status == StatusDone {
		t.CompletedAt = &now
	}
	t.UpdatedAt = now
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}
