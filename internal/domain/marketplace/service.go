// Package marketplace manages tenant listings and serves their public,
// PII-free projection.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/sanitize"
	"github.com/BreederHQ/server/internal/validation"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "marketplace").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*Listing, error) {
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	subjectID := ids.Normalize(input.SubjectID)
	species, err := s.repo.SubjectSpecies(ctx, tenantID, input.Kind, subjectID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, ErrUnknownSubject
	}
	if err != nil {
		return nil, err
	}
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}
	now := s.now()
	l := &Listing{
		ID:          ids.New(),
		TenantID:    tenantID,
		Kind:        input.Kind,
		SubjectID:   subjectID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Species:     species,
		PriceCents:  input.PriceCents,
		Currency:    currency,
		City:        strings.TrimSpace(input.City),
		Region:      strings.TrimSpace(input.Region),
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	return l, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*Listing, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	return s.repo.List(ctx, tenantID, filters)
}

func (s *Service) Update(ctx context.Context, tenantID, id string, input UpdateInput) (*Listing, error) {
	if input.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*input.Currency))
		input.Currency = &c
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	l, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		l.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		l.Description = *input.Description
	}
	if input.PriceCents != nil {
		price := *input.PriceCents
		l.PriceCents = &price
	}
	if input.Currency != nil {
		l.Currency = *input.Currency
	}
	if input.City != nil {
		l.City = strings.TrimSpace(*input.City)
	}
	if input.Region != nil {
		l.Region = strings.TrimSpace(*input.Region)
	}
	l.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	return l, nil
}

// Publish makes a draft or archived listing public. PublishedAt is kept from
// the first publication.
func (s *Service) Publish(ctx context.Context, tenantID, id string) (*Listing, error) {
	return s.setStatus(ctx, tenantID, id, StatusPublished)
}

func (s *Service) Archive(ctx context.Context, tenantID, id string) (*Listing, error) {
	return s.setStatus(ctx, tenantID, id, StatusArchived)
}

func (s *Service) setStatus(ctx context.Context, tenantID, id, status string) (*Listing, error) {
	l, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if l.Status == status {
		return nil, errs.Transition("listing", l.Status, status)
	}
	now := s.now()
	if status == StatusPublished && l.PublishedAt == nil {
		l.PublishedAt = &now
	}
	l.Status = status
	l.UpdatedAt = now
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("set listing status: %w", err)
	}
	s.logger.Info().Str("listing_id", id).Str("status", status).Msg("listing status changed")
	return l, nil
}

// PublicGet returns a published listing; drafts and archived listings are not found.
func (s *Service) PublicGet(ctx context.Context, id string) (*PublicListing, error) {
	row, err := s.repo.GetPublished(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := s.project(ctx, *row)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) PublicList(ctx context.Context, filters PublicFilters) (PublicListResult, error) {
	rows, next, err := s.repo.ListPublished(ctx, filters)
	if err != nil {
		return PublicListResult{}, err
	}
	items := make([]PublicListing, 0, len(rows))
	for _, row := range rows {
		p, err := s.project(ctx, row)
		if err != nil {
			return PublicListResult{}, err
		}
		items = append(items, p)
	}
	return PublicListResult{Items: items, NextCursor: next}, nil
}

func (s *Service) project(ctx context.Context, row PublishedRow) (PublicListing, error) {
	out := Project(row)
	if row.Kind == KindOffspringGroup {
		avail, err := s.repo.Availability(ctx, row.TenantID, row.SubjectID)
		if err != nil {
			return PublicListing{}, fmt.Errorf("listing availability: %w", err)
		}
		out.Availability = &avail
	}
	return out, nil
}

// Project strips PII from a published listing: HTML is removed and any email
// address or phone number in free text is redacted.
func Project(row PublishedRow) PublicListing {
	clean := func(s string) string { return sanitize.RedactContacts(sanitize.Plain(s)) }
	out := PublicListing{
		ID:          row.ID,
		Kind:        row.Kind,
		Title:       clean(row.Title),
		Description: clean(row.Description),
		Species:     row.Species,
		PriceCents:  row.PriceCents,
		Currency:    row.Currency,
		City:        row.City,
		Region:      row.Region,
		BreederName: row.TenantName,
		BreederSlug: row.TenantSlug,
	}
	if row.PublishedAt != nil {
		out.PublishedAt = *row.PublishedAt
	}
	return out
}
