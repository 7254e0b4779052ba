// Package contacts is the tenant's party CRM: buyers, leads, co-owners and
// organizations that every other module refers to.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
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
		logger: logger.With().Str("component", "contacts").Logger(),
		now:    time.Now,
	}
}

func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*Contact, error) {
	input.Email = NormalizeEmail(input.Email)
	input.Tags = normalizeTags(input.Tags)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &Contact{
		ID:           ids.New(),
		TenantID:     tenantID,
		Kind:         input.Kind,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Organization: strings.TrimSpace(input.Organization),
		Email:        input.Email,
		Phone:        strings.TrimSpace(input.Phone),
		Address:      input.Address,
		Tags:         input.Tags,
		Source:       input.Source,
		Notes:        input.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if c.Kind == "" {
		c.Kind = KindPerson
	}
	if c.Source == "" {
		c.Source = SourceManual
	}
	if c.DisplayName == "" {
		c.DisplayName = deriveDisplayName(c)
	}
	if c.DisplayName == "" {
		return nil, errs.Invalid("display_name", "a name, organization or email is required")
	}

	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*Contact, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) Update(ctx context.Context, tenantID, id string, input UpdateInput) (*Contact, error) {
	if input.Email != nil {
		normalized := NormalizeEmail(*input.Email)
		input.Email = &normalized
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.ArchivedAt != nil {
		return nil, errs.New(errs.ErrConflict, "contact is archived")
	}

	nameChanged := false
	if input.FirstName != nil {
		c.FirstName = strings.TrimSpace(*input.FirstName)
		nameChanged = true
	}
	if input.LastName != nil {
		c.LastName = strings.TrimSpace(*input.LastName)
		nameChanged = true
	}
	if input.Organization != nil {
		c.Organization = strings.TrimSpace(*input.Organization)
		nameChanged = true
	}
	if input.Email != nil {
		c.Email = *input.Email
	}
	if input.Phone != nil {
		c.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.Address != nil {
		c.Address = *input.Address
	}
	if input.Tags != nil {
		c.Tags = normalizeTags(*input.Tags)
	}
	if input.Notes != nil {
		c.Notes = *input.Notes
	}
	switch {
	case input.DisplayName != nil:
		c.DisplayName = strings.TrimSpace(*input.DisplayName)
	case nameChanged:
		if derived := deriveDisplayName(c); derived != "" {
			c.DisplayName = derived
		}
	}
	c.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, c); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return c, nil
}

// Archive soft-deletes a contact. Archived contacts keep their history but drop out of lists.
func (s *Service) Archive(ctx context.Context, tenantID, id string) error {
	return s.repo.Archive(ctx, tenantID, id, s.now().UTC())
}

func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	filters.Tag = strings.ToLower(strings.TrimSpace(filters.Tag))
	filters.Query = strings.TrimSpace(filters.Query)
	return s.repo.List(ctx, tenantID, filters)
}

// FindByEmail matches case-insensitively among non-archived contacts.
func (s *Service) FindByEmail(ctx context.Context, tenantID, email string) (*Contact, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errs.ErrNotFound
	}
	return s.repo.FindByEmail(ctx, tenantID, email)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func deriveDisplayName(c *Contact) string {
	if c.Kind == KindOrganization && c.Organization != "" {
		return c.Organization
	}
	if name := strings.TrimSpace(c.FirstName + " " + c.LastName); name != "" {
		return name
	}
	if c.Organization != "" {
		return c.Organization
	}
	return c.Email
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
