// Package animals manages a tenant's animals and the cross-tenant links that
// let one breeder use another breeder's animal as a sire or dam.
package animals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/validation"
	"github.com/rs/zerolog"
)

const exchangeCodeBytes = 5

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "animals").Logger(),
		now:    time.Now,
	}
}

func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*Animal, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, tenantID, input.DamID, "dam_id"); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, tenantID, input.SireID, "sire_id"); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &Animal{
		ID:           ids.New(),
		TenantID:     tenantID,
		Name:         strings.TrimSpace(input.Name),
		Species:      input.Species,
		Breed:        strings.TrimSpace(input.Breed),
		Sex:          input.Sex,
		BirthDate:    input.BirthDate,
		Registration: strings.TrimSpace(input.Registration),
		Microchip:    strings.TrimSpace(input.Microchip),
		Color:        strings.TrimSpace(input.Color),
		Status:       input.Status,
		DamID:        ids.Normalize(input.DamID),
		SireID:       ids.Normalize(input.SireID),
		Notes:        input.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	code, err := newExchangeCode()
	if err != nil {
		return nil, err
	}
	a.ExchangeCode = code

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create animal: %w", err)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*Animal, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	return s.repo.List(ctx, tenantID, filters)
}

func (s *Service) Update(ctx context.Context, tenantID, id string, input UpdateInput) (*Animal, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	a, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a.ArchivedAt != nil {
		return nil, errs.New(errs.ErrConflict, "animal is archived")
	}

	if input.Name != nil {
		a.Name = strings.TrimSpace(*input.Name)
	}
	if input.Breed != nil {
		a.Breed = strings.TrimSpace(*input.Breed)
	}
	if input.Sex != nil {
		a.Sex = *input.Sex
	}
	if input.BirthDate != nil {
		a.BirthDate = input.BirthDate
	}
	if input.Registration != nil {
		a.Registration = strings.TrimSpace(*input.Registration)
	}
	if input.Microchip != nil {
		a.Microchip = strings.TrimSpace(*input.Microchip)
	}
	if input.Color != nil {
		a.Color = strings.TrimSpace(*input.Color)
	}
	if input.Status != nil {
		a.Status = *input.Status
	}
	if input.Notes != nil {
		a.Notes = *input.Notes
	}
	if input.DamID != nil {
		if ids.Normalize(*input.DamID) == a.ID {
			return nil, errs.Invalid("dam_id", "an animal cannot be its own parent")
		}
		if err := s.checkParent(ctx, tenantID, *input.DamID, "dam_id"); err != nil {
			return nil, err
		}
		a.DamID = ids.Normalize(*input.DamID)
	}
	if input.SireID != nil {
		if ids.Normalize(*input.SireID) == a.ID {
			return nil, errs.Invalid("sire_id", "an animal cannot be its own parent")
		}
		if err := s.checkParent(ctx, tenantID, *input.SireID, "sire_id"); err != nil {
			return nil, err
		}
		a.SireID = ids.Normalize(*input.SireID)
	}
	a.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update animal: %w", err)
	}
	return a, nil
}

func (s *Service) Archive(ctx context.Context, tenantID, id string) error {
	return s.repo.Archive(ctx, tenantID, id, s.now().UTC())
}

// RegenerateExchangeCode invalidates the old code. Existing links are unaffected.
func (s *Service) RegenerateExchangeCode(ctx context.Context, tenantID, id string) (*Animal, error) {
	a, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	code, err := newExchangeCode()
	if err != nil {
		return nil, err
	}
	a.ExchangeCode = code
	a.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("regenerate exchange code: %w", err)
	}
	return a, nil
}

// RequestLink asks the owner of the animal behind an exchange code for access.
func (s *Service) RequestLink(ctx context.Context, tenantID string, input LinkRequest) (*Link, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	animal, err := s.repo.GetByExchangeCode(ctx, NormalizeExchangeCode(input.ExchangeCode))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrUnknownCode
		}
		return nil, err
	}
	if animal.TenantID == tenantID {
		return nil, ErrOwnAnimal
	}

	now := s.now().UTC()
	link := &Link{
		ID:                ids.New(),
		RequesterTenantID: tenantID,
		OwnerTenantID:     animal.TenantID,
		AnimalID:          animal.ID,
		Purpose:           strings.TrimSpace(input.Purpose),
		Message:           strings.TrimSpace(input.Message),
		Status:            LinkPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		exists, err := repo.ActiveLinkExists(ctx, tenantID, animal.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrLinkExists
		}
		if err := repo.CreateLink(ctx, link); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				return ErrLinkExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("request link: %w", err)
	}
	s.logger.Info().Str("link_id", link.ID).Str("owner_tenant_id", link.OwnerTenantID).Msg("animal link requested")
	return link, nil
}

// Approve and Reject are owner decisions on a pending link.
func (s *Service) Approve(ctx context.Context, tenantID, linkID string) (*Link, error) {
	return s.decide(ctx, tenantID, linkID, LinkApproved)
}

func (s *Service) Reject(ctx context.Context, tenantID, linkID string) (*Link, error) {
	return s.decide(ctx, tenantID, linkID, LinkRejected)
}

func (s *Service) decide(ctx context.Context, tenantID, linkID, status string) (*Link, error) {
	var out *Link
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		link, err := repo.LockLink(ctx, linkID)
		if err != nil {
			return err
		}
		if link.OwnerTenantID != tenantID {
			if link.RequesterTenantID == tenantID {
				return ErrNotLinkOwner
			}
			return errs.ErrNotFound
		}
		if link.Status != LinkPending {
			return errs.Transition("link", link.Status, status)
		}
		now := s.now().UTC()
		link.Status = status
		link.DecidedAt = &now
		link.UpdatedAt = now
		if err := repo.UpdateLink(ctx, link); err != nil {
			return err
		}
		out = link
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s link: %w", status, err)
	}
	return out, nil
}

// Revoke ends a pending or approved link. Either side may revoke.
func (s *Service) Revoke(ctx context.Context, tenantID, linkID string) (*Link, error) {
	var out *Link
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		link, err := repo.LockLink(ctx, linkID)
		if err != nil {
			return err
		}
		if link.OwnerTenantID != tenantID && link.RequesterTenantID != tenantID {
			return errs.ErrNotFound
		}
		if link.Status != LinkPending && link.Status != LinkApproved {
			return errs.Transition("link", link.Status, LinkRevoked)
		}
		now := s.now().UTC()
		link.Status = LinkRevoked
		link.DecidedAt = &now
		link.UpdatedAt = now
		if err := repo.UpdateLink(ctx, link); err != nil {
			return err
		}
		out = link
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("revoke link: %w", err)
	}
	return out, nil
}

func (s *Service) ListLinks(ctx context.Context, tenantID string, filters LinkFilters) ([]Link, error) {
	if filters.Direction != "incoming" && filters.Direction != "outgoing" {
		filters.Direction = "outgoing"
	}
	return s.repo.ListLinks(ctx, tenantID, filters)
}

// Linked returns the non-PII view of another tenant's animal, available only through an approved link.
func (s *Service) Linked(ctx context.Context, tenantID, animalID string) (*LinkedAnimal, error) {
	return s.repo.GetLinkedAnimal(ctx, tenantID, animalID)
}

// checkParent accepts an own, non-archived animal or an animal reachable through an approved link.
func (s *Service) checkParent(ctx context.Context, tenantID, animalID, field string) error {
	if strings.TrimSpace(animalID) == "" {
		return nil
	}
	animalID = ids.Normalize(animalID)
	own, err := s.repo.Get(ctx, tenantID, animalID)
	if err == nil && own.ArchivedAt == nil {
		return nil
	}
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if _, err := s.repo.GetLinkedAnimal(ctx, tenantID, animalID); err == nil {
		return nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", field, ErrParentMissing)
}

// NormalizeExchangeCode accepts codes typed with spaces, dashes or lower case.
func NormalizeExchangeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

func newExchangeCode() (string, error) {
	token, err := ids.NewToken(exchangeCodeBytes)
	if err != nil {
		return "", fmt.Errorf("generate exchange code: %w", err)
	}
	return strings.ToUpper(token), nil
}
