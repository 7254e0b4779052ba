// Package breeding manages breeding plans from pairing through placement.
package breeding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/domain/offspring"
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
		logger: logger.With().Str("component", "breeding").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*Plan, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	damID := ids.Normalize(input.DamID)
	sireID := ids.Normalize(input.SireID)
	if err := s.checkParent(ctx, tenantID, input.Species, damID, "dam_id"); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, tenantID, input.Species, sireID, "sire_id"); err != nil {
		return nil, err
	}

	now := s.now()
	p := &Plan{
		ID:        ids.New(),
		TenantID:  tenantID,
		Name:      strings.TrimSpace(input.Name),
		Species:   input.Species,
		DamID:     damID,
		SireID:    sireID,
		Status:    StatusPlanning,
		Notes:     input.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create breeding plan: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*Plan, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	return s.repo.List(ctx, tenantID, filters)
}

// Update edits descriptive fields. Parents can change until the plan is bred.
func (s *Service) Update(ctx context.Context, tenantID, id string, input UpdateInput) (*Plan, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	var out *Plan
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		p, err := repo.Lock(ctx, tenantID, id)
		if err != nil {
			return err
		}
		parentsChanged := input.DamID != nil || input.SireID != nil
		if parentsChanged && p.Status != StatusPlanning && p.Status != StatusCommitted {
			return errs.Invalid("dam_id", "parents cannot change after the plan is bred")
		}
		if input.Name != nil {
			p.Name = strings.TrimSpace(*input.Name)
		}
		if input.DamID != nil {
			p.DamID = ids.Normalize(*input.DamID)
			if err := s.checkParent(ctx, tenantID, p.Species, p.DamID, "dam_id"); err != nil {
				return err
			}
		}
		if input.SireID != nil {
			p.SireID = ids.Normalize(*input.SireID)
			if err := s.checkParent(ctx, tenantID, p.Species, p.SireID, "sire_id"); err != nil {
				return err
			}
		}
		if input.Notes != nil {
			p.Notes = *input.Notes
		}
		p.UpdatedAt = s.now()
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update breeding plan: %w", err)
	}
	return out, nil
}

// Transition moves a plan along its lifecycle. Marking a plan bred stamps
// BredAt and computes the expected birth from the species gestation length.
func (s *Service) Transition(ctx context.Context, tenantID, id string, input TransitionInput) (*Plan, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.Status == StatusBirthed {
		return nil, ErrUseRecordBirth
	}
	at := s.now()
	if input.At != nil {
		at = input.At.UTC()
	}

	var out *Plan
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		p, err := repo.Lock(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !CanTransition(p.Status, input.Status) {
			return errs.Transition("breeding plan", p.Status, input.Status)
		}
		switch input.Status {
		case StatusBred:
			bredAt := at
			p.BredAt = &bredAt
			p.ExpectedBirthAt = ExpectedBirth(p.Species, bredAt)
		case StatusWeaned:
			weanedAt := at
			p.WeanedAt = &weanedAt
		case StatusCommitted:
			if p.DamID == "" {
				return errs.Invalid("dam_id", "a dam is required to commit a plan")
			}
		}
		p.Status = input.Status
		p.UpdatedAt = s.now()
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transition breeding plan: %w", err)
	}
	s.logger.Info().Str("plan_id", id).Str("status", out.Status).Msg("breeding plan transitioned")
	return out, nil
}

// RecordBirth marks the plan birthed and creates the litter in the same transaction.
// The first Males offspring are male, the next Females are female and the rest unknown.
func (s *Service) RecordBirth(ctx context.Context, tenantID, id string, input BirthInput) (*BirthResult, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.Males+input.Females > input.Count {
		return nil, errs.Invalid("count", "must be at least males + females")
	}
	now := s.now()
	bornAt := now
	if input.BornAt != nil {
		bornAt = input.BornAt.UTC()
	}

	var result BirthResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		p, err := repo.Lock(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !CanTransition(p.Status, StatusBirthed) {
			return errs.Transition("breeding plan", p.Status, StatusBirthed)
		}
		p.Status = StatusBirthed
		p.BirthedAt = &bornAt
		p.LitterSize = input.Count
		p.UpdatedAt = now
		if err := repo.Update(ctx, p); err != nil {
			return err
		}

		litter := make([]offspring.Offspring, 0, input.Count)
		for i := 0; i < input.Count; i++ {
			sex := "unknown"
			switch {
			case i < input.Males:
				sex = "male"
			case i < input.Males+input.Females:
				sex = "female"
			}
			born := bornAt
			litter = append(litter, offspring.Offspring{
				ID:              ids.New(),
				TenantID:        tenantID,
				PlanID:          p.ID,
				Name:            fmt.Sprintf("%s #%d", p.Name, i+1),
				Sex:             sex,
				Quality:         offspring.QualityPet,
				PlacementStatus: offspring.StatusAvailable,
				BornAt:          &born,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
		if err := repo.CreateOffspring(ctx, litter); err != nil {
			return err
		}
		result = BirthResult{Plan: p, Offspring: litter}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record birth: %w", err)
	}
	s.logger.Info().Str("plan_id", id).Int("count", input.Count).Msg("birth recorded")
	return &result, nil
}

// ExpectedBirth adds the species gestation length to bredAt. Unknown species yield nil.
func ExpectedBirth(species string, bredAt time.Time) *time.Time {
	days, ok := GestationDays[species]
	if !ok {
		return nil
	}
	t := bredAt.AddDate(0, 0, days)
	return &t
}

func (s *Service) checkParent(ctx context.Context, tenantID, species, animalID, field string) error {
	if animalID == "" {
		return nil
	}
	parent, err := s.repo.ResolveParent(ctx, tenantID, animalID)
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("%s: %w", field, ErrParentMissing)
	}
	if err != nil {
		return err
	}
	if parent.Species != species {
		return fmt.Errorf("%s: %w", field, ErrParentSpecies)
	}
	if (field == "dam_id" && parent.Sex == "male") || (field == "sire_id" && parent.Sex == "female") {
		return fmt.Errorf("%s: %w", field, ErrParentSex)
	}
	return nil
}
