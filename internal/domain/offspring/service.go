// Package offspring tracks individual animals of a litter through placement,
// applies pricing schedules and records rearing assessments.
package offspring

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

type timeFn func() time.Time

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    timeFn
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "offspring").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*Offspring, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	return s.repo.List(ctx, tenantID, filters)
}

func (s *Service) Update(ctx context.Context, tenantID, id string, input UpdateInput) (*Offspring, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	o, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		o.Name = strings.TrimSpace(*input.Name)
	}
	if input.Collar != nil {
		o.Collar = strings.TrimSpace(*input.Collar)
	}
	if input.Sex != nil {
		o.Sex = *input.Sex
	}
	if input.Color != nil {
		o.Color = strings.TrimSpace(*input.Color)
	}
	if input.Quality != nil {
		o.Quality = *input.Quality
	}
	if input.PriceCents != nil {
		price := *input.PriceCents
		o.PriceCents = &price
	}
	if input.PriceLocked != nil {
		o.PriceLocked = *input.PriceLocked
	}
	if input.Notes != nil {
		o.Notes = *input.Notes
	}
	o.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("update offspring: %w", err)
	}
	return o, nil
}

// SetPlacement moves an offspring through its placement states under a row lock.
func (s *Service) SetPlacement(ctx context.Context, tenantID, id string, input PlacementInput) (*Offspring, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	buyerID := ids.Normalize(input.BuyerID)

	var out *Offspring
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.Lock(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if input.Status == StatusReserved && buyerID != "" {
			ok, err := repo.ContactExists(ctx, tenantID, buyerID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrUnknownBuyer
			}
		}
		if err := applyPlacement(o, input.Status, buyerID, s.now); err != nil {
			return err
		}
		o.UpdatedAt = s.now()
		if err := repo.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set placement: %w", err)
	}
	s.logger.Info().Str("offspring_id", id).Str("status", out.PlacementStatus).Msg("placement changed")
	return out, nil
}

// ApplyPricing prices every unlocked offspring of a plan and returns the changes.
func (s *Service) ApplyPricing(ctx context.Context, tenantID, planID string, schedule PricingSchedule) ([]PriceChange, error) {
	schedule.Currency = strings.ToUpper(strings.TrimSpace(schedule.Currency))
	if err := validation.Struct(schedule); err != nil {
		return nil, err
	}

	var changes []PriceChange
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		ok, err := repo.PlanExists(ctx, tenantID, planID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrNotFound
		}
		items, err := repo.ListByPlan(ctx, tenantID, planID)
		if err != nil {
			return err
		}
		changes = schedule.Apply(items)
		changed := make(map[string]bool, len(changes))
		for _, c := range changes {
			changed[c.OffspringID] = true
		}
		now := s.now()
		for i := range items {
			if !changed[items[i].ID] {
				continue
			}
			items[i].UpdatedAt = now
			if err := repo.Update(ctx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply pricing: %w", err)
	}
	s.logger.Info().Str("plan_id", planID).Int("changed", len(changes)).Msg("pricing applied")
	return changes, nil
}

func (s *Service) AddAssessment(ctx context.Context, tenantID, offspringID string, input AssessmentInput) (*Assessment, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, tenantID, offspringID); err != nil {
		return nil, err
	}
	now := s.now()
	assessedAt := now
	if input.AssessedAt != nil {
		assessedAt = input.AssessedAt.UTC()
	}
	a := &Assessment{
		ID:          ids.New(),
		TenantID:    tenantID,
		OffspringID: offspringID,
		AssessedAt:  assessedAt,
		WeightGrams: input.WeightGrams,
		Temperament: input.Temperament,
		Notes:       strings.TrimSpace(input.Notes),
		CreatedAt:   now,
	}
	if err := s.repo.AddAssessment(ctx, a); err != nil {
		return nil, fmt.Errorf("add assessment: %w", err)
	}
	return a, nil
}

func (s *Service) ListAssessments(ctx context.Context, tenantID, offspringID string) ([]Assessment, error) {
	if _, err := s.repo.Get(ctx, tenantID, offspringID); err != nil {
		return nil, err
	}
	return s.repo.ListAssessments(ctx, tenantID, offspringID)
}
