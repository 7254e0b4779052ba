package offspring

import (
	"fmt"
	"strings"

	"github.com/BreederHQ/server/internal/validation"
	"sigs.k8s.io/yaml"
)

// PricingSchedule prices a litter. The sex price (or BaseCents) is the
// starting point; the quality delta and every matching adjustment are added,
// and the result never goes below zero.
type PricingSchedule struct {
	Currency    string           `json:"currency" validate:"required,currency"`
	BaseCents   int64            `json:"base_cents" validate:"gte=0"`
	BySex       map[string]int64 `json:"by_sex,omitempty"`
	ByQuality   map[string]int64 `json:"by_quality,omitempty"`
	Adjustments []Adjustment     `json:"adjustments,omitempty" validate:"dive"`
}

// Adjustment adds DeltaCents to offspring matching every non-empty criterion.
type Adjustment struct {
	Name       string `json:"name" validate:"required"`
	Sex        string `json:"sex,omitempty" validate:"omitempty,oneof=male female unknown"`
	Quality    string `json:"quality,omitempty" validate:"omitempty,oneof=pet breeding show"`
	Color      string `json:"color,omitempty"`
	DeltaCents int64  `json:"delta_cents"`
}

// PriceChange reports one offspring whose price moved.
type PriceChange struct {
	OffspringID string `json:"offspring_id"`
	Name        string `json:"name"`
	OldCents    *int64 `json:"old_cents,omitempty"`
	NewCents    int64  `json:"new_cents"`
}

// ParseSchedule reads a schedule from YAML or JSON.
func ParseSchedule(data []byte) (PricingSchedule, error) {
	var schedule PricingSchedule
	if err := yaml.UnmarshalStrict(data, &schedule); err != nil {
		return PricingSchedule{}, fmt.Errorf("parse pricing schedule: %w", err)
	}
	schedule.Currency = strings.ToUpper(strings.TrimSpace(schedule.Currency))
	if err := validation.Struct(schedule); err != nil {
		return PricingSchedule{}, err
	}
	return schedule, nil
}

// Price computes the price for one offspring.
func (s PricingSchedule) Price(o Offspring) int64 {
	price := s.BaseCents
	if bySex, ok := s.BySex[o.Sex]; ok {
		price = bySex
	}
	price += s.ByQuality[o.Quality]
	for _, adj := range s.Adjustments {
		if adj.matches(o) {
			price += adj.DeltaCents
		}
	}
	if price < 0 {
		return 0
	}
	return price
}

func (a Adjustment) matches(o Offspring) bool {
	if a.Sex != "" && a.Sex != o.Sex {
		return false
	}
	if a.Quality != "" && a.Quality != o.Quality {
		return false
	}
	if a.Color != "" && !strings.EqualFold(a.Color, o.Color) {
		return false
	}
	return true
}

// Apply prices every unlocked offspring and returns only the ones that changed.
// The items are updated in place.
func (s PricingSchedule) Apply(items []Offspring) []PriceChange {
	changes := []PriceChange{}
	for i := range items {
		o := &items[i]
		if o.PriceLocked {
			continue
		}
		next := s.Price(*o)
		if o.PriceCents != nil && *o.PriceCents == next {
			continue
		}
		changes = append(changes, PriceChange{OffspringID: o.ID, Name: o.Name, OldCents: o.PriceCents, NewCents: next})
		o.PriceCents = &next
	}
	return changes
}
