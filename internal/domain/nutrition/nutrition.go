// Package nutrition records feedings and rolls them up per calendar day.
package nutrition

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
	dateLayout     = "2006-01-02"
	maxSummaryDays = 366
	summaryDefault = 7
)

var ErrUnknownAnimal = errs.New(errs.ErrInvalidReference, "animal does not exist in this tenant")

type FeedingLog struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"-"`
	AnimalID    string    `json:"animal_id"`
	FedAt       time.Time `json:"fed_at"`
	Food        string    `json:"food"`
	AmountGrams int       `json:"amount_grams"`
	Calories    int       `json:"calories"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type LogInput struct {
	AnimalID    string     `json:"animal_id" validate:"required,ulid"`
	FedAt       *time.Time `json:"fed_at"`
	Food        string     `json:"food" validate:"required,max=200"`
	AmountGrams int        `json:"amount_grams" validate:"gt=0,lte=100000"`
	Calories    int        `json:"calories" validate:"gte=0,lte=1000000"`
	Notes       string     `json:"notes" validate:"max=2000"`
}

// Filters narrows List. From is inclusive and To exclusive.
type Filters struct {
	AnimalID string
	From     *time.Time
	To       *time.Time
	Limit    int
	After    string
}

type ListResult struct {
	Items      []FeedingLog `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// SummaryQuery selects an inclusive range of calendar dates (YYYY-MM-DD) in the tenant's zone.
type SummaryQuery struct {
	AnimalID string
	From     string
	To       string
}

type DaySummary struct {
	Date          string `json:"date"`
	Feedings      int    `json:"feedings"`
	TotalGrams    int64  `json:"total_grams"`
	TotalCalories int64  `json:"total_calories"`
}

type Summary struct {
	AnimalID string       `json:"animal_id"`
	TimeZone string       `json:"time_zone"`
	Days     []DaySummary `json:"days"`
}

type Repository interface {
	Create(ctx context.Context, log *FeedingLog) error
	Get(ctx context.Context, tenantID, id string) (*FeedingLog, error)
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string, filters Filters) (ListResult, error)
	// Range returns every feeding of the animal with from <= fed_at < to.
	Range(ctx context.Context, tenantID, animalID string, from, to time.Time) ([]FeedingLog, error)
	AnimalExists(ctx context.Context, tenantID, animalID string) (bool, error)
	TenantTimeZone(ctx context.Context, tenantID string) (string, error)
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "nutrition").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Log records one feeding, defaulting FedAt to now.
func (s *Service) Log(ctx context.Context, tenantID string, input LogInput) (*FeedingLog, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	animalID := ids.Normalize(input.AnimalID)
	ok, err := s.repo.AnimalExists(ctx, tenantID, animalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownAnimal
	}
	now := s.now()
	fedAt := now
	if input.FedAt != nil {
		fedAt = input.FedAt.UTC()
	}
	if fedAt.After(now.Add(time.Hour)) {
		return nil, errs.Invalid("fed_at", "cannot be in the future")
	}
	entry := &FeedingLog{
		ID:          ids.New(),
		TenantID:    tenantID,
		AnimalID:    animalID,
		FedAt:       fedAt,
		Food:        strings.TrimSpace(input.Food),
		AmountGrams: input.AmountGrams,
		Calories:    input.Calories,
		Notes:       strings.TrimSpace(input.Notes),
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("log feeding: %w", err)
	}
	return entry, nil
}

func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	if filters.From != nil && filters.To != nil && !filters.From.Before(*filters.To) {
		return ListResult{}, errs.Invalid("to", "must be after from")
	}
	return s.repo.List(ctx, tenantID, filters)
}

func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// DailySummary totals grams and calories per calendar day in the tenant's
// time zone. Days without feedings are reported with zero totals. The range
// defaults to the last seven days ending today.
func (s *Service) DailySummary(ctx context.Context, tenantID string, q SummaryQuery) (*Summary, error) {
	animalID := ids.Normalize(q.AnimalID)
	if !ids.IsULID(animalID) {
		return nil, errs.Invalid("animal_id", "must be a valid ULID")
	}
	ok, err := s.repo.AnimalExists(ctx, tenantID, animalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownAnimal
	}

	loc, zone, err := s.location(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	first, last, err := dateRange(q, s.now().In(loc), loc)
	if err != nil {
		return nil, err
	}

	logs, err := s.repo.Range(ctx, tenantID, animalID, first.UTC(), last.AddDate(0, 0, 1).UTC())
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	var days []DaySummary
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		index[key] = len(days)
		days = append(days, DaySummary{Date: key})
	}
	for _, l := range logs {
		i, ok := index[l.FedAt.In(loc).Format(dateLayout)]
		if !ok {
			continue
		}
		days[i].Feedings++
		days[i].TotalGrams += int64(l.AmountGrams)
		days[i].TotalCalories += int64(l.Calories)
	}
	return &Summary{AnimalID: animalID, TimeZone: zone, Days: days}, nil
}

// location resolves the tenant's zone, falling back to UTC for unknown names.
func (s *Service) location(ctx context.Context, tenantID string) (*time.Location, string, error) {
	zone, err := s.repo.TenantTimeZone(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	if zone == "" {
		return time.UTC, "UTC", nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		s.logger.Warn().Str("tenant_id", tenantID).Str("time_zone", zone).Msg("unknown time zone, using UTC")
		return time.UTC, "UTC", nil
	}
	return loc, zone, nil
}

// dateRange parses the query dates as local midnights in loc.
func dateRange(q SummaryQuery, today time.Time, loc *time.Location) (time.Time, time.Time, error) {
	last := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	if q.To != "" {
		t, err := time.ParseInLocation(dateLayout, q.To, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errs.Invalid("to", "must be a date (YYYY-MM-DD)")
		}
		last = t
	}
	first := last.AddDate(0, 0, -(summaryDefault - 1))
	if q.From != "" {
		t, err := time.ParseInLocation(dateLayout, q.From, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errs.Invalid("from", "must be a date (YYYY-MM-DD)")
		}
		first = t
	}
	if first.After(last) {
		return time.Time{}, time.Time{}, errs.Invalid("from", "must not be after to")
	}
	if last.Sub(first) > maxSummaryDays*24*time.Hour {
		return time.Time{}, time.Time{}, errs.Invalid("from", fmt.Sprintf("range cannot exceed %d days", maxSummaryDays))
	}
	return first, last, nil
}
