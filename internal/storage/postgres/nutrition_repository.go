package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/nutrition"
	"github.com/jackc/pgx/v5"
)

var _ nutrition.Repository = (*NutritionRepository)(nil)

type NutritionRepository struct {
	conn
}

const feedingColumns = `id, tenant_id, animal_id, fed_at, food, amount_grams, calories, notes, created_at`

func scanFeeding(row pgx.Row) (*nutrition.FeedingLog, error) {
	var l nutrition.FeedingLog
	if err := row.Scan(&l.ID, &l.TenantID, &l.AnimalID, &l.FedAt, &l.Food, &l.AmountGrams, &l.Calories, &l.Notes,
		&l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func collectFeedings(rows pgx.Rows, op string) ([]nutrition.FeedingLog, error) {
	defer rows.Close()
	out := []nutrition.FeedingLog{}
	for rows.Next() {
		l, err := scanFeeding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feeding: %w", err)
		}
		out = append(out, *l)
	}
	return out, mapError(op, rows.Err())
}

func (r *NutritionRepository) Create(ctx context.Context, l *nutrition.FeedingLog) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO feeding_logs (id, tenant_id, animal_id, fed_at, food, amount_grams, calories, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.TenantID, l.AnimalID, l.FedAt.UTC(), l.Food, l.AmountGrams, l.Calories, l.Notes, l.CreatedAt)
	return mapError("create feeding", err)
}

func (r *NutritionRepository) Get(ctx context.Context, tenantID, id string) (*nutrition.FeedingLog, error) {
	l, err := scanFeeding(r.queryer().QueryRow(ctx,
		`SELECT `+feedingColumns+` FROM feeding_logs WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get feeding", err)
	}
	return l, nil
}

func (r *NutritionRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM feeding_logs WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return expectOne("delete feeding", tag, err)
}

func (r *NutritionRepository) List(ctx context.Context, tenantID string, filters nutrition.Filters) (nutrition.ListResult, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return nutrition.ListResult{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+feedingColumns+`
  FROM feeding_logs
 WHERE tenant_id = $1
   AND ($2::text IS NULL OR animal_id = $2)
   AND ($3::timestamptz IS NULL OR fed_at >= $3)
   AND ($4::timestamptz IS NULL OR fed_at < $4)
   AND ($5::timestamptz IS NULL OR (created_at, id) > ($5, $6))
 ORDER BY created_at, id
 LIMIT $7`, tenantID, nullableString(filters.AnimalID), utcPtr(filters.From), utcPtr(filters.To), cursorTS, cursorID,
		limit+1)
	if err != nil {
		return nutrition.ListResult{}, mapError("list feedings", err)
	}
	items, err := collectFeedings(rows, "list feedings")
	if err != nil {
		return nutrition.ListResult{}, err
	}
	items, next := pagination.Trim(items, limit, func(l nutrition.FeedingLog) (time.Time, string) {
		return l.CreatedAt, l.ID
	})
	return nutrition.ListResult{Items: items, NextCursor: next}, nil
}

func (r *NutritionRepository) Range(ctx context.Context, tenantID, animalID string, from, to time.Time) ([]nutrition.FeedingLog, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+feedingColumns+`
  FROM feeding_logs
 WHERE tenant_id = $1 AND animal_id = $2 AND fed_at >= $3 AND fed_at < $4
 ORDER BY fed_at, id`, tenantID, animalID, from.UTC(), to.UTC())
	if err != nil {
		return nil, mapError("feeding range", err)
	}
	return collectFeedings(rows, "feeding range")
}

func (r *NutritionRepository) AnimalExists(ctx context.Context, tenantID, animalID string) (bool, error) {
	var ok bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM animals WHERE tenant_id = $1 AND id = $2 AND archived_at IS NULL)`,
		tenantID, animalID).Scan(&ok)
	return ok, mapError("animal exists", err)
}

func (r *NutritionRepository) TenantTimeZone(ctx context.Context, tenantID string) (string, error) {
	var zone string
	err := r.queryer().QueryRow(ctx, `SELECT time_zone FROM tenants WHERE id = $1`, tenantID).Scan(&zone)
	if err != nil {
		return "", mapError("tenant time zone", err)
	}
	return zone, nil
}
