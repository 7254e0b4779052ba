package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/offspring"
	"github.com/jackc/pgx/v5"
)

var _ offspring.Repository = (*OffspringRepository)(nil)

type OffspringRepository struct {
	conn
}

func (r *OffspringRepository) WithTx(ctx context.Context, fn func(context.Context, offspring.Repository) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &OffspringRepository{conn: conn{pool: r.pool, tx: tx}})
	})
}

const offspringColumns = `id, tenant_id, plan_id, name, collar, sex, color, quality, placement_status, buyer_id,
       price_cents, price_locked, born_at, placed_at, notes, created_at, updated_at`

func scanOffspring(row pgx.Row) (*offspring.Offspring, error) {
	var o offspring.Offspring
	var buyer *string
	if err := row.Scan(&o.ID, &o.TenantID, &o.PlanID, &o.Name, &o.Collar, &o.Sex, &o.Color, &o.Quality,
		&o.PlacementStatus, &buyer, &o.PriceCents, &o.PriceLocked, &o.BornAt, &o.PlacedAt, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.BuyerID = derefString(buyer)
	return &o, nil
}

func collectOffspring(rows pgx.Rows, op string) ([]offspring.Offspring, error) {
	defer rows.Close()
	out := []offspring.Offspring{}
	for rows.Next() {
		o, err := scanOffspring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offspring: %w", err)
		}
		out = append(out, *o)
	}
	return out, mapError(op, rows.Err())
}

func (r *OffspringRepository) CreateMany(ctx context.Context, items []offspring.Offspring) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		for _, o := range items {
			_, err := tx.Exec(ctx, `
INSERT INTO offspring (id, tenant_id, plan_id, name, collar, sex, color, quality, placement_status, buyer_id,
                       price_cents, price_locked, born_at, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
				o.ID, o.TenantID, o.PlanID, o.Name, o.Collar, o.Sex, o.Color, o.Quality, o.PlacementStatus,
				nullableString(o.BuyerID), o.PriceCents, o.PriceLocked, utcPtr(o.BornAt), o.Notes, o.CreatedAt, o.UpdatedAt)
			if err != nil {
				return mapError("create offspring", err)
			}
		}
		return nil
	})
}

func (r *OffspringRepository) Get(ctx context.Context, tenantID, id string) (*offspring.Offspring, error) {
	o, err := scanOffspring(r.queryer().QueryRow(ctx, `SELECT `+offspringColumns+` FROM offspring WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get offspring", err)
	}
	return o, nil
}

func (r *OffspringRepository) Lock(ctx context.Context, tenantID, id string) (*offspring.Offspring, error) {
	o, err := scanOffspring(r.queryer().QueryRow(ctx, `
SELECT `+offspringColumns+` FROM offspring WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return nil, mapError("lock offspring", err)
	}
	return o, nil
}

func (r *OffspringRepository) Update(ctx context.Context, o *offspring.Offspring) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE offspring
   SET name = $3, collar = $4, sex = $5, color = $6, quality = $7, placement_status = $8, buyer_id = $9,
       price_cents = $10, price_locked = $11, placed_at = $12, notes = $13, updated_at = $14
 WHERE tenant_id = $1 AND id = $2`,
		o.TenantID, o.ID, o.Name, o.Collar, o.Sex, o.Color, o.Quality, o.PlacementStatus, nullableString(o.BuyerID),
		o.PriceCents, o.PriceLocked, utcPtr(o.PlacedAt), o.Notes, o.UpdatedAt)
	return expectOne("update offspring", tag, err)
}

func (r *OffspringRepository) List(ctx context.Context, tenantID string, filters offspring.Filters) (offspring.ListResult, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return offspring.ListResult{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+offspringColumns+`
  FROM offspring
 WHERE tenant_id = $1
   AND ($2::text IS NULL OR plan_id = $2)
   AND ($3::text IS NULL OR placement_status = $3)
   AND ($4::timestamptz IS NULL OR (created_at, id) > ($4, $5))
 ORDER BY created_at, id
 LIMIT $6`, tenantID, nullableString(filters.PlanID), nullableString(filters.Status), cursorTS, cursorID, limit+1)
	if err != nil {
		return offspring.ListResult{}, mapError("list offspring", err)
	}
	items, err := collectOffspring(rows, "list offspring")
	if err != nil {
		return offspring.ListResult{}, err
	}
	items, next := pagination.Trim(items, limit, func(o offspring.Offspring) (time.Time, string) { return o.CreatedAt, o.ID })
	return offspring.ListResult{Items: items, NextCursor: next}, nil
}

func (r *OffspringRepository) ListByPlan(ctx context.Context, tenantID, planID string) ([]offspring.Offspring, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+offspringColumns+` FROM offspring WHERE tenant_id = $1 AND plan_id = $2 ORDER BY created_at, id`, tenantID, planID)
	if err != nil {
		return nil, mapError("list plan offspring", err)
	}
	return collectOffspring(rows, "list plan offspring")
}

func (r *OffspringRepository) PlanExists(ctx context.Context, tenantID, planID string) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM breeding_plans WHERE tenant_id = $1 AND id = $2)`, tenantID, planID).Scan(&exists)
	return exists, mapError("check breeding plan", err)
}

func (r *OffspringRepository) ContactExists(ctx context.Context, tenantID, contactID string) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM contacts WHERE tenant_id = $1 AND id = $2 AND archived_at IS NULL)`, tenantID, contactID).Scan(&exists)
	return exists, mapError("check contact", err)
}

func (r *OffspringRepository) AddAssessment(ctx context.Context, a *offspring.Assessment) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO rearing_assessments (id, tenant_id, offspring_id, assessed_at, weight_grams, temperament, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.TenantID, a.OffspringID, a.AssessedAt, a.WeightGrams, a.Temperament, a.Notes, a.CreatedAt)
	return mapError("add rearing assessment", err)
}

func (r *OffspringRepository) ListAssessments(ctx context.Context, tenantID, offspringID string) ([]offspring.Assessment, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, tenant_id, offspring_id, assessed_at, weight_grams, temperament, notes, created_at
  FROM rearing_assessments
 WHERE tenant_id = $1 AND offspring_id = $2
 ORDER BY assessed_at, id`, tenantID, offspringID)
	if err != nil {
		return nil, mapError("list rearing assessments", err)
	}
	defer rows.Close()

	out := []offspring.Assessment{}
	for rows.Next() {
		var a offspring.Assessment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.OffspringID, &a.AssessedAt, &a.WeightGrams, &a.Temperament,
			&a.Notes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rearing assessment: %w", err)
		}
		out = append(out, a)
	}
	return out, mapError("list rearing assessments", rows.Err())
}
