package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/breeding"
	"github.com/BreederHQ/server/internal/domain/offspring"
	"github.com/jackc/pgx/v5"
)

var _ breeding.Repository = (*BreedingRepository)(nil)

type BreedingRepository struct {
	conn
}

func (r *BreedingRepository) WithTx(ctx context.Context, fn func(context.Context, breeding.Repository) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &BreedingRepository{conn: conn{pool: r.pool, tx: tx}})
	})
}

const planColumns = `id, tenant_id, name, species, dam_id, sire_id, status, bred_at, expected_birth_at, birthed_at,
       weaned_at, litter_size, notes, created_at, updated_at`

func scanPlan(row pgx.Row) (*breeding.Plan, error) {
	var p breeding.Plan
	var dam, sire *string
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Species, &dam, &sire, &p.Status, &p.BredAt,
		&p.ExpectedBirthAt, &p.BirthedAt, &p.WeanedAt, &p.LitterSize, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.DamID = derefString(dam)
	p.SireID = derefString(sire)
	return &p, nil
}

func (r *BreedingRepository) Create(ctx context.Context, p *breeding.Plan) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO breeding_plans (id, tenant_id, name, species, dam_id, sire_id, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.TenantID, p.Name, p.Species, nullableString(p.DamID), nullableString(p.SireID), p.Status, p.Notes,
		p.CreatedAt, p.UpdatedAt)
	return mapError("create breeding plan", err)
}

func (r *BreedingRepository) Get(ctx context.Context, tenantID, id string) (*breeding.Plan, error) {
	p, err := scanPlan(r.queryer().QueryRow(ctx, `SELECT `+planColumns+` FROM breeding_plans WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get breeding plan", err)
	}
	return p, nil
}

func (r *BreedingRepository) Lock(ctx context.Context, tenantID, id string) (*breeding.Plan, error) {
	p, err := scanPlan(r.queryer().QueryRow(ctx, `
SELECT `+planColumns+` FROM breeding_plans WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return nil, mapError("lock breeding plan", err)
	}
	return p, nil
}

func (r *BreedingRepository) Update(ctx context.Context, p *breeding.Plan) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE breeding_plans
   SET name = $3, dam_id = $4, sire_id = $5, status = $6, bred_at = $7, expected_birth_at = $8, birthed_at = $9,
       weaned_at = $10, litter_size = $11, notes = $12, updated_at = $13
 WHERE tenant_id = $1 AND id = $2`,
		p.TenantID, p.ID, p.Name, nullableString(p.DamID), nullableString(p.SireID), p.Status, utcPtr(p.BredAt),
		utcPtr(p.ExpectedBirthAt), utcPtr(p.BirthedAt), utcPtr(p.WeanedAt), p.LitterSize, p.Notes, p.UpdatedAt)
	return expectOne("update breeding plan", tag, err)
}

func (r *BreedingRepository) List(ctx context.Context, tenantID string, filters breeding.Filters) (breeding.ListResult, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return breeding.ListResult{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+planColumns+`
  FROM breeding_plans
 WHERE tenant_id = $1
   AND ($2::text IS NULL OR status = $2)
   AND ($3::text IS NULL OR species = $3)
   AND ($4::timestamptz IS NULL OR (created_at, id) > ($4, $5))
 ORDER BY created_at, id
 LIMIT $6`, tenantID, nullableString(filters.Status), nullableString(filters.Species), cursorTS, cursorID, limit+1)
	if err != nil {
		return breeding.ListResult{}, mapError("list breeding plans", err)
	}
	defer rows.Close()

	items := make([]breeding.Plan, 0, limit+1)
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return breeding.ListResult{}, fmt.Errorf("scan breeding plan: %w", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return breeding.ListResult{}, mapError("list breeding plans", err)
	}
	items, next := pagination.Trim(items, limit, func(p breeding.Plan) (time.Time, string) { return p.CreatedAt, p.ID })
	return breeding.ListResult{Items: items, NextCursor: next}, nil
}

func (r *BreedingRepository) ResolveParent(ctx context.Context, tenantID, animalID string) (*breeding.Parent, error) {
	var p breeding.Parent
	err := r.queryer().QueryRow(ctx, `
SELECT id, species, sex, FALSE
  FROM animals
 WHERE tenant_id = $1 AND id = $2 AND archived_at IS NULL
UNION ALL
SELECT a.id, a.species, a.sex, TRUE
  FROM animal_links l
  JOIN animals a ON a.id = l.animal_id
 WHERE l.requester_tenant_id = $1 AND l.animal_id = $2 AND l.status = 'approved' AND a.archived_at IS NULL
 LIMIT 1`, tenantID, animalID).Scan(&p.ID, &p.Species, &p.Sex, &p.Linked)
	if err != nil {
		return nil, mapError("resolve parent", err)
	}
	return &p, nil
}

func (r *BreedingRepository) CreateOffspring(ctx context.Context, items []offspring.Offspring) error {
	return (&OffspringRepository{conn: r.conn}).CreateMany(ctx, items)
}
