package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/animals"
	"github.com/jackc/pgx/v5"
)

var _ animals.Repository = (*AnimalRepository)(nil)

type AnimalRepository struct {
	conn
}

func (r *AnimalRepository) WithTx(ctx context.Context, fn func(context.Context, animals.Repository) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &AnimalRepository{conn: conn{pool: r.pool, tx: tx}})
	})
}

const animalColumns = `id, tenant_id, name, species, breed, sex, birth_date, registration, microchip, color,
       status, dam_id, sire_id, exchange_code, notes, archived_at, created_at, updated_at`

func scanAnimal(row pgx.Row) (*animals.Animal, error) {
	var a animals.Animal
	var dam, sire *string
	if err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Species, &a.Breed, &a.Sex, &a.BirthDate, &a.Registration,
		&a.Microchip, &a.Color, &a.Status, &dam, &sire, &a.ExchangeCode, &a.Notes, &a.ArchivedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.DamID = derefString(dam)
	a.SireID = derefString(sire)
	return &a, nil
}

func (r *AnimalRepository) Create(ctx context.Context, a *animals.Animal) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO animals (id, tenant_id, name, species, breed, sex, birth_date, registration, microchip, color,
                     status, dam_id, sire_id, exchange_code, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		a.ID, a.TenantID, a.Name, a.Species, a.Breed, a.Sex, a.BirthDate, a.Registration, a.Microchip, a.Color,
		a.Status, nullableString(a.DamID), nullableString(a.SireID), a.ExchangeCode, a.Notes, a.CreatedAt, a.UpdatedAt)
	return mapError("create animal", err)
}

func (r *AnimalRepository) Get(ctx context.Context, tenantID, id string) (*animals.Animal, error) {
	a, err := scanAnimal(r.queryer().QueryRow(ctx, `SELECT `+animalColumns+` FROM animals WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get animal", err)
	}
	return a, nil
}

func (r *AnimalRepository) Update(ctx context.Context, a *animals.Animal) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE animals
   SET name = $3, breed = $4, sex = $5, birth_date = $6, registration = $7, microchip = $8, color = $9,
       status = $10, dam_id = $11, sire_id = $12, exchange_code = $13, notes = $14, updated_at = $15
 WHERE tenant_id = $1 AND id = $2`,
		a.TenantID, a.ID, a.Name, a.Breed, a.Sex, a.BirthDate, a.Registration, a.Microchip, a.Color,
		a.Status, nullableString(a.DamID), nullableString(a.SireID), a.ExchangeCode, a.Notes, a.UpdatedAt)
	return expectOne("update animal", tag, err)
}

func (r *AnimalRepository) Archive(ctx context.Context, tenantID, id string, at time.Time) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE animals SET archived_at = COALESCE(archived_at, $3), updated_at = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, at)
	return expectOne("archive animal", tag, err)
}

func (r *AnimalRepository) List(ctx context.Context, tenantID string, filters animals.Filters) (animals.ListResult, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return animals.ListResult{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	var query *string
	if filters.Query != "" {
		p := likePattern(filters.Query)
		query = &p
	}

	rows, err := r.queryer().Query(ctx, `
SELECT `+animalColumns+`
  FROM animals
 WHERE tenant_id = $1 AND archived_at IS NULL
   AND ($2::text IS NULL OR species = $2)
   AND ($3::text IS NULL OR sex = $3)
   AND ($4::text IS NULL OR status = $4)
   AND ($5::text IS NULL OR name ILIKE $5 OR registration ILIKE $5)
   AND ($6::timestamptz IS NULL OR (created_at, id) > ($6, $7))
 ORDER BY created_at, id
 LIMIT $8`, tenantID, nullableString(filters.Species), nullableString(filters.Sex), nullableString(filters.Status),
		query, cursorTS, cursorID, limit+1)
	if err != nil {
		return animals.ListResult{}, mapError("list animals", err)
	}
	defer rows.Close()

	items := make([]animals.Animal, 0, limit+1)
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return animals.ListResult{}, fmt.Errorf("scan animal: %w", err)
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return animals.ListResult{}, mapError("list animals", err)
	}
	items, next := pagination.Trim(items, limit, func(a animals.Animal) (time.Time, string) { return a.CreatedAt, a.ID })
	return animals.ListResult{Items: items, NextCursor: next}, nil
}

func (r *AnimalRepository) GetByExchangeCode(ctx context.Context, code string) (*animals.Animal, error) {
	a, err := scanAnimal(r.queryer().QueryRow(ctx, `
SELECT `+animalColumns+` FROM animals WHERE exchange_code = $1 AND archived_at IS NULL`, code))
	if err != nil {
		return nil, mapError("get animal by exchange code", err)
	}
	return a, nil
}

const linkColumns = `id, requester_tenant_id, owner_tenant_id, animal_id, purpose, message, status, decided_at, created_at, updated_at`

func scanLink(row pgx.Row) (*animals.Link, error) {
	var l animals.Link
	if err := row.Scan(&l.ID, &l.RequesterTenantID, &l.OwnerTenantID, &l.AnimalID, &l.Purpose, &l.Message,
		&l.Status, &l.DecidedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *AnimalRepository) CreateLink(ctx context.Context, l *animals.Link) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO animal_links (id, requester_tenant_id, owner_tenant_id, animal_id, purpose, message, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.RequesterTenantID, l.OwnerTenantID, l.AnimalID, l.Purpose, l.Message, l.Status, l.CreatedAt, l.UpdatedAt)
	return mapError("create animal link", err)
}

// LockLink must run inside WithTx; the row stays locked until commit.
func (r *AnimalRepository) LockLink(ctx context.Context, id string) (*animals.Link, error) {
	l, err := scanLink(r.queryer().QueryRow(ctx, `SELECT `+linkColumns+` FROM animal_links WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapError("lock animal link", err)
	}
	return l, nil
}

func (r *AnimalRepository) UpdateLink(ctx context.Context, l *animals.Link) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE animal_links SET status = $2, decided_at = $3, updated_at = $4 WHERE id = $1`,
		l.ID, l.Status, l.DecidedAt, l.UpdatedAt)
	return expectOne("update animal link", tag, err)
}

func (r *AnimalRepository) ActiveLinkExists(ctx context.Context, requesterTenantID, animalID string) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM animal_links
                WHERE requester_tenant_id = $1 AND animal_id = $2 AND status IN ('pending', 'approved'))`,
		requesterTenantID, animalID).Scan(&exists)
	return exists, mapError("check animal link", err)
}

func (r *AnimalRepository) ListLinks(ctx context.Context, tenantID string, filters animals.LinkFilters) ([]animals.Link, error) {
	column := "requester_tenant_id"
	if filters.Direction == "incoming" {
		column = "owner_tenant_id"
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+linkColumns+` FROM animal_links
 WHERE `+column+` = $1 AND ($2::text IS NULL OR status = $2)
 ORDER BY created_at DESC, id DESC`, tenantID, nullableString(filters.Status))
	if err != nil {
		return nil, mapError("list animal links", err)
	}
	defer rows.Close()

	out := []animals.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan animal link: %w", err)
		}
		out = append(out, *l)
	}
	return out, mapError("list animal links", rows.Err())
}

func (r *AnimalRepository) GetLinkedAnimal(ctx context.Context, requesterTenantID, animalID string) (*animals.LinkedAnimal, error) {
	var v animals.LinkedAnimal
	err := r.queryer().QueryRow(ctx, `
SELECT a.id, a.name, a.species, a.breed, a.sex, a.birth_date, a.registration, a.color, t.name
  FROM animal_links l
  JOIN animals a ON a.id = l.animal_id
  JOIN tenants t ON t.id = a.tenant_id
 WHERE l.requester_tenant_id = $1 AND l.animal_id = $2 AND l.status = 'approved' AND a.archived_at IS NULL`,
		requesterTenantID, animalID).
		Scan(&v.ID, &v.Name, &v.Species, &v.Breed, &v.Sex, &v.BirthDate, &v.Registration, &v.Color, &v.OwnerName)
	if err != nil {
		return nil, mapError("get linked animal", err)
	}
	return &v, nil
}
