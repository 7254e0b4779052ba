package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/marketplace"
	"github.com/jackc/pgx/v5"
)

var _ marketplace.Repository = (*ListingRepository)(nil)

type ListingRepository struct {
	conn
}

const listingColumns = `l.id, l.tenant_id, l.kind, l.subject_id, l.title, l.description, l.species, l.price_cents, l.currency,
       l.city, l.region, l.status, l.published_at, l.created_at, l.updated_at`

func scanListing(row pgx.Row, extra ...any) (*marketplace.Listing, error) {
	var l marketplace.Listing
	dest := []any{&l.ID, &l.TenantID, &l.Kind, &l.SubjectID, &l.Title, &l.Description, &l.Species, &l.PriceCents,
		&l.Currency, &l.City, &l.Region, &l.Status, &l.PublishedAt, &l.CreatedAt, &l.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ListingRepository) Create(ctx context.Context, l *marketplace.Listing) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO listings (id, tenant_id, kind, subject_id, title, description, species, price_cents, currency, city, region,
                      status, published_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID, l.TenantID, l.Kind, l.SubjectID, l.Title, l.Description, l.Species, l.PriceCents, l.Currency, l.City,
		l.Region, l.Status, l.PublishedAt, l.CreatedAt, l.UpdatedAt)
	return mapError("create listing", err)
}

func (r *ListingRepository) Get(ctx context.Context, tenantID, id string) (*marketplace.Listing, error) {
	l, err := scanListing(r.queryer().QueryRow(ctx, `SELECT `+listingColumns+` FROM listings l WHERE l.tenant_id = $1 AND l.id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get listing", err)
	}
	return l, nil
}

func (r *ListingRepository) Update(ctx context.Context, l *marketplace.Listing) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE listings
   SET title = $3, description = $4, price_cents = $5, currency = $6, city = $7, region = $8, status = $9,
       published_at = $10, updated_at = $11
 WHERE tenant_id = $1 AND id = $2`,
		l.TenantID, l.ID, l.Title, l.Description, l.PriceCents, l.Currency, l.City, l.Region, l.Status,
		utcPtr(l.PublishedAt), l.UpdatedAt)
	return expectOne("update listing", tag, err)
}

func (r *ListingRepository) List(ctx context.Context, tenantID string, filters marketplace.Filters) (marketplace.ListResult, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return marketplace.ListResult{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+listingColumns+`
  FROM listings l
 WHERE l.tenant_id = $1
   AND ($2::text IS NULL OR l.status = $2)
   AND ($3::text IS NULL OR l.kind = $3)
   AND ($4::timestamptz IS NULL OR (l.created_at, l.id) > ($4, $5))
 ORDER BY l.created_at, l.id
 LIMIT $6`, tenantID, nullableString(filters.Status), nullableString(filters.Kind), cursorTS, cursorID, limit+1)
	if err != nil {
		return marketplace.ListResult{}, mapError("list listings", err)
	}
	defer rows.Close()

	items := make([]marketplace.Listing, 0, limit+1)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return marketplace.ListResult{}, fmt.Errorf("scan listing: %w", err)
		}
		items = append(items, *l)
	}
	if err := rows.Err(); err != nil {
		return marketplace.ListResult{}, mapError("list listings", err)
	}
	items, next := pagination.Trim(items, limit, func(l marketplace.Listing) (time.Time, string) { return l.CreatedAt, l.ID })
	return marketplace.ListResult{Items: items, NextCursor: next}, nil
}

func (r *ListingRepository) SubjectSpecies(ctx context.Context, tenantID, kind, subjectID string) (string, error) {
	table := "animals"
	if kind == marketplace.KindOffspringGroup {
		table = "breeding_plans"
	}
	var species string
	err := r.queryer().QueryRow(ctx, `SELECT species FROM `+table+` WHERE tenant_id = $1 AND id = $2`, tenantID, subjectID).Scan(&species)
	if err != nil {
		return "", mapError("resolve listing subject", err)
	}
	return species, nil
}

func (r *ListingRepository) Availability(ctx context.Context, tenantID, planID string) (marketplace.Availability, error) {
	var a marketplace.Availability
	err := r.queryer().QueryRow(ctx, `
SELECT COUNT(*) FILTER (WHERE sex = 'male'),
       COUNT(*) FILTER (WHERE sex = 'female'),
       COUNT(*) FILTER (WHERE sex = 'unknown'),
       COUNT(*)
  FROM offspring
 WHERE tenant_id = $1 AND plan_id = $2 AND placement_status = 'available'`, tenantID, planID).
		Scan(&a.Male, &a.Female, &a.Unknown, &a.Total)
	return a, mapError("count available offspring", err)
}

const publishedFrom = `
  FROM listings l
  JOIN tenants t ON t.id = l.tenant_id
 WHERE l.status = 'published'`

func (r *ListingRepository) GetPublished(ctx context.Context, id string) (*marketplace.PublishedRow, error) {
	var row marketplace.PublishedRow
	l, err := scanListing(r.queryer().QueryRow(ctx, `
SELECT `+listingColumns+`, t.name, t.slug`+publishedFrom+` AND l.id = $1`, id), &row.TenantName, &row.TenantSlug)
	if err != nil {
		return nil, mapError("get published listing", err)
	}
	row.Listing = *l
	return &row, nil
}

// ListPublished pages newest first on (published_at, id).
func (r *ListingRepository) ListPublished(ctx context.Context, filters marketplace.PublicFilters) ([]marketplace.PublishedRow, string, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return nil, "", err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+listingColumns+`, t.name, t.slug`+publishedFrom+`
   AND ($1::text IS NULL OR l.species = $1)
   AND ($2::text IS NULL OR l.region ILIKE $2)
   AND ($3::timestamptz IS NULL OR (l.published_at, l.id) < ($3, $4))
 ORDER BY l.published_at DESC, l.id DESC
 LIMIT $5`, nullableString(filters.Species), nullableString(filters.Region), cursorTS, cursorID, limit+1)
	if err != nil {
		return nil, "", mapError("list published listings", err)
	}
	defer rows.Close()

	items := make([]marketplace.PublishedRow, 0, limit+1)
	for rows.Next() {
		var row marketplace.PublishedRow
		l, err := scanListing(rows, &row.TenantName, &row.TenantSlug)
		if err != nil {
			return nil, "", fmt.Errorf("scan published listing: %w", err)
		}
		row.Listing = *l
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapError("list published listings", err)
	}
	items, next := pagination.Trim(items, limit, func(row marketplace.PublishedRow) (time.Time, string) {
		return *row.PublishedAt, row.ID
	})
	return items, next, nil
}
