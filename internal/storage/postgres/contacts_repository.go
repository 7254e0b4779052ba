package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/contacts"
	"github.com/jackc/pgx/v5"
)

var _ contacts.Repository = (*ContactRepository)(nil)

type ContactRepository struct {
	conn
}

const contactColumns = `id, tenant_id, kind, display_name, first_name, last_name, organization, email, phone,
       street, city, region, postal_code, country, tags, source, notes, archived_at, created_at, updated_at`

func scanContact(row pgx.Row) (*contacts.Contact, error) {
	var c contacts.Contact
	var email *string
	if err := row.Scan(&c.ID, &c.TenantID, &c.Kind, &c.DisplayName, &c.FirstName, &c.LastName, &c.Organization, &email, &c.Phone,
		&c.Address.Street, &c.Address.City, &c.Address.Region, &c.Address.PostalCode, &c.Address.Country,
		&c.Tags, &c.Source, &c.Notes, &c.ArchivedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Email = derefString(email)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

func (r *ContactRepository) Create(ctx context.Context, c *contacts.Contact) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO contacts (id, tenant_id, kind, display_name, first_name, last_name, organization, email, phone,
                      street, city, region, postal_code, country, tags, source, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		c.ID, c.TenantID, c.Kind, c.DisplayName, c.FirstName, c.LastName, c.Organization, nullableString(c.Email), c.Phone,
		c.Address.Street, c.Address.City, c.Address.Region, c.Address.PostalCode, c.Address.Country,
		c.Tags, c.Source, c.Notes, c.CreatedAt, c.UpdatedAt)
	return mapError("create contact", err)
}

func (r *ContactRepository) Get(ctx context.Context, tenantID, id string) (*contacts.Contact, error) {
	c, err := scanContact(r.queryer().QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get contact", err)
	}
	return c, nil
}

func (r *ContactRepository) Update(ctx context.Context, c *contacts.Contact) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE contacts
   SET display_name = $3, first_name = $4, last_name = $5, organization = $6, email = $7, phone = $8,
       street = $9, city = $10, region = $11, postal_code = $12, country = $13, tags = $14, notes = $15, updated_at = $16
 WHERE tenant_id = $1 AND id = $2`,
		c.TenantID, c.ID, c.DisplayName, c.FirstName, c.LastName, c.Organization, nullableString(c.Email), c.Phone,
		c.Address.Street, c.Address.City, c.Address.Region, c.Address.PostalCode, c.Address.Country, c.Tags, c.Notes, c.UpdatedAt)
	return expectOne("update contact", tag, err)
}

func (r *ContactRepository) Archive(ctx context.Context, tenantID, id string, at time.Time) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE contacts SET archived_at = COALESCE(archived_at, $3), updated_at = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, at)
	return expectOne("archive contact", tag, err)
}

func (r *ContactRepository) List(ctx context.Context, tenantID string, filters contacts.Filters) (contacts.ListResult, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return contacts.ListResult{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	var query, tag *string
	if filters.Query != "" {
		pattern := likePattern(filters.Query)
		query = &pattern
	}
	if filters.Tag != "" {
		tag = &filters.Tag
	}

	rows, err := r.queryer().Query(ctx, `
SELECT `+contactColumns+`
  FROM contacts
 WHERE tenant_id = $1
   AND ($2::boolean OR archived_at IS NULL)
   AND ($3::text IS NULL OR display_name ILIKE $3 OR email ILIKE $3 OR organization ILIKE $3)
   AND ($4::text IS NULL OR $4 = ANY(tags))
   AND ($5::timestamptz IS NULL OR (created_at, id) > ($5, $6))
 ORDER BY created_at, id
 LIMIT $7`, tenantID, filters.IncludeArchived, query, tag, cursorTS, cursorID, limit+1)
	if err != nil {
		return contacts.ListResult{}, mapError("list contacts", err)
	}
	defer rows.Close()

	items := make([]contacts.Contact, 0, limit+1)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return contacts.ListResult{}, fmt.Errorf("scan contact: %w", err)
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return contacts.ListResult{}, mapError("list contacts", err)
	}

	items, next := pagination.Trim(items, limit, func(c contacts.Contact) (time.Time, string) { return c.CreatedAt, c.ID })
	return contacts.ListResult{Items: items, NextCursor: next}, nil
}

func (r *ContactRepository) FindByEmail(ctx context.Context, tenantID, email string) (*contacts.Contact, error) {
	c, err := scanContact(r.queryer().QueryRow(ctx, `
SELECT `+contactColumns+` FROM contacts
 WHERE tenant_id = $1 AND lower(email) = lower($2) AND archived_at IS NULL`, tenantID, email))
	if err != nil {
		return nil, mapError("find contact by email", err)
	}
	return c, nil
}
