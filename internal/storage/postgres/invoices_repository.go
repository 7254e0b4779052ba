package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/invoices"
	"github.com/jackc/pgx/v5"
)

var _ invoices.Repository = (*InvoiceRepository)(nil)

type InvoiceRepository struct {
	conn
}

func (r *InvoiceRepository) WithTx(ctx context.Context, fn func(context.Context, invoices.Repository) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &InvoiceRepository{conn: conn{pool: r.pool, tx: tx}})
	})
}

const invoiceColumns = `id, tenant_id, number, contact_id, offspring_id, status, currency, line_items, tax_rate_bps,
       subtotal_cents, tax_cents, total_cents, paid_cents, notes, due_at, issued_at, paid_at, voided_at,
       created_at, updated_at`

func scanInvoice(row pgx.Row) (*invoices.Invoice, error) {
	var inv invoices.Invoice
	var offspringID *string
	var items []byte
	if err := row.Scan(&inv.ID, &inv.TenantID, &inv.Number, &inv.ContactID, &offspringID, &inv.Status, &inv.Currency,
		&items, &inv.TaxRateBps, &inv.SubtotalCents, &inv.TaxCents, &inv.TotalCents, &inv.PaidCents, &inv.Notes,
		&inv.DueAt, &inv.IssuedAt, &inv.PaidAt, &inv.VoidedAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	inv.OffspringID = derefString(offspringID)
	if err := json.Unmarshal(items, &inv.LineItems); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	return &inv, nil
}

// NextNumber bumps the tenant's invoice counter. The upsert holds the counter
// row lock until the surrounding transaction ends.
func (r *InvoiceRepository) NextNumber(ctx context.Context, tenantID string) (int64, error) {
	var next int64
	err := r.queryer().QueryRow(ctx, `
INSERT INTO invoice_counters (tenant_id, next_number) VALUES ($1, 1)
ON CONFLICT (tenant_id) DO UPDATE SET next_number = invoice_counters.next_number + 1
RETURNING next_number`, tenantID).Scan(&next)
	if err != nil {
		return 0, mapError("next invoice number", err)
	}
	return next, nil
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoices.Invoice) error {
	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("encode line items: %w", err)
	}
	_, err = r.queryer().Exec(ctx, `
INSERT INTO invoices (id, tenant_id, number, contact_id, offspring_id, status, currency, line_items, tax_rate_bps,
                      subtotal_cents, tax_cents, total_cents, paid_cents, notes, due_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		inv.ID, inv.TenantID, inv.Number, inv.ContactID, nullableString(inv.OffspringID), inv.Status, inv.Currency,
		items, inv.TaxRateBps, inv.SubtotalCents, inv.TaxCents, inv.TotalCents, inv.PaidCents, inv.Notes,
		utcPtr(inv.DueAt), inv.CreatedAt, inv.UpdatedAt)
	return mapError("create invoice", err)
}

func (r *InvoiceRepository) Get(ctx context.Context, tenantID, id string) (*invoices.Invoice, error) {
	inv, err := scanInvoice(r.queryer().QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get invoice", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) Lock(ctx context.Context, tenantID, id string) (*invoices.Invoice, error) {
	inv, err := scanInvoice(r.queryer().QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return nil, mapError("lock invoice", err)
	}
	return inv, nil
}

// Update persists status and payment fields. Line items are fixed at creation.
func (r *InvoiceRepository) Update(ctx context.Context, inv *invoices.Invoice) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE invoices
   SET status = $3, paid_cents = $4, notes = $5, due_at = $6, issued_at = $7, paid_at = $8, voided_at = $9,
       updated_at = $10
 WHERE tenant_id = $1 AND id = $2`,
		inv.TenantID, inv.ID, inv.Status, inv.PaidCents, inv.Notes, utcPtr(inv.DueAt), utcPtr(inv.IssuedAt),
		utcPtr(inv.PaidAt), utcPtr(inv.VoidedAt), inv.UpdatedAt)
	return expectOne("update invoice", tag, err)
}

func (r *InvoiceRepository) List(ctx context.Context, tenantID string, filters invoices.Filters) (invoices.ListResult, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return invoices.ListResult{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+invoiceColumns+`
  FROM invoices
 WHERE tenant_id = $1
   AND ($2::text IS NULL OR contact_id = $2)
   AND ($3::text IS NULL OR status = $3)
   AND ($4::timestamptz IS NULL OR (created_at, id) > ($4, $5))
 ORDER BY created_at, id
 LIMIT $6`, tenantID, nullableString(filters.ContactID), nullableString(filters.Status), cursorTS, cursorID, limit+1)
	if err != nil {
		return invoices.ListResult{}, mapError("list invoices", err)
	}
	defer rows.Close()

	items := make([]invoices.Invoice, 0, limit+1)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return invoices.ListResult{}, fmt.Errorf("scan invoice: %w", err)
		}
		items = append(items, *inv)
	}
	if err := rows.Err(); err != nil {
		return invoices.ListResult{}, mapError("list invoices", err)
	}
	items, next := pagination.Trim(items, limit, func(inv invoices.Invoice) (time.Time, string) {
		return inv.CreatedAt, inv.ID
	})
	return invoices.ListResult{Items: items, NextCursor: next}, nil
}

func (r *InvoiceRepository) ContactExists(ctx context.Context, tenantID, contactID string) (bool, error) {
	return (&OffspringRepository{conn: r.conn}).ContactExists(ctx, tenantID, contactID)
}

const paymentColumns = `id, tenant_id, invoice_id, amount_cents, method, external_ref, notes, received_at, created_at`

func scanPayment(row pgx.Row) (*invoices.Payment, error) {
	var p invoices.Payment
	var ref *string
	if err := row.Scan(&p.ID, &p.TenantID, &p.InvoiceID, &p.AmountCents, &p.Method, &ref, &p.Notes,
		&p.ReceivedAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ExternalRef = derefString(ref)
	return &p, nil
}

func (r *InvoiceRepository) CreatePayment(ctx context.Context, p *invoices.Payment) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO payments (id, tenant_id, invoice_id, amount_cents, method, external_ref, notes, received_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.TenantID, p.InvoiceID, p.AmountCents, p.Method, nullableString(p.ExternalRef), p.Notes,
		p.ReceivedAt.UTC(), p.CreatedAt)
	return mapError("create payment", err)
}

func (r *InvoiceRepository) PaymentByRef(ctx context.Context, tenantID, externalRef string) (*invoices.Payment, error) {
	p, err := scanPayment(r.queryer().QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE tenant_id = $1 AND external_ref = $2`, tenantID, externalRef))
	if err != nil {
		return nil, mapError("get payment by ref", err)
	}
	return p, nil
}

func (r *InvoiceRepository) FindPaymentByRef(ctx context.Context, externalRef string) (*invoices.Payment, error) {
	p, err := scanPayment(r.queryer().QueryRow(ctx, `
SELECT `+paymentColumns+` FROM payments WHERE external_ref = $1 ORDER BY created_at LIMIT 1`, externalRef))
	if err != nil {
		return nil, mapError("find payment by ref", err)
	}
	return p, nil
}

func (r *InvoiceRepository) ListPayments(ctx context.Context, tenantID, invoiceID string) ([]invoices.Payment, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+paymentColumns+` FROM payments WHERE tenant_id = $1 AND invoice_id = $2 ORDER BY received_at, id`,
		tenantID, invoiceID)
	if err != nil {
		return nil, mapError("list payments", err)
	}
	defer rows.Close()
	out := []invoices.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, mapError("list payments", rows.Err())
}

func (r *InvoiceRepository) CountPayments(ctx context.Context, tenantID, invoiceID string) (int64, error) {
	var n int64
	err := r.queryer().QueryRow(ctx,
		`SELECT count(*) FROM payments WHERE tenant_id = $1 AND invoice_id = $2`, tenantID, invoiceID).Scan(&n)
	return n, mapError("count payments", err)
}
