package invoices

import (
	"context"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
)

const (
	StatusDraft         = "draft"
	StatusIssued        = "issued"
	StatusPartiallyPaid = "partially_paid"
	StatusPaid          = "paid"
	StatusVoid          = "void"
)

// Payment methods. MethodStripe is only recorded from webhooks.
const (
	MethodCash         = "cash"
	MethodCheck        = "check"
	MethodBankTransfer = "bank_transfer"
	MethodCard         = "card"
	MethodOther        = "other"
	MethodStripe       = "stripe"
)

var (
	ErrUnknownContact = errs.New(errs.ErrInvalidReference, "contact does not exist in this tenant")
	ErrOverpayment    = errs.New(errs.ErrConflict, "payment exceeds the outstanding balance")
	ErrOverRefund     = errs.New(errs.ErrConflict, "refund exceeds the amount paid")
	ErrHasPayments    = errs.New(errs.ErrConflict, "invoice with payments cannot be voided")
)

type LineItem struct {
	Description string `json:"description" validate:"required,max=500"`
	Quantity    int64  `json:"quantity" validate:"gte=1,lte=10000"`
	UnitCents   int64  `json:"unit_cents" validate:"gte=0"`
}

// Amount is Quantity x UnitCents.
func (li LineItem) Amount() int64 {
	return li.Quantity * li.UnitCents
}

type Invoice struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"-"`
	Number        string     `json:"number"`
	ContactID     string     `json:"contact_id"`
	OffspringID   string     `json:"offspring_id,omitempty"`
	Status        string     `json:"status"`
	Currency      string     `json:"currency"`
	LineItems     []LineItem `json:"line_items"`
	TaxRateBps    int        `json:"tax_rate_bps"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
	PaidCents     int64      `json:"paid_cents"`
	Notes         string     `json:"notes,omitempty"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	IssuedAt      *time.Time `json:"issued_at,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	VoidedAt      *time.Time `json:"voided_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Balance is what is still owed.
func (inv Invoice) Balance() int64 {
	return inv.TotalCents - inv.PaidCents
}

type Payment struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"-"`
	InvoiceID   string    `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	ExternalRef string    `json:"external_ref,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateInput struct {
	ContactID   string     `json:"contact_id" validate:"required,ulid"`
	OffspringID string     `json:"offspring_id" validate:"omitempty,ulid"`
	Currency    string     `json:"currency" validate:"omitempty,currency"`
	LineItems   []LineItem `json:"line_items" validate:"required,min=1,max=100,dive"`
	TaxRateBps  int        `json:"tax_rate_bps" validate:"gte=0,lte=10000"`
	Notes       string     `json:"notes" validate:"max=5000"`
	DueAt       *time.Time `json:"due_at"`
}

// PaymentInput is a manually recorded payment.
type PaymentInput struct {
	AmountCents int64      `json:"amount_cents" validate:"gt=0"`
	Method      string     `json:"method" validate:"required,oneof=cash check bank_transfer card other"`
	ExternalRef string     `json:"external_ref" validate:"max=200"`
	Notes       string     `json:"notes" validate:"max=2000"`
	ReceivedAt  *time.Time `json:"received_at"`
}

type Filters struct {
	ContactID string
	Status    string
	Limit     int
	After     string
}

type ListResult struct {
	Items      []Invoice `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// Detail is an invoice with its payment history.
type Detail struct {
	Invoice
	Payments []Payment `json:"payments"`
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	NextNumber(ctx context.Context, tenantID string) (int64, error)
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, tenantID, id string) (*Invoice, error)
	Lock(ctx context.Context, tenantID, id string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, tenantID string, filters Filters) (ListResult, error)
	ContactExists(ctx context.Context, tenantID, contactID string) (bool, error)

	CreatePayment(ctx context.Context, p *Payment) error
	PaymentByRef(ctx context.Context, tenantID, externalRef string) (*Payment, error)
	// FindPaymentByRef looks a payment up across tenants, for provider events that carry no tenant.
	FindPaymentByRef(ctx context.Context, externalRef string) (*Payment, error)
	ListPayments(ctx context.Context, tenantID, invoiceID string) ([]Payment, error)
	CountPayments(ctx context.Context, tenantID, invoiceID string) (int64, error)
}
