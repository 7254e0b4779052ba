// Package invoices bills buyers and tracks the payments made against each invoice.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/audit"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/BreederHQ/server/internal/validation"
	"github.com/rs/zerolog"
)

const defaultCurrency = "USD"

type Service struct {
	repo    Repository
	connect ConnectUpdater
	audit   *audit.Logger
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService builds the invoices service. connect may be nil when Stripe
// Connect is not configured.
func NewService(repo Repository, connect ConnectUpdater, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		connect: connect,
		audit:   audit.NewLogger(logger),
		logger:  logger.With().Str("component", "invoices").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a draft invoice with the next number of the tenant's sequence.
func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*Invoice, error) {
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.Currency == "" {
		input.Currency = defaultCurrency
	}
	contactID := ids.Normalize(input.ContactID)

	items := make([]LineItem, len(input.LineItems))
	for i, li := range input.LineItems {
		li.Description = strings.TrimSpace(li.Description)
		items[i] = li
	}
	subtotal, tax, total := Totals(items, input.TaxRateBps)

	var created *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		ok, err := repo.ContactExists(ctx, tenantID, contactID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownContact
		}
		seq, err := repo.NextNumber(ctx, tenantID)
		if err != nil {
			return err
		}
		now := s.now()
		inv := &Invoice{
			ID:            ids.New(),
			TenantID:      tenantID,
			Number:        FormatNumber(seq),
			ContactID:     contactID,
			OffspringID:   ids.Normalize(input.OffspringID),
			Status:        StatusDraft,
			Currency:      input.Currency,
			LineItems:     items,
			TaxRateBps:    input.TaxRateBps,
			SubtotalCents: subtotal,
			TaxCents:      tax,
			TotalCents:    total,
			Notes:         strings.TrimSpace(input.Notes),
			DueAt:         input.DueAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := repo.Create(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		created = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*Detail, error) {
	inv, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Invoice: *inv, Payments: payments}, nil
}

func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	switch filters.Status {
	case "", StatusDraft, StatusIssued, StatusPartiallyPaid, StatusPaid, StatusVoid:
	default:
		return ListResult{}, errs.Invalid("status", "must be one of: draft, issued, partially_paid, paid, void")
	}
	return s.repo.List(ctx, tenantID, filters)
}

// Issue moves a draft to issued. A zero-total invoice is paid on issue.
func (s *Service) Issue(ctx context.Context, tenantID, id string) (*Invoice, error) {
	return s.mutate(ctx, tenantID, id, func(ctx context.Context, repo Repository, inv *Invoice) error {
		if inv.Status != StatusDraft {
			return errs.Transition("invoice", inv.Status, StatusIssued)
		}
		now := s.now()
		inv.IssuedAt = &now
		inv.Status = StatusIssued
		if inv.TotalCents == 0 {
			inv.Status = StatusPaid
			inv.PaidAt = &now
		}
		return nil
	})
}

// Void cancels an unpaid invoice. Invoices with any recorded payment stay on the books.
func (s *Service) Void(ctx context.Context, tenantID, id string) (*Invoice, error) {
	return s.mutate(ctx, tenantID, id, func(ctx context.Context, repo Repository, inv *Invoice) error {
		if inv.Status == StatusVoid {
			return errs.Transition("invoice", inv.Status, StatusVoid)
		}
		n, err := repo.CountPayments(ctx, tenantID, inv.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrHasPayments
		}
		now := s.now()
		inv.Status = StatusVoid
		inv.VoidedAt = &now
		return nil
	})
}

// RecordPayment records a manual payment. A repeated external reference
// returns the payment already on file without changing the invoice.
func (s *Service) RecordPayment(ctx context.Context, tenantID, invoiceID string, input PaymentInput) (*Payment, *Invoice, error) {
	if err := validation.Struct(input); err != nil {
		return nil, nil, err
	}
	received := s.now()
	if input.ReceivedAt != nil {
		received = input.ReceivedAt.UTC()
	}
	return s.record(ctx, tenantID, invoiceID, Payment{
		AmountCents: input.AmountCents,
		Method:      input.Method,
		ExternalRef: strings.TrimSpace(input.ExternalRef),
		Notes:       strings.TrimSpace(input.Notes),
		ReceivedAt:  received,
	})
}

func (s *Service) ListPayments(ctx context.Context, tenantID, invoiceID string) ([]Payment, error) {
	if _, err := s.repo.Get(ctx, tenantID, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, tenantID, invoiceID)
}

// record applies a payment (positive) or refund (negative) under the invoice lock.
func (s *Service) record(ctx context.Context, tenantID, invoiceID string, p Payment) (*Payment, *Invoice, error) {
	var (
		stored  *Payment
		invoice *Invoice
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.Lock(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if p.ExternalRef != "" {
			existing, err := repo.PaymentByRef(ctx, tenantID, p.ExternalRef)
			switch {
			case err == nil:
				stored, invoice = existing, inv
				return nil
			case !errors.Is(err, errs.ErrNotFound):
				return err
			}
		}

		switch inv.Status {
		case StatusIssued, StatusPartiallyPaid, StatusPaid:
		default:
			return errs.Transition("invoice", inv.Status, StatusPaid)
		}
		if p.AmountCents > inv.Balance() {
			return ErrOverpayment
		}
		if inv.PaidCents+p.AmountCents < 0 {
			return ErrOverRefund
		}

		now := s.now()
		p.ID = ids.New()
		p.TenantID = tenantID
		p.InvoiceID = inv.ID
		p.CreatedAt = now
		if err := repo.CreatePayment(ctx, &p); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}

		inv.PaidCents += p.AmountCents
		settle(inv)
		if inv.Status == StatusPaid && inv.PaidAt == nil {
			inv.PaidAt = &now
		}
		inv.UpdatedAt = now
		if err := repo.Update(ctx, inv); err != nil {
			return err
		}
		stored, invoice = &p, inv
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("invoice_id", invoice.ID).
		Int64("amount_cents", stored.AmountCents).
		Str("status", invoice.Status).
		Msg("payment recorded")
	return stored, invoice, nil
}

type mutation func(ctx context.Context, repo Repository, inv *Invoice) error

func (s *Service) mutate(ctx context.Context, tenantID, id string, fn mutation) (*Invoice, error) {
	var out *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.Lock(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, repo, inv); err != nil {
			return err
		}
		inv.UpdatedAt = s.now()
		if err := repo.Update(ctx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
