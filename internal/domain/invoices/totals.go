package invoices

import "fmt"

// Totals sums the line items and applies the tax rate, rounding tax half-up
// to the cent.
func Totals(items []LineItem, taxRateBps int) (subtotal, tax, total int64) {
	for _, li := range items {
		subtotal += li.Amount()
	}
	tax = (subtotal*int64(taxRateBps) + 5000) / 10000
	return subtotal, tax, subtotal + tax
}

// FormatNumber renders the per-tenant sequence as an invoice number.
func FormatNumber(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}

// settle derives the payment status from the amount paid.
func settle(inv *Invoice) {
	switch {
	case inv.PaidCents <= 0:
		inv.Status = StatusIssued
		inv.PaidAt = nil
	case inv.PaidCents < inv.TotalCents:
		inv.Status = StatusPartiallyPaid
		inv.PaidAt = nil
	default:
		inv.Status = StatusPaid
	}
}
