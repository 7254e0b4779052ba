// Package documents renders invoices and sales contracts as HTML, and as PDF
// through a headless browser.
package documents

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/breeding"
	"github.com/BreederHQ/server/internal/domain/contacts"
	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/invoices"
	"github.com/BreederHQ/server/internal/domain/offspring"
	"github.com/BreederHQ/server/internal/domain/tenants"
	"github.com/rs/zerolog"
)

const (
	FormatHTML = "html"
	FormatPDF  = "pdf"
)

var ErrNoBuyer = errs.New(errs.ErrConflict, "offspring has no buyer to contract with")

//go:embed templates/*.html
var templateFS embed.FS

type Invoices interface {
	Get(ctx context.Context, tenantID, id string) (*invoices.Detail, error)
}

type Contacts interface {
	Get(ctx context.Context, tenantID, id string) (*contacts.Contact, error)
}

type Tenants interface {
	Get(ctx context.Context, tenantID string) (*tenants.Tenant, error)
}

type Offspring interface {
	Get(ctx context.Context, tenantID, id string) (*offspring.Offspring, error)
}

type Plans interface {
	Get(ctx context.Context, tenantID, id string) (*breeding.Plan, error)
}

// PDFRenderer prints an HTML document to PDF.
type PDFRenderer interface {
	PDF(ctx context.Context, html string) ([]byte, error)
}

type Document struct {
	Body        []byte
	ContentType string
	Filename    string
}

type Service struct {
	invoices  Invoices
	contacts  Contacts
	tenants   Tenants
	offspring Offspring
	plans     Plans
	pdf       PDFRenderer
	templates *template.Template
	logger    zerolog.Logger
	now       func() time.Time
}

// Sources groups the services documents read from.
type Sources struct {
	Invoices  Invoices
	Contacts  Contacts
	Tenants   Tenants
	Offspring Offspring
	Plans     Plans
}

// NewService parses the document templates. pdf may be nil, in which case PDF
// requests fail with a conflict.
func NewService(src Sources, pdf PDFRenderer, logger zerolog.Logger) (*Service, error) {
	templates, err := template.New("documents").Funcs(template.FuncMap{
		"money": Money,
		"date":  formatDate,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse document templates: %w", err)
	}
	return &Service{
		invoices:  src.Invoices,
		contacts:  src.Contacts,
		tenants:   src.Tenants,
		offspring: src.Offspring,
		plans:     src.Plans,
		pdf:       pdf,
		templates: templates,
		logger:    logger.With().Str("component", "documents").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

type invoiceView struct {
	Tenant   tenants.Tenant
	Buyer    contacts.Contact
	Invoice  invoices.Invoice
	Payments []invoices.Payment
	Printed  time.Time
}

// Invoice renders one invoice with its payments.
func (s *Service) Invoice(ctx context.Context, tenantID, invoiceID, format string) (*Document, error) {
	detail, err := s.invoices.Get(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	buyer, err := s.contacts.Get(ctx, tenantID, detail.Invoice.ContactID)
	if err != nil {
		return nil, err
	}
	view := invoiceView{
		Tenant:   *tenant,
		Buyer:    *buyer,
		Invoice:  detail.Invoice,
		Payments: detail.Payments,
		Printed:  s.now(),
	}
	return s.render(ctx, "invoice.html", view, detail.Invoice.Number, format)
}

type contractView struct {
	Tenant    tenants.Tenant
	Buyer     contacts.Contact
	Offspring offspring.Offspring
	Plan      *breeding.Plan
	Price     string
	Printed   time.Time
}

// Contract renders the sales contract for a reserved or placed offspring.
func (s *Service) Contract(ctx context.Context, tenantID, offspringID, format string) (*Document, error) {
	o, err := s.offspring.Get(ctx, tenantID, offspringID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID == "" {
		return nil, ErrNoBuyer
	}
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	buyer, err := s.contacts.Get(ctx, tenantID, o.BuyerID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.Get(ctx, tenantID, o.PlanID)
	if err != nil {
		return nil, err
	}

	price := "To be agreed"
	if o.PriceCents != nil {
		price = Money(*o.PriceCents, "USD")
	}
	view := contractView{
		Tenant:    *tenant,
		Buyer:     *buyer,
		Offspring: *o,
		Plan:      plan,
		Price:     price,
		Printed:   s.now(),
	}
	name := "contract-" + strings.ToLower(strings.ReplaceAll(o.Name, " ", "-"))
	return s.render(ctx, "contract.html", view, name, format)
}

func (s *Service) render(ctx context.Context, tmpl string, data any, name, format string) (*Document, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, tmpl, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", tmpl, err)
	}

	switch format {
	case "", FormatHTML:
		return &Document{Body: buf.Bytes(), ContentType: "text/html; charset=utf-8", Filename: name + ".html"}, nil
	case FormatPDF:
		if s.pdf == nil {
			return nil, errs.New(errs.ErrConflict, "pdf rendering is not available")
		}
		pdf, err := s.pdf.PDF(ctx, buf.String())
		if err != nil {
			s.logger.Error().Err(err).Str("document", name).Msg("pdf rendering failed")
			return nil, fmt.Errorf("render %s pdf: %w", name, err)
		}
		return &Document{Body: pdf, ContentType: "application/pdf", Filename: name + ".pdf"}, nil
	default:
		return nil, errs.Invalid("format", "must be html or pdf")
	}
}

// Money formats minor units as "1,234.56 USD".
func Money(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("%s%s.%02d %s", sign, grouped.String(), cents%100, currency)
}

func formatDate(t any) string {
	switch v := t.(type) {
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format("January 2, 2006")
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.Format("January 2, 2006")
	}
	return ""
}
