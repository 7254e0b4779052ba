package contacts

import (
	"context"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
)

const (
	KindPerson       = "person"
	KindOrganization = "organization"

	SourceManual       = "manual"
	SourceInboundEmail = "inbound_email"
	SourceMarketplace  = "marketplace"
)

var ErrEmailTaken = errs.New(errs.ErrConflict, "a contact with this email already exists")

type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Contact struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"-"`
	Kind         string     `json:"kind"`
	DisplayName  string     `json:"display_name"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	Organization string     `json:"organization,omitempty"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Address      Address    `json:"address"`
	Tags         []string   `json:"tags"`
	Source       string     `json:"source"`
	Notes        string     `json:"notes,omitempty"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type CreateInput struct {
	Kind         string   `json:"kind" validate:"omitempty,oneof=person organization"`
	DisplayName  string   `json:"display_name" validate:"max=200"`
	FirstName    string   `json:"first_name" validate:"max=100"`
	LastName     string   `json:"last_name" validate:"max=100"`
	Organization string   `json:"organization" validate:"max=200"`
	Email        string   `json:"email" validate:"omitempty,email"`
	Phone        string   `json:"phone" validate:"max=50"`
	Address      Address  `json:"address"`
	Tags         []string `json:"tags" validate:"max=50,dive,max=50"`
	Source       string   `json:"source" validate:"omitempty,oneof=manual inbound_email marketplace import"`
	Notes        string   `json:"notes" validate:"max=10000"`
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	DisplayName  *string   `json:"display_name" validate:"omitempty,min=1,max=200"`
	FirstName    *string   `json:"first_name" validate:"omitempty,max=100"`
	LastName     *string   `json:"last_name" validate:"omitempty,max=100"`
	Organization *string   `json:"organization" validate:"omitempty,max=200"`
	Email        *string   `json:"email" validate:"omitempty,email"`
	Phone        *string   `json:"phone" validate:"omitempty,max=50"`
	Address      *Address  `json:"address"`
	Tags         *[]string `json:"tags"`
	Notes        *string   `json:"notes" validate:"omitempty,max=10000"`
}

type Filters struct {
	Query           string
	Tag             string
	IncludeArchived bool
	Limit           int
	After           string
}

type ListResult struct {
	Items      []Contact `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type Repository interface {
	Create(ctx context.Context, c *Contact) error
	Get(ctx context.Context, tenantID, id string) (*Contact, error)
	Update(ctx context.Context, c *Contact) error
	Archive(ctx context.Context, tenantID, id string, at time.Time) error
	List(ctx context.Context, tenantID string, filters Filters) (ListResult, error)
	FindByEmail(ctx context.Context, tenantID, email string) (*Contact, error)
}
