package marketplace

import (
	"context"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
)

const (
	KindAnimal         = "animal"
	KindOffspringGroup = "offspring_group"

	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

var ErrUnknownSubject = errs.New(errs.ErrInvalidReference, "listing subject does not exist in this tenant")

type Listing struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"-"`
	Kind        string     `json:"kind"`
	SubjectID   string     `json:"subject_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Species     string     `json:"species"`
	PriceCents  *int64     `json:"price_cents,omitempty"`
	Currency    string     `json:"currency"`
	City        string     `json:"city,omitempty"`
	Region      string     `json:"region,omitempty"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Availability counts available offspring of a group listing by sex.
type Availability struct {
	Male    int `json:"male"`
	Female  int `json:"female"`
	Unknown int `json:"unknown"`
	Total   int `json:"total"`
}

// PublicListing is the projection served without authentication. It carries
// the breeder's display name and location only.
type PublicListing struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Species      string        `json:"species"`
	PriceCents   *int64        `json:"price_cents,omitempty"`
	Currency     string        `json:"currency"`
	City         string        `json:"city,omitempty"`
	Region       string        `json:"region,omitempty"`
	BreederName  string        `json:"breeder_name"`
	BreederSlug  string        `json:"breeder_slug"`
	Availability *Availability `json:"availability,omitempty"`
	PublishedAt  time.Time     `json:"published_at"`
}

// PublishedRow is a published listing joined with its tenant.
type PublishedRow struct {
	Listing
	TenantName string
	TenantSlug string
}

type CreateInput struct {
	Kind        string `json:"kind" validate:"required,oneof=animal offspring_group"`
	SubjectID   string `json:"subject_id" validate:"required,ulid"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=20000"`
	PriceCents  *int64 `json:"price_cents" validate:"omitempty,gte=0"`
	Currency    string `json:"currency" validate:"omitempty,currency"`
	City        string `json:"city" validate:"max=100"`
	Region      string `json:"region" validate:"max=100"`
}

type UpdateInput struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=20000"`
	PriceCents  *int64  `json:"price_cents" validate:"omitempty,gte=0"`
	Currency    *string `json:"currency" validate:"omitempty,currency"`
	City        *string `json:"city" validate:"omitempty,max=100"`
	Region      *string `json:"region" validate:"omitempty,max=100"`
}

type Filters struct {
	Status string
	Kind   string
	Limit  int
	After  string
}

type PublicFilters struct {
	Species string
	Region  string
	Limit   int
	After   string
}

type ListResult struct {
	Items      []Listing `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type PublicListResult struct {
	Items      []PublicListing `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type Repository interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, tenantID, id string) (*Listing, error)
	Update(ctx context.Context, l *Listing) error
	List(ctx context.Context, tenantID string, filters Filters) (ListResult, error)

	// SubjectSpecies returns the species of the listed animal or plan, or ErrNotFound.
	SubjectSpecies(ctx context.Context, tenantID, kind, subjectID string) (string, error)
	Availability(ctx context.Context, tenantID, planID string) (Availability, error)

	GetPublished(ctx context.Context, id string) (*PublishedRow, error)
	ListPublished(ctx context.Context, filters PublicFilters) ([]PublishedRow, string, error)
}
