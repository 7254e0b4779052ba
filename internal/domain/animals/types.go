package animals

import (
	"context"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
)

const (
	SexMale    = "male"
	SexFemale  = "female"
	SexUnknown = "unknown"

	StatusActive   = "active"
	StatusRetired  = "retired"
	StatusSold     = "sold"
	StatusDeceased = "deceased"
)

// Link statuses.
const (
	LinkPending  = "pending"
	LinkApproved = "approved"
	LinkRejected = "rejected"
	LinkRevoked  = "revoked"
)

var (
	ErrOwnAnimal     = errs.New(errs.ErrConflict, "cannot link to your own animal")
	ErrLinkExists    = errs.New(errs.ErrConflict, "a pending or approved link to this animal already exists")
	ErrUnknownCode   = errs.New(errs.ErrNotFound, "no animal matches this exchange code")
	ErrNotLinkParty  = errs.New(errs.ErrForbidden, "tenant is not a party to this link")
	ErrNotLinkOwner  = errs.New(errs.ErrForbidden, "only the owning tenant can decide a link request")
	ErrParentMissing = errs.New(errs.ErrInvalidReference, "parent must be your own animal or an approved linked animal")
)

// Species supported for breeding. Gestation lengths live with breeding plans.
var Species = []string{"dog", "cat", "horse", "goat", "sheep", "rabbit", "cattle"}

type Animal struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"-"`
	Name         string     `json:"name"`
	Species      string     `json:"species"`
	Breed        string     `json:"breed,omitempty"`
	Sex          string     `json:"sex"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Registration string     `json:"registration,omitempty"`
	Microchip    string     `json:"microchip,omitempty"`
	Color        string     `json:"color,omitempty"`
	Status       string     `json:"status"`
	DamID        string     `json:"dam_id,omitempty"`
	SireID       string     `json:"sire_id,omitempty"`
	ExchangeCode string     `json:"exchange_code"`
	Notes        string     `json:"notes,omitempty"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// LinkedAnimal is what another tenant sees through an approved link. It omits
// microchip, notes, exchange code and any owner contact details.
type LinkedAnimal struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Species      string     `json:"species"`
	Breed        string     `json:"breed,omitempty"`
	Sex          string     `json:"sex"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Registration string     `json:"registration,omitempty"`
	Color        string     `json:"color,omitempty"`
	OwnerName    string     `json:"owner_name"`
}

type Link struct {
	ID                string     `json:"id"`
	RequesterTenantID string     `json:"requester_tenant_id"`
	OwnerTenantID     string     `json:"owner_tenant_id"`
	AnimalID          string     `json:"animal_id"`
	Purpose           string     `json:"purpose,omitempty"`
	Message           string     `json:"message,omitempty"`
	Status            string     `json:"status"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type CreateInput struct {
	Name         string     `json:"name" validate:"required,max=200"`
	Species      string     `json:"species" validate:"required,oneof=dog cat horse goat sheep rabbit cattle"`
	Breed        string     `json:"breed" validate:"max=200"`
	Sex          string     `json:"sex" validate:"required,oneof=male female unknown"`
	BirthDate    *time.Time `json:"birth_date"`
	Registration string     `json:"registration" validate:"max=100"`
	Microchip    string     `json:"microchip" validate:"max=50"`
	Color        string     `json:"color" validate:"max=100"`
	Status       string     `json:"status" validate:"omitempty,oneof=active retired sold deceased"`
	DamID        string     `json:"dam_id" validate:"omitempty,ulid"`
	SireID       string     `json:"sire_id" validate:"omitempty,ulid"`
	Notes        string     `json:"notes" validate:"max=10000"`
}

type UpdateInput struct {
	Name         *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Breed        *string    `json:"breed" validate:"omitempty,max=200"`
	Sex          *string    `json:"sex" validate:"omitempty,oneof=male female unknown"`
	BirthDate    *time.Time `json:"birth_date"`
	Registration *string    `json:"registration" validate:"omitempty,max=100"`
	Microchip    *string    `json:"microchip" validate:"omitempty,max=50"`
	Color        *string    `json:"color" validate:"omitempty,max=100"`
	Status       *string    `json:"status" validate:"omitempty,oneof=active retired sold deceased"`
	DamID        *string    `json:"dam_id" validate:"omitempty,ulid"`
	SireID       *string    `json:"sire_id" validate:"omitempty,ulid"`
	Notes        *string    `json:"notes" validate:"omitempty,max=10000"`
}

type LinkRequest struct {
	ExchangeCode string `json:"exchange_code" validate:"required"`
	Purpose      string `json:"purpose" validate:"max=200"`
	Message      string `json:"message" validate:"max=2000"`
}

type Filters struct {
	Species string
	Sex     string
	Status  string
	Query   string
	Limit   int
	After   string
}

type ListResult struct {
	Items      []Animal `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type LinkFilters struct {
	// Direction is "incoming" (links to my animals) or "outgoing" (my requests).
	Direction string
	Status    string
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	Create(ctx context.Context, a *Animal) error
	Get(ctx context.Context, tenantID, id string) (*Animal, error)
	Update(ctx context.Context, a *Animal) error
	Archive(ctx context.Context, tenantID, id string, at time.Time) error
	List(ctx context.Context, tenantID string, filters Filters) (ListResult, error)
	GetByExchangeCode(ctx context.Context, code string) (*Animal, error)

	CreateLink(ctx context.Context, link *Link) error
	LockLink(ctx context.Context, id string) (*Link, error)
	UpdateLink(ctx context.Context, link *Link) error
	ActiveLinkExists(ctx context.Context, requesterTenantID, animalID string) (bool, error)
	ListLinks(ctx context.Context, tenantID string, filters LinkFilters) ([]Link, error)
	GetLinkedAnimal(ctx context.Context, requesterTenantID, animalID string) (*LinkedAnimal, error)
}
