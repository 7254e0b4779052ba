package breeding

import (
	"context"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/BreederHQ/server/internal/domain/offspring"
)

// Plan statuses, in lifecycle order.
const (
	StatusPlanning  = "planning"
	StatusCommitted = "committed"
	StatusBred      = "bred"
	StatusPregnant  = "pregnant"
	StatusBirthed   = "birthed"
	StatusWeaned    = "weaned"
	StatusPlacement = "placement"
	StatusComplete  = "complete"
	StatusCancelled = "cancelled"
)

// GestationDays per species.
var GestationDays = map[string]int{
	"dog":    63,
	"cat":    65,
	"horse":  340,
	"goat":   150,
	"sheep":  147,
	"rabbit": 31,
	"cattle": 283,
}

var (
	ErrParentMissing  = errs.New(errs.ErrInvalidReference, "parent must be your own animal or an approved linked animal")
	ErrParentSpecies  = errs.New(errs.ErrInvalidReference, "parent species does not match the plan")
	ErrParentSex      = errs.New(errs.ErrInvalidReference, "dam must be female and sire must be male")
	ErrUseRecordBirth = errs.Invalid("status", "use record birth to mark a plan birthed")
)

type Plan struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"-"`
	Name            string     `json:"name"`
	Species         string     `json:"species"`
	DamID           string     `json:"dam_id,omitempty"`
	SireID          string     `json:"sire_id,omitempty"`
	Status          string     `json:"status"`
	BredAt          *time.Time `json:"bred_at,omitempty"`
	ExpectedBirthAt *time.Time `json:"expected_birth_at,omitempty"`
	BirthedAt       *time.Time `json:"birthed_at,omitempty"`
	WeanedAt        *time.Time `json:"weaned_at,omitempty"`
	LitterSize      int        `json:"litter_size"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Parent is a resolved dam or sire. Linked is true when the animal belongs to
// another tenant and is reachable through an approved link.
type Parent struct {
	ID      string
	Species string
	Sex     string
	Linked  bool
}

type CreateInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Species string `json:"species" validate:"required,oneof=dog cat horse goat sheep rabbit cattle"`
	DamID   string `json:"dam_id" validate:"omitempty,ulid"`
	SireID  string `json:"sire_id" validate:"omitempty,ulid"`
	Notes   string `json:"notes" validate:"max=10000"`
}

type UpdateInput struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=200"`
	DamID  *string `json:"dam_id" validate:"omitempty,ulid"`
	SireID *string `json:"sire_id" validate:"omitempty,ulid"`
	Notes  *string `json:"notes" validate:"omitempty,max=10000"`
}

type TransitionInput struct {
	Status string `json:"status" validate:"required,oneof=planning committed bred pregnant birthed weaned placement complete cancelled"`
	// At defaults to now; it stamps BredAt or WeanedAt.
	At *time.Time `json:"at"`
}

type BirthInput struct {
	BornAt  *time.Time `json:"born_at"`
	Count   int        `json:"count" validate:"required,gte=1,lte=30"`
	Males   int        `json:"males" validate:"gte=0"`
	Females int        `json:"females" validate:"gte=0"`
}

type BirthResult struct {
	Plan      *Plan                 `json:"plan"`
	Offspring []offspring.Offspring `json:"offspring"`
}

type Filters struct {
	Status  string
	Species string
	Limit   int
	After   string
}

type ListResult struct {
	Items      []Plan `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, tenantID, id string) (*Plan, error)
	Lock(ctx context.Context, tenantID, id string) (*Plan, error)
	Update(ctx context.Context, p *Plan) error
	List(ctx context.Context, tenantID string, filters Filters) (ListResult, error)

	// ResolveParent finds an own non-archived animal or one reachable through an approved link.
	ResolveParent(ctx context.Context, tenantID, animalID string) (*Parent, error)
	CreateOffspring(ctx context.Context, items []offspring.Offspring) error
}
