package offspring

import (
	"context"
	"time"

	"github.com/BreederHQ/server/internal/domain/errs"
)

// Placement statuses.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusPlaced    = "placed"
	StatusRetained  = "retained"
	StatusDeceased  = "deceased"
)

const (
	QualityPet      = "pet"
	QualityBreeding = "breeding"
	QualityShow     = "show"
)

var (
	ErrBuyerRequired = errs.Invalid("buyer_id", "a buyer is required to reserve")
	ErrUnknownBuyer  = errs.New(errs.ErrInvalidReference, "buyer is not a contact of this tenant")
)

type Offspring struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"-"`
	PlanID          string     `json:"plan_id"`
	Name            string     `json:"name"`
	Collar          string     `json:"collar,omitempty"`
	Sex             string     `json:"sex"`
	Color           string     `json:"color,omitempty"`
	Quality         string     `json:"quality"`
	PlacementStatus string     `json:"placement_status"`
	BuyerID         string     `json:"buyer_id,omitempty"`
	PriceCents      *int64     `json:"price_cents,omitempty"`
	PriceLocked     bool       `json:"price_locked"`
	BornAt          *time.Time `json:"born_at,omitempty"`
	PlacedAt        *time.Time `json:"placed_at,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Assessment is one rearing check-in for an offspring.
type Assessment struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"-"`
	OffspringID string    `json:"offspring_id"`
	AssessedAt  time.Time `json:"assessed_at"`
	WeightGrams *int      `json:"weight_grams,omitempty"`
	Temperament int       `json:"temperament"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Collar      *string `json:"collar" validate:"omitempty,max=50"`
	Sex         *string `json:"sex" validate:"omitempty,oneof=male female unknown"`
	Color       *string `json:"color" validate:"omitempty,max=100"`
	Quality     *string `json:"quality" validate:"omitempty,oneof=pet breeding show"`
	PriceCents  *int64  `json:"price_cents" validate:"omitempty,gte=0"`
	PriceLocked *bool   `json:"price_locked"`
	Notes       *string `json:"notes" validate:"omitempty,max=10000"`
}

type PlacementInput struct {
	Status  string `json:"status" validate:"required,oneof=available reserved placed retained deceased"`
	BuyerID string `json:"buyer_id" validate:"omitempty,ulid"`
}

type AssessmentInput struct {
	AssessedAt  *time.Time `json:"assessed_at"`
	WeightGrams *int       `json:"weight_grams" validate:"omitempty,gte=0"`
	Temperament int        `json:"temperament" validate:"required,gte=1,lte=5"`
	Notes       string     `json:"notes" validate:"max=5000"`
}

type Filters struct {
	PlanID string
	Status string
	Limit  int
	After  string
}

type ListResult struct {
	Items      []Offspring `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	CreateMany(ctx context.Context, items []Offspring) error
	Get(ctx context.Context, tenantID, id string) (*Offspring, error)
	Lock(ctx context.Context, tenantID, id string) (*Offspring, error)
	Update(ctx context.Context, o *Offspring) error
	List(ctx context.Context, tenantID string, filters Filters) (ListResult, error)
	ListByPlan(ctx context.Context, tenantID, planID string) ([]Offspring, error)
	PlanExists(ctx context.Context, tenantID, planID string) (bool, error)
	ContactExists(ctx context.Context, tenantID, contactID string) (bool, error)

	AddAssessment(ctx context.Context, a *Assessment) error
	ListAssessments(ctx context.Context, tenantID, offspringID string) ([]Assessment, error)
}
