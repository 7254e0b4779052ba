package offspring

import "github.com/BreederHQ/server/internal/domain/errs"

var placementTransitions = map[string][]string{
	StatusAvailable: {StatusReserved, StatusRetained, StatusDeceased},
	StatusReserved:  {StatusAvailable, StatusPlaced, StatusDeceased},
	StatusPlaced:    {StatusDeceased},
	StatusRetained:  {StatusAvailable, StatusDeceased},
}

// CanTransition reports whether placement may move from -> to.
func CanTransition(from, to string) bool {
	for _, next := range placementTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// applyPlacement mutates o for the move to status. The buyer must already be verified.
func applyPlacement(o *Offspring, status, buyerID string, now timeFn) error {
	if !CanTransition(o.PlacementStatus, status) {
		return errs.Transition("offspring", o.PlacementStatus, status)
	}
	switch status {
	case StatusReserved:
		if buyerID == "" {
			return ErrBuyerRequired
		}
		o.BuyerID = buyerID
	case StatusAvailable:
		o.BuyerID = ""
	case StatusPlaced:
		t := now()
		o.PlacedAt = &t
	}
	o.PlacementStatus = status
	return nil
}
