package ownership

import (
	"errors"
	"fmt"
)

var (
	ErrAssetNotFound   = errors.New("Asset not found")
	ErrTokenNotFound   = errors.New("Ownership token not found")
	ErrInvalidFraction = errors.New("Fraction must be greater than 0 and at most 100")
	ErrInvalidAmount   = errors.New("Investment amount must be greater than zero")
	ErrTokenRevoked    = errors.New("Token has been revoked")

	// ErrTxHashConflict marks a re-confirmation carrying a different tx
	// hash than the recorded one; logged, never overwritten.
	ErrTxHashConflict = errors.New("Token already confirmed with a different transaction hash")
)

// InsufficientRemainingOwnershipError is returned when a mint would push the
// asset's allocated ownership past 100%. Remaining tells the caller how much
// is still available.
type InsufficientRemainingOwnershipError struct {
	Remaining float64
}

func (e *InsufficientRemainingOwnershipError) Error() string {
	return fmt.Sprintf("Insufficient remaining ownership: %.2f%% available", e.Remaining)
}
