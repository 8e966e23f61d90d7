package wallet

import (
	"errors"
	"fmt"
)

var (
	ErrWalletNotFound = errors.New("Wallet not found")
	ErrInvalidAmount  = errors.New("Amount must be greater than zero")
	ErrWalletFrozen   = errors.New("Wallet is frozen")
)

// InsufficientBalanceError is returned when a debit would overdraw the
// wallet. Balance carries the current balance so callers can retry
// correctly.
type InsufficientBalanceError struct {
	Balance float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Insufficient balance: %.2f available", e.Balance)
}

// DuplicateReferenceError flags a second transaction bearing the same
// reference, direction and amount for the same wallet: a duplicate
// submission, rejected rather than silently recorded twice.
type DuplicateReferenceError struct {
	Reference string
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("Duplicate transaction reference: %s", e.Reference)
}
