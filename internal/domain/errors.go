package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSkuNotFound     = errors.New("sku not found")
	ErrDuplicateCode   = errors.New("sku code already exists")
	ErrBlockNotFound   = errors.New("temporary block not found")
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidPrice    = errors.New("price must be positive with at most 2 decimal places")
	ErrInvalidExpiry   = errors.New("expires_at must be in the future")
	ErrCodeRequired    = errors.New("sku code required")
	ErrNameRequired    = errors.New("name required")
	ErrReasonRequired  = errors.New("reason required")
)

// InsufficientInventoryError is returned when a reservation asks for more
// than the SKU currently has available. Both figures are carried so the
// caller can adjust.
type InsufficientInventoryError struct {
	Available int
	Requested int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: available %d, requested %d", e.Available, e.Requested)
}

// InvalidTransitionError is returned when a convert or cancel targets a
// block that is no longer active.
type InvalidTransitionError struct {
	Current BlockStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("block is %s; only active blocks can be converted or cancelled", e.Current)
}
