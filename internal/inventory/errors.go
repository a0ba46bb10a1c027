package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientStock matches any InsufficientStockError via errors.Is.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrContention is returned when every conditional write lost its race.
	ErrContention = errors.New("inventory contention")
)

// InsufficientStockError reports the sku that could not cover the request.
type InsufficientStockError struct {
	SKUID     int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("sku %d: requested %d, available %d", e.SKUID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
