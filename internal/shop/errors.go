package shop

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrStockItemNotFound = errors.New("stock item not found")
	ErrLineItemNotFound  = errors.New("line item not found")

	// ErrDuplicateItem: a stock item may appear at most once per order.
	// Callers edit the existing line instead of adding a second one.
	ErrDuplicateItem = errors.New("stock item already present in this order")

	ErrPastDate = errors.New("order date cannot be before the current date")
)

// ValidationError reports missing or malformed input.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// InsufficientStockError discloses the availability math behind a rejected
// reservation.
type InsufficientStockError struct {
	StockItemID string
	OnHand      int
	Reserved    int
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: on hand %d, reserved %d, available %d, requested %d",
		e.OnHand, e.Reserved, e.Available, e.Requested)
}
