package shop

import (
	"context"
	"math/rand"

	"github.com/google/uuid"
)

// Store is the shared ledger behind the shop: stock items, orders with
// their line items, and the business date. Implementations must make every
// read-availability-then-write sequence atomic; two concurrent reservations
// both reading stale availability and both committing past the stock limit
// is the principal correctness risk of this system.
type Store interface {
	// Init pins the business date (normally wall-clock today) and purges
	// orders dated before it. Called once at boot.
	Init(ctx context.Context, today Date) error

	CurrentDate(ctx context.Context) (Date, error)

	ListStockItems(ctx context.Context) ([]StockItem, error)

	// Availability reports, per stock item, the date-wide commitment
	// excluding excludeOrderID. With a zero date nothing counts as
	// reserved.
	Availability(ctx context.Context, date Date, excludeOrderID string) ([]StockAvailability, error)

	// ListOrders returns orders dated on or after the current business
	// date, sorted by order date then creation time.
	ListOrders(ctx context.Context) ([]OrderWithItems, error)
	GetOrder(ctx context.Context, id string) (OrderWithItems, error)
	CreateOrder(ctx context.Context, customerName string, date Date) (Order, error)
	UpdateOrder(ctx context.Context, id, customerName string, date Date) (Order, error)
	// DeleteOrder removes the order and cascades to its line items. No
	// stock side effects: stock only moves during AdvanceDay.
	DeleteOrder(ctx context.Context, id string) error

	AddLineItem(ctx context.Context, orderID, stockItemID string, quantity int) (LineItem, error)
	UpdateLineItem(ctx context.Context, orderID, itemID, stockItemID string, quantity int) (LineItem, error)
	DeleteLineItem(ctx context.Context, orderID, itemID string) error
	// MoveLineItem re-parents the item onto targetOrderID, keeping its
	// identity, stock item and quantity.
	MoveLineItem(ctx context.Context, targetOrderID, itemID string) (LineItem, error)

	// AdvanceDay ships orders dated today (stock decremented, floored at
	// zero), purges them, replenishes every item independently and moves
	// the date forward one day. All or nothing.
	AdvanceDay(ctx context.Context) (AdvanceResult, error)
}

// ReplenishFunc returns the stock increase for one item during day
// advance; zero means no delivery arrived. Each item gets its own draw.
type ReplenishFunc func() int

const (
	deliveryChance = 0.6
	deliveryMin    = 5
	deliveryMax    = 30
)

// Replenisher is the production replenishment policy: with probability 0.6
// a delivery of 5..30 units, otherwise nothing.
func Replenisher(r *rand.Rand) ReplenishFunc {
	return func() int {
		if r.Float64() >= deliveryChance {
			return 0
		}
		return deliveryMin + r.Intn(deliveryMax-deliveryMin+1)
	}
}

// NoReplenish never delivers. Used by tests that assert on shipment math.
func NoReplenish() int { return 0 }

// DefaultCatalog is the stock seeded into an empty store.
func DefaultCatalog() []StockItem {
	seed := []struct {
		name   string
		onHand int
	}{
		{"Chrysanthemums", 22},
		{"Gerberas", 30},
		{"Lilies", 18},
		{"Orchids", 12},
		{"Peonies", 15},
		{"Roses", 25},
		{"Tulips", 40},
	}
	out := make([]StockItem, 0, len(seed))
	for _, s := range seed {
		out = append(out, StockItem{ID: uuid.NewString(), Name: s.name, OnHand: s.onHand})
	}
	return out
}
