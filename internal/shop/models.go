package shop

import "time"

// StockItem is one kind of flower in the ledger. Stock only moves during
// day advance (shipment decrement, delivery increment), never on order
// mutations.
type StockItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	OnHand int    `json:"onHand"`
}

// StockAvailability is the per-item availability projection for one date:
// available = onHand - reserved.
type StockAvailability struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OnHand    int    `json:"onHand"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

type Order struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"customerName"`
	OrderDate    Date      `json:"orderDate"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LineItem references a stock item with a quantity. At most one line item
// per stock item within an order.
type LineItem struct {
	ID            string `json:"id"`
	OrderID       string `json:"orderId"`
	StockItemID   string `json:"stockItemId"`
	StockItemName string `json:"stockItemName,omitempty"`
	Quantity      int    `json:"quantity"`
}

type OrderWithItems struct {
	Order
	Items []LineItem `json:"items"`
}

type ShippedStock struct {
	StockItemID string `json:"stockItemId"`
	Quantity    int    `json:"quantity"`
}

// AdvanceResult describes one day-advance transition.
type AdvanceResult struct {
	PreviousDate Date
	CurrentDate  Date
	Shipped      []ShippedStock
	PurgedOrders []string
}
