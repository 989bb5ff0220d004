package shop

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated = "OrderCreated"
	EventOrderUpdated = "OrderUpdated"
	EventOrderDeleted = "OrderDeleted"
	EventDayAdvanced  = "DayAdvanced"
)

type Envelope struct {
	EventID       string          `json:"event_id"` // uuid
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g. "flower-shop-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

type OrderEventPayload struct {
	OrderID      string `json:"order_id"`
	CustomerName string `json:"customer_name,omitempty"`
	OrderDate    Date   `json:"order_date"`
}

type DayAdvancedPayload struct {
	PreviousDate Date           `json:"previous_date"`
	CurrentDate  Date           `json:"current_date"`
	Shipped      []ShippedStock `json:"shipped,omitempty"`
	PurgedOrders []string       `json:"purged_orders,omitempty"`
}
