package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockConsumed      = "StockConsumed"
	EventStockReversed      = "StockReversed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-sync"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually account:order
	Payload       json.RawMessage `json:"payload"`
}

type OrderStatusChangedPayload struct {
	AccountID      string `json:"account_id"`
	PreviousStatus Status `json:"previous_status,omitempty"`
	Order          Order  `json:"order"`
}

type ComponentQty struct {
	ComponentType string `json:"component_type"`
	ComponentID   string `json:"component_id"`
	Quantity      int    `json:"quantity"`
	NewStock      int    `json:"new_stock"`
}

type StockConsumedPayload struct {
	AccountID  string         `json:"account_id"`
	OrderID    int64          `json:"order_id"`
	Components []ComponentQty `json:"components"`
}

type StockReversedPayload struct {
	AccountID     string   `json:"account_id"`
	OrderID       int64    `json:"order_id"`
	ReversedCount int      `json:"reversed_count"`
	Errors        []string `json:"errors,omitempty"`
}
