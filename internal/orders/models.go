package orders

import "time"

type Order struct {
	ID        int64      `json:"id"`
	Status    Status     `json:"status"`
	LineItems []LineItem `json:"line_items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LineItem mirrors the store's line item. VariationID is 0 for simple products.
type LineItem struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	VariationID int64  `json:"variation_id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
}
