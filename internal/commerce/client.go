// Package commerce talks to the store's commerce platform (WooCommerce REST v3).
package commerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Credentials struct {
	StoreURL       string
	ConsumerKey    string
	ConsumerSecret string
}

type Product struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	ManageStock   bool    `json:"manage_stock"`
	StockQuantity *int    `json:"stock_quantity"`
	Variations    []int64 `json:"variations,omitempty"`
}

type Variation struct {
	ID            int64 `json:"id"`
	ParentID      int64 `json:"parent_id"`
	ManageStock   bool  `json:"manage_stock"`
	StockQuantity *int  `json:"stock_quantity"`
}

// Stock returns the quantity, treating an unmanaged (null) stock as zero.
func (p Product) Stock() int {
	if p.StockQuantity == nil {
		return 0
	}
	return *p.StockQuantity
}

func (v Variation) Stock() int {
	if v.StockQuantity == nil {
		return 0
	}
	return *v.StockQuantity
}

type StockUpdate struct {
	ManageStock   bool `json:"manage_stock"`
	StockQuantity int  `json:"stock_quantity"`
}

type Client interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	UpdateProduct(ctx context.Context, id int64, u StockUpdate) (*Product, error)
	GetVariations(ctx context.Context, parentID int64) ([]Variation, error)
	UpdateVariation(ctx context.Context, parentID, id int64, u StockUpdate) (*Variation, error)
}

// APIError is a non-2xx platform response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("platform %d", e.StatusCode)
}

var ErrNotFound = errors.New("platform: not found")

// Retryable reports whether err is worth another attempt: network failures
// and per-request timeouts, 408, 429 and 5xx. Not-found, validation and auth
// errors are final. Whether the caller's context has ended is checked by Retry.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= 500:
			return true
		}
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	return true
}
