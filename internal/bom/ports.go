package bom

import (
	"context"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/lock"
	"github.com/google/uuid"
)

// BOMRepository reads recipes. FindBOM returns ErrNotFound when the sold
// product has no active BOM.
type BOMRepository interface {
	FindBOM(ctx context.Context, accountID string, productID, variationID int64) (*BOM, error)
	FindParents(ctx context.Context, accountID string, ref ComponentRef) ([]Parent, error)
}

// Parent is a BOM that lists a given component among its active items.
type Parent struct {
	BOMID       string
	ProductID   int64
	VariationID int64
}

// StockStore is the local cache of component stock.
type StockStore interface {
	GetComponent(ctx context.Context, accountID string, ref ComponentRef) (*Component, error)
	SetStock(ctx context.Context, accountID string, ref ComponentRef, stock int) error
}

// Platform reads and overwrites stock on the external commerce platform.
type Platform interface {
	CurrentStock(ctx context.Context, accountID string, ref ComponentRef) (int, error)
	PushStock(ctx context.Context, accountID string, ref ComponentRef, stock int) error
}

type Ledger interface {
	Append(ctx context.Context, e LedgerEntry) error
	// Transition moves every entry of the order in status from to status to.
	Transition(ctx context.Context, accountID string, orderID int64, from, to LedgerStatus) (int64, error)
	TransitionEntries(ctx context.Context, ids []uuid.UUID, from, to LedgerStatus) (int64, error)
	FindByOrder(ctx context.Context, accountID string, orderID int64, statuses ...LedgerStatus) ([]LedgerEntry, error)
	FindStaleExecuted(ctx context.Context, olderThan time.Time, limit int) ([]OrderKey, error)
}

// Markers are the Redis breadcrumbs layered over the ledger.
type Markers interface {
	IsConsumed(ctx context.Context, accountID string, orderID int64) (bool, error)
	MarkConsumed(ctx context.Context, accountID string, orderID int64) error
	ClearConsumed(ctx context.Context, accountID string, orderID int64) error
	TrackPending(ctx context.Context, accountID string, orderID int64, plan []Deduction) error
	ClearPending(ctx context.Context, accountID string, orderID int64) error
	ListPending(ctx context.Context) ([]OrderKey, error)
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lock, error)
	Release(ctx context.Context, l lock.Lock) error
}

// InventorySync recomputes a BOM parent's effective stock and pushes it.
type InventorySync interface {
	SyncEffectiveStock(ctx context.Context, accountID string, productID, variationID int64) (int, error)
}

// Events is notified after an order is consumed or reversed. Optional.
type Events interface {
	StockConsumed(ctx context.Context, accountID string, orderID int64, deductions []Deduction)
	StockReversed(ctx context.Context, accountID string, orderID int64, res ReversalResult)
}
