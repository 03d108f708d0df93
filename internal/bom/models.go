package bom

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid ledger transition")
	ErrInvalidItem       = errors.New("invalid bom item")
)

type ComponentKind string

const (
	KindProduct   ComponentKind = "product"
	KindVariation ComponentKind = "variation"
	KindInternal  ComponentKind = "internal"
)

// ComponentRef identifies one stock-bearing entity. Which ids are set
// depends on Kind: ProductID for products, ProductID+VariationID for
// variations, InternalID for internal-only products.
type ComponentRef struct {
	Kind        ComponentKind `json:"kind"`
	ProductID   int64         `json:"product_id,omitempty"`
	VariationID int64         `json:"variation_id,omitempty"`
	InternalID  string        `json:"internal_id,omitempty"`
}

func ProductRef(id int64) ComponentRef { return ComponentRef{Kind: KindProduct, ProductID: id} }

func VariationRef(parentID, id int64) ComponentRef {
	return ComponentRef{Kind: KindVariation, ProductID: parentID, VariationID: id}
}

func InternalRef(id string) ComponentRef { return ComponentRef{Kind: KindInternal, InternalID: id} }

// ParentRef returns the ref of a BOM's own parent product, which is itself a
// component of any multi-level BOM that references it.
func ParentRef(productID, variationID int64) ComponentRef {
	if variationID != 0 {
		return VariationRef(productID, variationID)
	}
	return ProductRef(productID)
}

func (r ComponentRef) String() string {
	switch r.Kind {
	case KindVariation:
		return "variation:" + strconv.FormatInt(r.ProductID, 10) + "/" + strconv.FormatInt(r.VariationID, 10)
	case KindInternal:
		return "internal:" + r.InternalID
	}
	return "product:" + strconv.FormatInt(r.ProductID, 10)
}

// External reports whether the component is mirrored on the commerce platform.
func (r ComponentRef) External() bool { return r.Kind != KindInternal }

type BOM struct {
	ID          string
	AccountID   string
	ProductID   int64
	VariationID int64 // 0 = no variation
	Name        string
	IsActive    bool
	Items       []Item
}

// Item is one recipe line. Exactly one component reference is set:
// InternalProductID, or ComponentProductID (optionally with ComponentVariationID).
type Item struct {
	ID                   string
	BOMID                string
	Position             int
	ComponentProductID   *int64
	ComponentVariationID *int64
	InternalProductID    *string
	Quantity             decimal.Decimal
	WasteFactor          decimal.Decimal // cost-time overage only, never deducted
	UnitCost             decimal.Decimal
	IsActive             bool
}

func (it Item) Validate() error {
	hasInternal := it.InternalProductID != nil && *it.InternalProductID != ""
	hasProduct := it.ComponentProductID != nil && *it.ComponentProductID != 0
	switch {
	case hasInternal && (hasProduct || it.ComponentVariationID != nil):
		return fmt.Errorf("%w %s: both internal and external component", ErrInvalidItem, it.ID)
	case !hasInternal && !hasProduct:
		return fmt.Errorf("%w %s: no component reference", ErrInvalidItem, it.ID)
	case !it.Quantity.IsPositive():
		return fmt.Errorf("%w %s: quantity must be positive", ErrInvalidItem, it.ID)
	}
	return nil
}

// Ref resolves the component with precedence internal -> variation -> product.
func (it Item) Ref() (ComponentRef, error) {
	if err := it.Validate(); err != nil {
		return ComponentRef{}, err
	}
	if it.InternalProductID != nil && *it.InternalProductID != "" {
		return InternalRef(*it.InternalProductID), nil
	}
	if it.ComponentVariationID != nil && *it.ComponentVariationID != 0 {
		return VariationRef(*it.ComponentProductID, *it.ComponentVariationID), nil
	}
	return ProductRef(*it.ComponentProductID), nil
}

// Component is the local cache view of a stock-bearing entity.
type Component struct {
	Ref      ComponentRef
	Name     string
	Stock    int
	Variable bool // variable parent product: no singular stock value
	UnitCost decimal.Decimal
}

// Deduction is one planned or executed stock change.
type Deduction struct {
	Component     ComponentRef `json:"component"`
	Name          string       `json:"name"`
	Quantity      int          `json:"quantity"`
	PreviousStock int          `json:"previous_stock"`
	NewStock      int          `json:"new_stock"`
	BOMID         string       `json:"bom_id,omitempty"`
	LineItemID    int64        `json:"line_item_id,omitempty"`
}

// Applied is the amount actually removed, which differs from Quantity when
// the stock floor clamped the deduction.
func (d Deduction) Applied() int { return d.PreviousStock - d.NewStock }

type LedgerStatus string

const (
	StatusExecuted   LedgerStatus = "EXECUTED"
	StatusCompleted  LedgerStatus = "COMPLETED"
	StatusRolledBack LedgerStatus = "ROLLED_BACK"
	StatusReversed   LedgerStatus = "REVERSED"
)

var validNext = map[LedgerStatus]map[LedgerStatus]bool{
	StatusExecuted:   {StatusCompleted: true, StatusRolledBack: true},
	StatusCompleted:  {StatusReversed: true},
	StatusRolledBack: {},
	StatusReversed:   {},
}

func CanTransition(from, to LedgerStatus) bool {
	return validNext[from][to]
}

type LedgerEntry struct {
	ID            uuid.UUID
	AccountID     string
	OrderID       int64
	Component     ComponentRef
	ComponentName string
	Quantity      int
	PreviousStock int
	NewStock      int
	Status        LedgerStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewLedgerEntry(accountID string, orderID int64, d Deduction) LedgerEntry {
	now := time.Now().UTC()
	return LedgerEntry{
		ID:            uuid.New(),
		AccountID:     accountID,
		OrderID:       orderID,
		Component:     d.Component,
		ComponentName: d.Name,
		Quantity:      d.Quantity,
		PreviousStock: d.PreviousStock,
		NewStock:      d.NewStock,
		Status:        StatusExecuted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e LedgerEntry) Deduction() Deduction {
	return Deduction{
		Component:     e.Component,
		Name:          e.ComponentName,
		Quantity:      e.Quantity,
		PreviousStock: e.PreviousStock,
		NewStock:      e.NewStock,
	}
}

type OrderKey struct {
	AccountID string
	OrderID   int64
}
