package bom

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Planner turns order line items into component deductions. It never writes.
type Planner struct {
	BOMs  BOMRepository
	Stock StockStore
	Log   *zap.Logger
}

// Plan computes the deductions for a single line item against current stock.
func (p *Planner) Plan(ctx context.Context, accountID string, li orders.LineItem) ([]Deduction, error) {
	return p.plan(ctx, accountID, li, map[ComponentRef]int{})
}

// PlanOrder plans every line item in order. Stock is projected across line
// items, so two items sharing a component chain their previous/new values
// instead of both starting from the cached stock.
func (p *Planner) PlanOrder(ctx context.Context, accountID string, o orders.Order) ([]Deduction, error) {
	projected := map[ComponentRef]int{}
	var out []Deduction
	for _, li := range o.LineItems {
		ds, err := p.plan(ctx, accountID, li, projected)
		if err != nil {
			return nil, fmt.Errorf("plan line item %d: %w", li.ID, err)
		}
		out = append(out, ds...)
	}
	return out, nil
}

func (p *Planner) plan(ctx context.Context, accountID string, li orders.LineItem, projected map[ComponentRef]int) ([]Deduction, error) {
	if li.Quantity <= 0 || li.ProductID == 0 {
		return nil, nil
	}
	b, err := p.BOMs.FindBOM(ctx, accountID, li.ProductID, li.VariationID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !b.IsActive {
		return nil, nil
	}

	ordered := decimal.NewFromInt(int64(li.Quantity))
	var out []Deduction
	for _, it := range b.Items {
		if !it.IsActive {
			continue
		}
		ref, err := it.Ref()
		if err != nil {
			p.Log.Warn("skipping malformed bom item", zap.String("bom_id", b.ID), zap.Error(err))
			continue
		}
		comp, err := p.Stock.GetComponent(ctx, accountID, ref)
		if errors.Is(err, ErrNotFound) {
			p.Log.Warn("skipping bom item with missing component",
				zap.String("bom_id", b.ID), zap.String("component", ref.String()))
			continue
		}
		if err != nil {
			return nil, err
		}
		if comp.Variable {
			p.Log.Warn("skipping variable parent component, bom must reference a variation",
				zap.String("bom_id", b.ID), zap.String("component", ref.String()))
			continue
		}

		qty := int(it.Quantity.Mul(ordered).Ceil().IntPart())
		prev, seen := projected[ref]
		if !seen {
			prev = comp.Stock
		}
		next := max(0, prev-qty)
		projected[ref] = next

		out = append(out, Deduction{
			Component:     ref,
			Name:          comp.Name,
			Quantity:      qty,
			PreviousStock: prev,
			NewStock:      next,
			BOMID:         b.ID,
			LineItemID:    li.ID,
		})
	}
	return out, nil
}
