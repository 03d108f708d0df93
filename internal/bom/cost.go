package bom

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type CostLine struct {
	Component ComponentRef    `json:"component"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	Waste     decimal.Decimal `json:"waste_factor"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Total     decimal.Decimal `json:"total"`
}

type CostBreakdown struct {
	BOMID string          `json:"bom_id"`
	Lines []CostLine      `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// Cost prices one unit of the BOM parent. The waste factor is applied here
// and only here: unitCost * qty * (1 + waste).
func (p *Planner) Cost(ctx context.Context, accountID string, productID, variationID int64) (*CostBreakdown, error) {
	b, err := p.BOMs.FindBOM(ctx, accountID, productID, variationID)
	if err != nil {
		return nil, err
	}

	out := &CostBreakdown{BOMID: b.ID, Total: decimal.Zero}
	one := decimal.NewFromInt(1)
	for _, it := range b.Items {
		if !it.IsActive {
			continue
		}
		ref, err := it.Ref()
		if err != nil {
			continue
		}
		line := CostLine{Component: ref, Quantity: it.Quantity, Waste: it.WasteFactor, UnitCost: it.UnitCost}
		comp, err := p.Stock.GetComponent(ctx, accountID, ref)
		switch {
		case err == nil:
			line.Name = comp.Name
			if line.UnitCost.IsZero() {
				line.UnitCost = comp.UnitCost
			}
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		line.Total = line.UnitCost.Mul(it.Quantity).Mul(one.Add(it.WasteFactor))
		out.Lines = append(out.Lines, line)
		out.Total = out.Total.Add(line.Total)
	}
	return out, nil
}
