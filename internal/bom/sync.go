package bom

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Syncer derives a kit's sellable stock from its components.
type Syncer struct {
	BOMs     BOMRepository
	Stock    StockStore
	Platform Platform
	Log      *zap.Logger
}

// SyncEffectiveStock sets the parent's stock to the number of whole kits the
// components can build: min(floor(stock / recipeQty)) over active items.
// Missing components and variable parents count as zero.
func (s *Syncer) SyncEffectiveStock(ctx context.Context, accountID string, productID, variationID int64) (int, error) {
	b, err := s.BOMs.FindBOM(ctx, accountID, productID, variationID)
	if err != nil {
		return 0, err
	}

	effective := -1
	for _, it := range b.Items {
		if !it.IsActive {
			continue
		}
		ref, err := it.Ref()
		if err != nil {
			continue
		}
		avail := 0
		comp, err := s.Stock.GetComponent(ctx, accountID, ref)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return 0, err
		case !comp.Variable && comp.Stock > 0:
			avail = int(decimal.NewFromInt(int64(comp.Stock)).Div(it.Quantity).Floor().IntPart())
		}
		if effective < 0 || avail < effective {
			effective = avail
		}
	}
	if effective < 0 {
		return 0, nil
	}

	parent := ParentRef(productID, variationID)
	if err := s.Stock.SetStock(ctx, accountID, parent, effective); err != nil {
		return 0, fmt.Errorf("update local stock %s: %w", parent, err)
	}
	if err := s.Platform.PushStock(ctx, accountID, parent, effective); err != nil {
		return 0, fmt.Errorf("push stock %s: %w", parent, err)
	}
	s.Log.Debug("bom effective stock synced",
		zap.String("account_id", accountID), zap.String("parent", parent.String()), zap.Int("stock", effective))
	return effective, nil
}
