package bom

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Executor applies deductions to the local cache and the commerce platform.
type Executor struct {
	Stock    StockStore
	Platform Platform
	Log      *zap.Logger
}

// Execute writes the local cache first, then the platform. If the platform
// push fails (after retries) the local write is compensated before the error
// is returned, so a failed Execute leaves nothing behind.
func (e *Executor) Execute(ctx context.Context, accountID string, d Deduction) error {
	if err := e.Stock.SetStock(ctx, accountID, d.Component, d.NewStock); err != nil {
		return fmt.Errorf("update local stock %s: %w", d.Component, err)
	}
	if !d.Component.External() {
		return nil
	}
	if err := e.Platform.PushStock(ctx, accountID, d.Component, d.NewStock); err != nil {
		if lerr := e.addLocal(ctx, accountID, d.Component, d.Applied()); lerr != nil {
			e.Log.Error("failed to undo local stock write",
				zap.String("component", d.Component.String()), zap.Error(lerr))
		}
		return fmt.Errorf("push stock %s: %w", d.Component, err)
	}
	return nil
}

// Restore adds back what d actually removed. For platform components the
// current remote stock is fetched first so concurrent changes made since the
// deduction are kept, and the local cache is then aligned to the result.
func (e *Executor) Restore(ctx context.Context, accountID string, d Deduction) error {
	applied := d.Applied()
	if applied <= 0 {
		return nil
	}
	if !d.Component.External() {
		if err := e.addLocal(ctx, accountID, d.Component, applied); err != nil {
			return fmt.Errorf("restore local stock %s: %w", d.Component, err)
		}
		return nil
	}

	current, err := e.Platform.CurrentStock(ctx, accountID, d.Component)
	if err != nil {
		return fmt.Errorf("fetch stock %s: %w", d.Component, err)
	}
	restored := current + applied
	if err := e.Platform.PushStock(ctx, accountID, d.Component, restored); err != nil {
		return fmt.Errorf("restore stock %s: %w", d.Component, err)
	}
	// the platform holds the restored value; the next sync corrects the cache
	if err := e.Stock.SetStock(ctx, accountID, d.Component, restored); err != nil {
		e.Log.Warn("local cache not updated after restore",
			zap.String("component", d.Component.String()), zap.Int("stock", restored), zap.Error(err))
	}
	return nil
}

func (e *Executor) addLocal(ctx context.Context, accountID string, ref ComponentRef, delta int) error {
	c, err := e.Stock.GetComponent(ctx, accountID, ref)
	if err != nil {
		return err
	}
	return e.Stock.SetStock(ctx, accountID, ref, c.Stock+delta)
}
