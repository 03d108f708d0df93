package bom

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-bom-consumption/internal/logger"
	"github.com/ariefcatur/go-bom-consumption/internal/metrics"
	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/ariefcatur/go-bom-consumption/internal/redisx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReversalResult struct {
	ReversedCount int      `json:"reversed_count"`
	Errors        []string `json:"errors,omitempty"`
	Skipped       bool     `json:"skipped,omitempty"`
}

// ReverseOrderConsumption gives back the stock of a cancelled or refunded
// order. Only COMPLETED entries are reversed, so repeated calls are no-ops.
func (e *Engine) ReverseOrderConsumption(ctx context.Context, accountID string, o orders.Order) (ReversalResult, error) {
	log := e.Log.With(logger.Order(accountID, o.ID)...)

	entries, err := e.Ledger.FindByOrder(ctx, accountID, o.ID, StatusCompleted)
	if err != nil {
		return ReversalResult{}, fmt.Errorf("load ledger for order %d: %w", o.ID, err)
	}
	if len(entries) == 0 {
		return ReversalResult{}, nil
	}

	lk, err := e.Locks.Acquire(ctx, redisx.ReversalLockKey(accountID, o.ID), e.lockTTL())
	if err != nil {
		log.Error("reversal lock unavailable, skipping", zap.Error(err))
	}
	if !lk.Acquired {
		return ReversalResult{Skipped: true}, nil
	}
	defer func() {
		if err := e.Locks.Release(context.WithoutCancel(ctx), lk); err != nil {
			log.Warn("reversal lock release failed", zap.Error(err))
		}
	}()

	// reload under the lock; a concurrent reversal may have taken some entries
	entries, err = e.Ledger.FindByOrder(ctx, accountID, o.ID, StatusCompleted)
	if err != nil {
		return ReversalResult{}, fmt.Errorf("load ledger for order %d: %w", o.ID, err)
	}

	var res ReversalResult
	affected := make([]ComponentRef, 0, len(entries))
	for _, en := range entries {
		if err := e.Executor.Restore(ctx, accountID, en.Deduction()); err != nil {
			log.Error("reversal failed for component", zap.String("component", en.Component.String()), zap.Error(err))
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		n, err := e.Ledger.TransitionEntries(ctx, []uuid.UUID{en.ID}, StatusCompleted, StatusReversed)
		if err != nil {
			// stock is already back; report it so an operator can fix the entry
			log.Error("reversed entry not marked", zap.String("entry_id", en.ID.String()), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("mark entry %s reversed: %v", en.ID, err))
			continue
		}
		if n == 1 {
			res.ReversedCount++
			affected = append(affected, en.Component)
		}
	}
	metrics.Reversals.Add(float64(res.ReversedCount))

	if len(res.Errors) == 0 {
		if err := e.Markers.ClearConsumed(ctx, accountID, o.ID); err != nil {
			log.Warn("consumed marker not cleared", zap.Error(err))
		}
	}
	if len(affected) > 0 {
		if err := e.Cascade.CascadeExcept(ctx, accountID, affected, soldProducts(o)); err != nil {
			metrics.CascadeFailures.Inc()
			log.Warn("cascade finished with failures", zap.Error(err))
		}
	}

	log.Info("order consumption reversed", zap.Int("reversed", res.ReversedCount), zap.Int("errors", len(res.Errors)))
	if e.Events != nil {
		e.Events.StockReversed(ctx, accountID, o.ID, res)
	}
	return res, nil
}

func entryIDs(entries []LedgerEntry) []uuid.UUID {
	ids := make([]uuid.UUID, len(entries))
	for i, en := range entries {
		ids[i] = en.ID
	}
	return ids
}
