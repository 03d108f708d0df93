package bom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/redisx"
	"go.uber.org/zap"
)

const (
	DefaultStaleAfter = 30 * time.Minute
	defaultBatch      = 500
)

var errOrderBusy = errors.New("order lock held")

type RecoveryReport struct {
	MarkersScanned   int `json:"markers_scanned"`
	StaleMarkers     int `json:"stale_markers"`
	OrdersRolledBack int `json:"orders_rolled_back"`
	EntriesRestored  int `json:"entries_restored"`
	OrdersFinalized  int `json:"orders_finalized"`
	Busy             int `json:"busy"`
	Failures         int `json:"failures"`
}

// Recovery rolls back orders whose consumption crashed mid-flight. The ledger
// decides what happened; stock values are never compared.
type Recovery struct {
	Engine     *Engine
	StaleAfter time.Duration
	BatchSize  int
	Log        *zap.Logger
}

func (r *Recovery) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep, err := r.Sweep(ctx)
			if err != nil {
				r.Log.Error("recovery sweep incomplete", zap.Error(err))
			}
			if rep != (RecoveryReport{}) {
				r.Log.Info("recovery sweep", zap.Any("report", rep))
			}
		}
	}
}

// Sweep runs both phases once. Per-order failures are counted and logged;
// only a failed scan is returned as an error.
func (r *Recovery) Sweep(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport
	var scanErrs []error

	// phase 1: pending markers
	keys, err := r.Engine.Markers.ListPending(ctx)
	if err != nil {
		scanErrs = append(scanErrs, fmt.Errorf("list pending markers: %w", err))
	}
	for _, k := range keys {
		rep.MarkersScanned++
		log := r.Log.With(zap.String("account_id", k.AccountID), zap.Int64("order_id", k.OrderID))

		consumed, err := r.Engine.Markers.IsConsumed(ctx, k.AccountID, k.OrderID)
		if err != nil {
			rep.Failures++
			log.Error("recovery: consumed marker check failed", zap.Error(err))
			continue
		}
		if consumed {
			if err := r.Engine.Markers.ClearPending(ctx, k.AccountID, k.OrderID); err != nil {
				log.Warn("recovery: stale pending marker not cleared", zap.Error(err))
			}
			rep.StaleMarkers++
			continue
		}

		n, err := r.rollbackOrder(ctx, k)
		if errors.Is(err, errOrderBusy) {
			rep.Busy++
			continue
		}
		if err != nil {
			rep.Failures++
			log.Error("recovery: rollback failed", zap.Error(err))
			continue
		}
		if err := r.Engine.Markers.ClearPending(ctx, k.AccountID, k.OrderID); err != nil {
			log.Warn("recovery: pending marker not cleared", zap.Error(err))
		}
		rep.EntriesRestored += n
		if n > 0 {
			rep.OrdersRolledBack++
		}
	}

	// phase 2: EXECUTED entries that lost their marker
	stale, err := r.Engine.Ledger.FindStaleExecuted(ctx, time.Now().Add(-r.staleAfter()), r.batch())
	if err != nil {
		scanErrs = append(scanErrs, fmt.Errorf("find stale ledger entries: %w", err))
	}
	for _, k := range stale {
		log := r.Log.With(zap.String("account_id", k.AccountID), zap.Int64("order_id", k.OrderID))

		consumed, err := r.Engine.Markers.IsConsumed(ctx, k.AccountID, k.OrderID)
		if err != nil {
			rep.Failures++
			log.Error("recovery: consumed marker check failed", zap.Error(err))
			continue
		}
		if consumed {
			// crashed between the consumed marker and the ledger finalize
			if _, err := r.Engine.Ledger.Transition(ctx, k.AccountID, k.OrderID, StatusExecuted, StatusCompleted); err != nil {
				rep.Failures++
				log.Error("recovery: finalize failed", zap.Error(err))
				continue
			}
			rep.OrdersFinalized++
			continue
		}

		n, err := r.rollbackOrder(ctx, k)
		if errors.Is(err, errOrderBusy) {
			rep.Busy++
			continue
		}
		if err != nil {
			rep.Failures++
			log.Error("recovery: rollback failed", zap.Error(err))
			continue
		}
		rep.EntriesRestored += n
		if n > 0 {
			rep.OrdersRolledBack++
		}
	}

	return rep, errors.Join(scanErrs...)
}

// rollbackOrder takes the consumption lock so a live worker is never rolled
// back underneath, then compensates every EXECUTED entry of the order.
func (r *Recovery) rollbackOrder(ctx context.Context, k OrderKey) (int, error) {
	e := r.Engine
	lk, err := e.Locks.Acquire(ctx, redisx.ConsumeLockKey(k.AccountID, k.OrderID), e.lockTTL())
	if err != nil {
		return 0, err
	}
	if !lk.Acquired {
		return 0, errOrderBusy
	}
	defer func() {
		if err := e.Locks.Release(context.WithoutCancel(ctx), lk); err != nil {
			r.Log.Warn("recovery: lock release failed", zap.Error(err))
		}
	}()

	entries, err := e.Ledger.FindByOrder(ctx, k.AccountID, k.OrderID, StatusExecuted)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return e.rollback(ctx, k.AccountID, k.OrderID, entries, "recovery")
}

func (r *Recovery) staleAfter() time.Duration {
	if r.StaleAfter > 0 {
		return r.StaleAfter
	}
	return DefaultStaleAfter
}

func (r *Recovery) batch() int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	return defaultBatch
}
