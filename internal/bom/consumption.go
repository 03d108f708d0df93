package bom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/logger"
	"github.com/ariefcatur/go-bom-consumption/internal/metrics"
	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/ariefcatur/go-bom-consumption/internal/redisx"
	"go.uber.org/zap"
)

type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateLocked     State = "LOCKED"
	StatePlanned    State = "PLANNED"
	StateExecuting  State = "EXECUTING"
	StateCascading  State = "CASCADING"
	StateCompleted  State = "COMPLETED"
	StateSkipped    State = "SKIPPED"
	StateFailed     State = "FAILED"
	StateRolledBack State = "ROLLED_BACK"
)

const (
	SkipStatus   = "status not eligible"
	SkipConsumed = "already consumed"
	SkipLedger   = "ledger has entries"
	SkipLocked   = "lock held elsewhere"
)

type ConsumptionResult struct {
	State      State       `json:"state"`
	Skipped    bool        `json:"skipped"`
	Reason     string      `json:"reason,omitempty"`
	Deductions []Deduction `json:"deductions,omitempty"`
}

// Engine runs consumption, reversal and ledger rollback for orders.
type Engine struct {
	Planner  *Planner
	Executor *Executor
	Ledger   Ledger
	Markers  Markers
	Locks    Locker
	Cascade  *Cascader
	Events   Events // optional
	LockTTL  time.Duration
	Log      *zap.Logger
}

func (e *Engine) lockTTL() time.Duration {
	if e.LockTTL > 0 {
		return e.LockTTL
	}
	return redisx.TTLLock
}

func skipped(reason string) ConsumptionResult {
	metrics.Consumptions.WithLabelValues(string(StateSkipped)).Inc()
	return ConsumptionResult{State: StateSkipped, Skipped: true, Reason: reason}
}

// ConsumeOrderComponents deducts BOM component stock for a fulfilled order,
// at most once per order.
func (e *Engine) ConsumeOrderComponents(ctx context.Context, accountID string, o orders.Order) (ConsumptionResult, error) {
	log := e.Log.With(logger.Order(accountID, o.ID)...)

	if !o.Status.Consumable() {
		return skipped(SkipStatus), nil
	}

	consumed, err := e.Markers.IsConsumed(ctx, accountID, o.ID)
	if err != nil {
		log.Warn("consumed marker unavailable, falling back to ledger", zap.Error(err))
	}
	if consumed {
		return skipped(SkipConsumed), nil
	}
	if res, done, err := e.ledgerDedup(ctx, log, accountID, o.ID); done || err != nil {
		return res, err
	}

	lk, err := e.Locks.Acquire(ctx, redisx.ConsumeLockKey(accountID, o.ID), e.lockTTL())
	if err != nil {
		log.Error("order lock unavailable, skipping", zap.Error(err))
	}
	if !lk.Acquired {
		return skipped(SkipLocked), nil
	}
	defer func() {
		if err := e.Locks.Release(context.WithoutCancel(ctx), lk); err != nil {
			log.Warn("order lock release failed", zap.Error(err))
		}
	}()

	// the previous holder may have finished between the first check and Acquire
	if res, done, err := e.ledgerDedup(ctx, log, accountID, o.ID); done || err != nil {
		return res, err
	}

	plan, err := e.Planner.PlanOrder(ctx, accountID, o)
	if err != nil {
		metrics.Consumptions.WithLabelValues(string(StateFailed)).Inc()
		return ConsumptionResult{State: StateFailed}, fmt.Errorf("plan order %d: %w", o.ID, err)
	}
	if len(plan) == 0 {
		metrics.Consumptions.WithLabelValues(string(StateCompleted)).Inc()
		return ConsumptionResult{State: StateCompleted}, nil
	}

	if err := e.Markers.TrackPending(ctx, accountID, o.ID, plan); err != nil {
		log.Warn("pending marker not written, ledger sweep will cover", zap.Error(err))
	}

	executed := make([]LedgerEntry, 0, len(plan))
	for _, d := range plan {
		if err := e.Executor.Execute(ctx, accountID, d); err != nil {
			log.Error("deduction failed, rolling back order",
				zap.String("component", d.Component.String()), zap.Int("quantity", d.Quantity), zap.Error(err))
			return e.failConsumption(ctx, log, accountID, o.ID, executed, nil, err)
		}
		entry := NewLedgerEntry(accountID, o.ID, d)
		if err := e.Ledger.Append(ctx, entry); err != nil {
			log.Error("ledger append failed, rolling back order",
				zap.String("component", d.Component.String()), zap.Error(err))
			return e.failConsumption(ctx, log, accountID, o.ID, executed, &d, err)
		}
		executed = append(executed, entry)
		metrics.Deductions.Inc()
	}

	if err := e.Cascade.CascadeExcept(ctx, accountID, modified(plan), soldProducts(o)); err != nil {
		metrics.CascadeFailures.Inc()
		log.Warn("cascade finished with failures", zap.Error(err))
	}

	if err := e.Markers.MarkConsumed(ctx, accountID, o.ID); err != nil {
		log.Warn("consumed marker not written", zap.Error(err))
	}
	if err := e.Markers.ClearPending(ctx, accountID, o.ID); err != nil {
		log.Warn("pending marker not cleared", zap.Error(err))
	}

	res := ConsumptionResult{State: StateCompleted, Deductions: plan}
	n, err := e.Ledger.Transition(ctx, accountID, o.ID, StatusExecuted, StatusCompleted)
	if err != nil {
		metrics.Consumptions.WithLabelValues(string(StateCompleted)).Inc()
		return res, fmt.Errorf("finalize ledger for order %d: %w", o.ID, err)
	}
	if int(n) != len(executed) {
		log.Warn("ledger finalize count mismatch", zap.Int64("transitioned", n), zap.Int("executed", len(executed)))
	}

	metrics.Consumptions.WithLabelValues(string(StateCompleted)).Inc()
	log.Info("order components consumed", zap.Int("deductions", len(plan)))
	if e.Events != nil {
		e.Events.StockConsumed(ctx, accountID, o.ID, plan)
	}
	return res, nil
}

// ledgerDedup is the durable dedup layer. COMPLETED entries refresh the fast
// marker. EXECUTED-only entries mean another worker is mid-flight or crashed;
// the order is skipped without a marker so recovery can still roll it back.
func (e *Engine) ledgerDedup(ctx context.Context, log *zap.Logger, accountID string, orderID int64) (ConsumptionResult, bool, error) {
	entries, err := e.Ledger.FindByOrder(ctx, accountID, orderID, StatusCompleted, StatusExecuted)
	if err != nil {
		metrics.Consumptions.WithLabelValues(string(StateFailed)).Inc()
		return ConsumptionResult{State: StateFailed}, true, fmt.Errorf("ledger dedup for order %d: %w", orderID, err)
	}
	if len(entries) == 0 {
		return ConsumptionResult{}, false, nil
	}
	for _, en := range entries {
		if en.Status == StatusCompleted {
			if err := e.Markers.MarkConsumed(ctx, accountID, orderID); err != nil {
				log.Warn("consumed marker not refreshed", zap.Error(err))
			}
			break
		}
	}
	return skipped(SkipLedger), true, nil
}

// failConsumption compensates everything executed so far. unrecorded is a
// deduction that was applied but never made it into the ledger.
func (e *Engine) failConsumption(ctx context.Context, log *zap.Logger, accountID string, orderID int64, executed []LedgerEntry, unrecorded *Deduction, cause error) (ConsumptionResult, error) {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if unrecorded != nil {
		if err := e.Executor.Restore(ctx, accountID, *unrecorded); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := e.rollback(ctx, accountID, orderID, executed, "execution"); err != nil {
		errs = append(errs, err)
	}

	if rbErr := errors.Join(errs...); rbErr != nil {
		// leave the pending marker so the sweep retries the remainder
		log.Error("rollback incomplete", zap.Error(rbErr))
		metrics.Consumptions.WithLabelValues(string(StateFailed)).Inc()
		return ConsumptionResult{State: StateFailed}, fmt.Errorf("consume order %d: %w (rollback: %v)", orderID, cause, rbErr)
	}
	if err := e.Markers.ClearPending(ctx, accountID, orderID); err != nil {
		log.Warn("pending marker not cleared", zap.Error(err))
	}
	metrics.Consumptions.WithLabelValues(string(StateRolledBack)).Inc()
	return ConsumptionResult{State: StateRolledBack}, fmt.Errorf("consume order %d: %w", orderID, cause)
}

// rollback restores each EXECUTED entry and marks the restored ones
// ROLLED_BACK. Entries whose restore failed stay EXECUTED for the sweep.
func (e *Engine) rollback(ctx context.Context, accountID string, orderID int64, entries []LedgerEntry, cause string) (int, error) {
	var errs []error
	var done []LedgerEntry
	for _, en := range entries {
		if err := e.Executor.Restore(ctx, accountID, en.Deduction()); err != nil {
			errs = append(errs, err)
			continue
		}
		done = append(done, en)
	}
	if len(done) > 0 {
		ids := entryIDs(done)
		n, err := e.Ledger.TransitionEntries(ctx, ids, StatusExecuted, StatusRolledBack)
		if err != nil {
			errs = append(errs, fmt.Errorf("mark rolled back: %w", err))
		} else {
			metrics.RolledBack.WithLabelValues(cause).Add(float64(n))
		}
	}
	if len(done) > 0 || len(errs) > 0 {
		e.Log.Info("order rollback",
			zap.String("account_id", accountID), zap.Int64("order_id", orderID),
			zap.String("cause", cause), zap.Int("restored", len(done)), zap.Int("failed", len(entries)-len(done)))
	}
	return len(done), errors.Join(errs...)
}

func soldProducts(o orders.Order) []ComponentRef {
	out := make([]ComponentRef, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		out = append(out, ParentRef(li.ProductID, li.VariationID))
	}
	return out
}

func modified(plan []Deduction) []ComponentRef {
	seen := make(map[ComponentRef]bool, len(plan))
	out := make([]ComponentRef, 0, len(plan))
	for _, d := range plan {
		if !seen[d.Component] {
			seen[d.Component] = true
			out = append(out, d.Component)
		}
	}
	return out
}
