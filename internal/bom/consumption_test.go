package bom

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/ariefcatur/go-bom-consumption/internal/redisx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeKit(t *testing.T) {
	f := newFixture(t)
	f.boms.boms = append(f.boms.boms,
		bomOf("gift", 200, productItem("g1", 1, "1")),
		bomOf("bundle", 300, productItem("b1", 100, "1")),
	)
	ctx := context.Background()

	res, err := f.engine.ConsumeOrderComponents(ctx, testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.False(t, res.Skipped)
	assert.Len(t, res.Deductions, 2)

	assert.Equal(t, 4, f.stock.stock(refA))
	assert.Equal(t, 2, f.stock.stock(refB))
	assert.Equal(t, 4, f.platform.get(refA))
	assert.Equal(t, 2, f.platform.get(refB))

	assert.Equal(t, []LedgerStatus{StatusCompleted, StatusCompleted}, f.ledger.statuses(1))
	assert.True(t, f.markers.isConsumed(1))
	assert.False(t, f.markers.isPending(1))
	assert.Empty(t, f.locks.held)

	// the sold kit is left to the platform; other users of A and the kit are re-derived
	assert.NotContains(t, f.platform.pushes, refKit)
	assert.Equal(t, 5, f.platform.get(refKit))
	assert.Equal(t, 5, f.stock.stock(refKit))
	assert.Equal(t, 4, f.platform.get(ProductRef(200)))
	assert.Equal(t, 5, f.platform.get(ProductRef(300)))
	assert.Equal(t, []int64{1}, f.events.consumed)
}

func TestConsumeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// completed without a prior processing event still consumes
	_, err := f.engine.ConsumeOrderComponents(ctx, testAccount, kitOrder(1, orders.StatusCompleted, 3))
	require.NoError(t, err)

	for _, st := range []orders.Status{orders.StatusProcessing, orders.StatusCompleted} {
		res, err := f.engine.ConsumeOrderComponents(ctx, testAccount, kitOrder(1, st, 3))
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, SkipConsumed, res.Reason)
	}
	assert.Equal(t, 4, f.stock.stock(refA))
	assert.Len(t, f.ledger.entries, 2)
	assert.Len(t, f.events.consumed, 1)
}

func TestConsumeIneligibleStatus(t *testing.T) {
	f := newFixture(t)

	for _, st := range []orders.Status{orders.StatusPending, orders.StatusOnHold, orders.StatusCancelled, orders.StatusFailed} {
		res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, st, 3))
		require.NoError(t, err)
		assert.Equal(t, SkipStatus, res.Reason, st)
	}
	assert.Empty(t, f.ledger.entries)
	assert.Equal(t, 10, f.stock.stock(refA))
}

func TestConsumeLedgerDedupRefreshesMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.ConsumeOrderComponents(ctx, testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.NoError(t, err)

	// marker expired
	require.NoError(t, f.markers.ClearConsumed(ctx, testAccount, 1))

	res, err := f.engine.ConsumeOrderComponents(ctx, testAccount, kitOrder(1, orders.StatusCompleted, 3))
	require.NoError(t, err)
	assert.Equal(t, SkipLedger, res.Reason)
	assert.True(t, f.markers.isConsumed(1))
	assert.Equal(t, 4, f.stock.stock(refA))
}

func TestConsumeExecutedEntriesSkipWithoutMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Append(ctx, NewLedgerEntry(testAccount, 1, Deduction{Component: refA, Quantity: 6, PreviousStock: 10, NewStock: 4})))

	res, err := f.engine.ConsumeOrderComponents(ctx, testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.NoError(t, err)
	assert.Equal(t, SkipLedger, res.Reason)
	assert.False(t, f.markers.isConsumed(1))
}

func TestConsumeMarkerUnavailableFallsBackToLedger(t *testing.T) {
	f := newFixture(t)
	f.markers.failRead = errBoom

	res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)

	res, err = f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.NoError(t, err)
	assert.Equal(t, SkipLedger, res.Reason)
}

func TestConsumeLockHeld(t *testing.T) {
	f := newFixture(t)
	f.locks.held[redisx.ConsumeLockKey(testAccount, 1)] = true

	res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.NoError(t, err)
	assert.Equal(t, SkipLocked, res.Reason)
	assert.Empty(t, f.ledger.entries)
	assert.True(t, f.locks.held[redisx.ConsumeLockKey(testAccount, 1)], "foreign lock untouched")
}

func TestConsumeLockUnavailableFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.locks.err = errBoom

	res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.NoError(t, err)
	assert.Equal(t, SkipLocked, res.Reason)
	assert.Equal(t, 10, f.stock.stock(refA))
}

func TestConsumeEmptyPlan(t *testing.T) {
	f := newFixture(t)
	o := orders.Order{ID: 2, Status: orders.StatusProcessing, LineItems: []orders.LineItem{{ProductID: 404, Quantity: 1}}}

	res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, o)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Empty(t, res.Deductions)
	assert.False(t, f.markers.isConsumed(2))
	assert.Empty(t, f.ledger.entries)
}

func TestConsumeRollsBackOnPushFailure(t *testing.T) {
	f := newFixture(t)
	f.platform.failPush[refB] = errBoom

	res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateRolledBack, res.State)

	assert.Equal(t, 10, f.stock.stock(refA))
	assert.Equal(t, 10, f.platform.get(refA))
	assert.Equal(t, 5, f.stock.stock(refB), "local write undone")
	assert.Equal(t, 5, f.platform.get(refB))

	assert.Equal(t, []LedgerStatus{StatusRolledBack}, f.ledger.statuses(1))
	assert.False(t, f.markers.isConsumed(1))
	assert.False(t, f.markers.isPending(1))
	assert.Empty(t, f.events.consumed)
}

func TestConsumeRollsBackUnrecordedDeduction(t *testing.T) {
	f := newFixture(t)
	f.ledger.failAppendAt = 2

	res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.Error(t, err)
	assert.Equal(t, StateRolledBack, res.State)

	assert.Equal(t, 10, f.platform.get(refA))
	assert.Equal(t, 5, f.platform.get(refB))
	assert.Equal(t, 5, f.stock.stock(refB))
	assert.Equal(t, []LedgerStatus{StatusRolledBack}, f.ledger.statuses(1))
}

func TestConsumeIncompleteRollbackLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.platform.failPush[refB] = errBoom
	f.platform.failGet = errBoom

	res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)

	assert.Equal(t, []LedgerStatus{StatusExecuted}, f.ledger.statuses(1))
	assert.True(t, f.markers.isPending(1))
	assert.False(t, f.markers.isConsumed(1))
	assert.Empty(t, f.locks.held)
}

func TestConsumeFinalizeFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.failFinalize = errBoom

	res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.Error(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.True(t, f.markers.isConsumed(1))
	assert.Equal(t, []LedgerStatus{StatusExecuted, StatusExecuted}, f.ledger.statuses(1))
}

func TestConsumeCascadeFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.boms.boms = append(f.boms.boms, bomOf("gift", 200, productItem("g1", 1, "1")))
	f.platform.failPush[ProductRef(200)] = errBoom

	res, err := f.engine.ConsumeOrderComponents(context.Background(), testAccount, kitOrder(1, orders.StatusProcessing, 3))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []LedgerStatus{StatusCompleted, StatusCompleted}, f.ledger.statuses(1))
}
