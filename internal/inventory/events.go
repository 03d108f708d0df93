package inventory

import (
	"context"
	"strconv"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
	kafkax "github.com/ariefcatur/go-bom-consumption/internal/kafka"
	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// Events publishes stock.consumed / stock.reversed envelopes. It satisfies
// bom.Events; publish failures are logged, never returned.
type Events struct {
	Consumed    Publisher
	Reversed    Publisher
	ServiceName string
	Log         *zap.Logger
}

func (e *Events) StockConsumed(ctx context.Context, accountID string, orderID int64, ds []bom.Deduction) {
	comps := make([]orders.ComponentQty, 0, len(ds))
	for _, d := range ds {
		comps = append(comps, orders.ComponentQty{
			ComponentType: string(d.Component.Kind),
			ComponentID:   componentID(d.Component),
			Quantity:      d.Quantity,
			NewStock:      d.NewStock,
		})
	}
	e.publish(ctx, e.Consumed, orders.EventStockConsumed, accountID, orderID,
		orders.StockConsumedPayload{AccountID: accountID, OrderID: orderID, Components: comps})
}

func (e *Events) StockReversed(ctx context.Context, accountID string, orderID int64, res bom.ReversalResult) {
	e.publish(ctx, e.Reversed, orders.EventStockReversed, accountID, orderID,
		orders.StockReversedPayload{AccountID: accountID, OrderID: orderID, ReversedCount: res.ReversedCount, Errors: res.Errors})
}

func (e *Events) publish(ctx context.Context, p Publisher, eventType, accountID string, orderID int64, payload any) {
	if p == nil {
		return
	}
	key := orders.PartitionKey(accountID, orderID)
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.ServiceName,
		CorrelationID: string(key),
		Payload:       kafkax.MustMarshal(payload),
	}
	if err := p.Publish(ctx, key, kafkax.MustMarshal(ev), kafkax.Headers(eventType, 1)...); err != nil {
		e.Log.Warn("event not published", zap.String("event_type", eventType), zap.String("correlation_id", ev.CorrelationID), zap.Error(err))
	}
}

func componentID(r bom.ComponentRef) string {
	switch r.Kind {
	case bom.KindInternal:
		return r.InternalID
	case bom.KindVariation:
		return strconv.FormatInt(r.VariationID, 10)
	}
	return strconv.FormatInt(r.ProductID, 10)
}
