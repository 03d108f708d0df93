// Package inventory is the order-sync job: it reacts to order status changes
// by consuming or reversing BOM component stock.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
	kafkax "github.com/ariefcatur/go-bom-consumption/internal/kafka"
	"github.com/ariefcatur/go-bom-consumption/internal/logger"
	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/ariefcatur/go-bom-consumption/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer is what the job needs from the engine.
type Consumer interface {
	ConsumeOrderComponents(ctx context.Context, accountID string, o orders.Order) (bom.ConsumptionResult, error)
	ReverseOrderConsumption(ctx context.Context, accountID string, o orders.Order) (bom.ReversalResult, error)
}

type Service struct {
	Engine      Consumer
	Redis       redis.Cmdable
	ServiceName string
	Log         *zap.Logger
}

// HandleOrderStatusChanged is installed as the order topic handler. An event
// id is remembered only after it was handled, so a failed event is retried
// on redelivery.
func (s *Service) HandleOrderStatusChanged(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, err := redisx.Exists(ctx, s.Redis, dkey); err == nil && seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		s.Log.Warn("dropping event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if err := s.Dispatch(ctx, p.AccountID, p.Order); err != nil {
		return err
	}

	if err := s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err(); err != nil {
		s.Log.Warn("event dedup key not written", zap.String("event_id", env.EventID), zap.Error(err))
	}
	return nil
}

// ErrReversalSkipped means another reversal held the order lock or no lock
// backend was reachable.
var ErrReversalSkipped = errors.New("reversal skipped: order lock not acquired")

// Dispatch routes one order to consumption or reversal by its current status.
// Other statuses are ignored.
func (s *Service) Dispatch(ctx context.Context, accountID string, o orders.Order) error {
	log := s.Log.With(logger.Order(accountID, o.ID)...)
	switch {
	case o.Status.Consumable():
		res, err := s.Engine.ConsumeOrderComponents(ctx, accountID, o)
		if err != nil {
			return fmt.Errorf("consume order %d: %w", o.ID, err)
		}
		log.Debug("consumption handled", zap.String("state", string(res.State)), zap.String("reason", res.Reason))
	case o.Status.Reversible():
		res, err := s.Engine.ReverseOrderConsumption(ctx, accountID, o)
		if err != nil {
			return fmt.Errorf("reverse order %d: %w", o.ID, err)
		}
		// reversal only touches COMPLETED entries, so a redelivery picks up what is left
		if res.Skipped {
			return fmt.Errorf("reverse order %d: %w", o.ID, ErrReversalSkipped)
		}
		if len(res.Errors) > 0 {
			log.Warn("reversal incomplete", zap.Strings("errors", res.Errors))
			return fmt.Errorf("reverse order %d: %d components not restored", o.ID, len(res.Errors))
		}
		log.Debug("reversal handled", zap.Int("reversed", res.ReversedCount))
	}
	return nil
}
