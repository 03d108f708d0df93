package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
	"github.com/ariefcatur/go-bom-consumption/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Markers keeps the pending and consumed breadcrumbs in Redis. They are a
// cache over the ledger and may be lost at any time.
type Markers struct {
	Redis       redis.Cmdable
	PendingTTL  time.Duration
	ConsumedTTL time.Duration
}

func NewMarkers(rdb redis.Cmdable, pendingTTL, consumedTTL time.Duration) *Markers {
	if pendingTTL <= 0 {
		pendingTTL = redisx.TTLPending
	}
	if consumedTTL <= 0 {
		consumedTTL = redisx.TTLConsumed
	}
	return &Markers{Redis: rdb, PendingTTL: pendingTTL, ConsumedTTL: consumedTTL}
}

func (m *Markers) IsConsumed(ctx context.Context, accountID string, orderID int64) (bool, error) {
	return redisx.Exists(ctx, m.Redis, redisx.ConsumedKey(accountID, orderID))
}

func (m *Markers) MarkConsumed(ctx context.Context, accountID string, orderID int64) error {
	return m.Redis.Set(ctx, redisx.ConsumedKey(accountID, orderID), "1", m.ConsumedTTL).Err()
}

func (m *Markers) ClearConsumed(ctx context.Context, accountID string, orderID int64) error {
	return m.Redis.Del(ctx, redisx.ConsumedKey(accountID, orderID)).Err()
}

type pendingPlan struct {
	TrackedAt  time.Time       `json:"tracked_at"`
	Deductions []bom.Deduction `json:"deductions"`
}

func (m *Markers) TrackPending(ctx context.Context, accountID string, orderID int64, plan []bom.Deduction) error {
	b, err := json.Marshal(pendingPlan{TrackedAt: time.Now().UTC(), Deductions: plan})
	if err != nil {
		return err
	}
	return m.Redis.Set(ctx, redisx.PendingKey(accountID, orderID), b, m.PendingTTL).Err()
}

func (m *Markers) ClearPending(ctx context.Context, accountID string, orderID int64) error {
	return m.Redis.Del(ctx, redisx.PendingKey(accountID, orderID)).Err()
}

// PendingPlan returns the plan recorded for an in-flight order, for operators.
func (m *Markers) PendingPlan(ctx context.Context, accountID string, orderID int64) ([]bom.Deduction, error) {
	b, err := m.Redis.Get(ctx, redisx.PendingKey(accountID, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, bom.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p pendingPlan
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return p.Deductions, nil
}

func (m *Markers) ListPending(ctx context.Context) ([]bom.OrderKey, error) {
	var out []bom.OrderKey
	iter := m.Redis.Scan(ctx, 0, redisx.PendingPattern, 200).Iterator()
	for iter.Next(ctx) {
		if k, ok := parsePendingKey(iter.Val()); ok {
			out = append(out, k)
		}
	}
	return out, iter.Err()
}

// parsePendingKey reverses redisx.KeyPending.
func parsePendingKey(key string) (bom.OrderKey, bool) {
	rest, ok := strings.CutPrefix(key, "bom:pending:")
	if !ok {
		return bom.OrderKey{}, false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return bom.OrderKey{}, false
	}
	orderID, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return bom.OrderKey{}, false
	}
	return bom.OrderKey{AccountID: rest[:i], OrderID: orderID}, true
}
