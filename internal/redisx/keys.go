package redisx

import (
	"fmt"
	"time"
)

const (
	// Order consumption lock: lock:bom:consume:{account}:{order}
	KeyConsumeLock = "lock:bom:consume:%s:%d"

	// Reversal lock, separate namespace: lock:bom:reversal:{account}:{order}
	KeyReversalLock = "lock:bom:reversal:%s:%d"

	// Deduction plan in flight: bom:pending:{account}:{order} -> plan json
	KeyPending = "bom:pending:%s:%d"

	// Order already consumed: bom:consumed:{account}:{order} -> "1"
	KeyConsumed = "bom:consumed:%s:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	PendingPattern = "bom:pending:*"
)

var (
	TTLLock     = 5 * time.Minute
	TTLPending  = 30 * time.Minute
	TTLConsumed = 24 * time.Hour
	TTLDedup    = 48 * time.Hour
)

func ConsumeLockKey(accountID string, orderID int64) string {
	return fmt.Sprintf(KeyConsumeLock, accountID, orderID)
}

func ReversalLockKey(accountID string, orderID int64) string {
	return fmt.Sprintf(KeyReversalLock, accountID, orderID)
}

func PendingKey(accountID string, orderID int64) string {
	return fmt.Sprintf(KeyPending, accountID, orderID)
}

func ConsumedKey(accountID string, orderID int64) string {
	return fmt.Sprintf(KeyConsumed, accountID, orderID)
}
