// Package lock provides per-order mutual exclusion backed by Redis, with a
// Postgres advisory lock used only while Redis is unreachable.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Backend string

const (
	BackendNone     Backend = ""
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
)

// Lock is the outcome of Acquire. A zero Lock (Acquired=false) is safe to Release.
type Lock struct {
	Key      string
	Backend  Backend
	Acquired bool

	token   string
	release func(context.Context) error
}

// AdvisoryLocker grants a session-level advisory lock. The returned release
// func must be called exactly once when ok is true.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (release func(context.Context) error, ok bool, err error)
}

var ErrUnavailable = errors.New("lock: no backend available")

// compare-and-delete: only the holder's token may release the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient is the subset of *redis.Client the primary backend uses.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

type Provider struct {
	Redis    RedisClient
	Fallback AdvisoryLocker
	Log      *zap.Logger
}

func NewProvider(rdb RedisClient, fallback AdvisoryLocker, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{Redis: rdb, Fallback: fallback, Log: log}
}

// Acquire tries Redis first. Contention is reported as Acquired=false with a
// nil error. Both backends failing also yields Acquired=false, with the
// joined error, so callers fail closed.
func (p *Provider) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	out := Lock{Key: key}

	primaryErr := ErrUnavailable
	if p.Redis != nil {
		token := uuid.NewString()
		acquired, err := p.Redis.SetNX(ctx, key, token, ttl).Result()
		if err == nil {
			if !acquired {
				return out, nil
			}
			out.Acquired, out.Backend, out.token = true, BackendRedis, token
			return out, nil
		}
		primaryErr = err
	}

	if p.Fallback == nil {
		return out, fmt.Errorf("acquire %s: %w", key, primaryErr)
	}
	p.Log.Warn("redis lock unavailable, using advisory lock",
		zap.String("key", key), zap.Error(primaryErr))

	release, acquired, err := p.Fallback.TryAdvisoryLock(ctx, HashKey(key))
	if err != nil {
		return out, fmt.Errorf("acquire %s: %w", key, errors.Join(primaryErr, err))
	}
	if !acquired {
		return out, nil
	}
	out.Acquired, out.Backend, out.release = true, BackendPostgres, release
	return out, nil
}

// Release frees whichever backend granted l. Releasing an unacquired lock is a no-op.
func (p *Provider) Release(ctx context.Context, l Lock) error {
	if !l.Acquired {
		return nil
	}
	switch l.Backend {
	case BackendRedis:
		if err := releaseScript.Run(ctx, p.Redis, []string{l.Key}, l.token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", l.Key, err)
		}
		return nil
	case BackendPostgres:
		if l.release == nil {
			return nil
		}
		if err := l.release(ctx); err != nil {
			return fmt.Errorf("release %s: %w", l.Key, err)
		}
		return nil
	}
	return fmt.Errorf("release %s: unknown backend %q", l.Key, l.Backend)
}

// HashKey maps a lock key onto the 32-bit space used for advisory locks.
func HashKey(key string) int64 {
	return int64(int32(xxhash.Sum64String(key)))
}
