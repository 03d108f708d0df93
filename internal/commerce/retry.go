package commerce

import (
	"context"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/metrics"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is plain exponential backoff without jitter: BaseDelay,
// 2*BaseDelay, 4*BaseDelay... for at most Attempts calls.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// attempts run out. A timeout only stops the loop when ctx itself is done.
// The last error is returned unwrapped.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err != nil && (ctx.Err() != nil || !Retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backoff(ctx), func(error, time.Duration) {
		metrics.PlatformRetries.Inc()
	})
}
