package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message is done and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       reader
	workers int
	log     *zap.Logger

	retryBase time.Duration
	retryMax  time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log, retryBase: 200 * time.Millisecond, retryMax: 30 * time.Second}
}

// workerFor pins a partition to one worker. A partition's messages are then
// handled and committed strictly in offset order, and the producer's key
// balancer keeps every event of an order on one partition.
func workerFor(partition, workers int) int {
	if partition <= 0 || workers <= 1 {
		return 0
	}
	return partition % workers
}

// Start blocks until ctx is cancelled or the reader fails. In-flight
// messages are finished before it returns.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if !c.handle(ctx, id, m, h) {
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.Warn("offset commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i, queues[i])
	}
	stop := func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case queues[workerFor(m.Partition, c.workers)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// handle retries m in place until h succeeds. It reports false only once ctx
// is done; the offset then stays uncommitted and m is fetched again after
// restart or rebalance.
func (c *Consumer) handle(ctx context.Context, id int, m kafka.Message, h Handler) bool {
	if ctx.Err() != nil {
		return false
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxInterval = c.retryMax
	b.MaxElapsedTime = 0
	b.Reset()

	err := backoff.RetryNotify(func() error {
		return h(ctx, m)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.log.Error("message handler failed",
			zap.Int("worker", id), zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
			zap.Duration("retry_in", wait), zap.Error(err))
	})
	return err == nil
}
