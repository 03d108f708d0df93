package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("kafka: producer closed")

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages and writes them from a single goroutine.
type Producer struct {
	w     writer
	topic string
	inbox chan kafka.Message
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
	log   *zap.Logger
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Error("kafka write failed", zap.String("topic", topic), zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return newProducer(w, topic, buf, log)
}

func newProducer(w writer, topic string, buf int, log *zap.Logger) *Producer {
	return &Producer{
		w:     w,
		topic: topic,
		inbox: make(chan kafka.Message, buf),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   log,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				p.flush()
				return
			case <-p.stop:
				p.flush()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

// Publish queues a message. It blocks while the buffer is full and fails once
// the producer has shut down.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	m := kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}
	select {
	case <-p.done:
		return ErrProducerClosed
	case <-p.stop:
		return ErrProducerClosed
	default:
	}
	select {
	case p.inbox <- m:
		return nil
	case <-p.done:
		return ErrProducerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes what is buffered and closes the writer.
func (p *Producer) Close() { p.once.Do(func() { close(p.stop) }) }

func (p *Producer) WaitClosed() { <-p.done }

func (p *Producer) flush() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			if err := p.w.Close(); err != nil {
				p.log.Warn("kafka writer close failed", zap.String("topic", p.topic), zap.Error(err))
			}
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Error("kafka write failed", zap.String("topic", p.topic), zap.Error(err))
	}
}
