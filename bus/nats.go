package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "ROSTER_QUEUES"
	subjectPrefix = "roster.queue."

	fetchWait  = 5 * time.Second
	ackWait    = 30 * time.Second
	maxDeliver = 10
)

// NATSBus implements Bus on a JetStream stream with one durable
// consumer per queue. MaxAckPending of 1 keeps handling serial per
// queue, which the router's read-modify-write on records relies on.
type NATSBus struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewNATSBus binds to the queue stream, creating it when absent.
func NewNATSBus(ctx context.Context, js jetstream.JetStream, logger *slog.Logger) (*NATSBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		stream, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        streamName,
			Description: "Roster durable queues",
			Subjects:    []string{subjectPrefix + ">"},
			MaxAge:      24 * time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", streamName, err)
		}
	}
	return &NATSBus{
		js:      js,
		stream:  stream,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

func (b *NATSBus) Publish(ctx context.Context, queue string, data []byte) error {
	if _, err := b.js.Publish(ctx, queueSubject(queue), data); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

func (b *NATSBus) RegisterCallback(ctx context.Context, queue string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.cancels[queue]; ok {
		return fmt.Errorf("queue %s already has a handler", queue)
	}

	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durableName(queue),
		FilterSubject: queueSubject(queue),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    maxDeliver,
		MaxAckPending: 1,
	})
	if err != nil {
		return fmt.Errorf("create consumer for %s: %w", queue, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	b.cancels[queue] = cancel
	go b.consumeLoop(subCtx, queue, consumer, handler)
	return nil
}

func (b *NATSBus) Deregister(queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cancel, ok := b.cancels[queue]
	if !ok {
		return fmt.Errorf("queue %s has no handler", queue)
	}
	cancel()
	delete(b.cancels, queue)
	return nil
}

// Close detaches every handler.
func (b *NATSBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for queue, cancel := range b.cancels {
		cancel()
		delete(b.cancels, queue)
	}
}

func (b *NATSBus) consumeLoop(ctx context.Context, queue string, consumer jetstream.Consumer, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("fetch failed", "queue", queue, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for msg := range msgs.Messages() {
			b.handle(ctx, queue, msg, handler)
		}
		if err := msgs.Error(); err != nil && ctx.Err() == nil {
			b.logger.Debug("fetch batch error", "queue", queue, "error", err)
		}
	}
}

func (b *NATSBus) handle(ctx context.Context, queue string, msg jetstream.Msg, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked", "queue", queue, "panic", r)
			if err := msg.Nak(); err != nil {
				b.logger.Warn("nak after panic", "queue", queue, "error", err)
			}
		}
	}()

	if err := handler(ctx, msg.Data()); err != nil {
		b.logger.Warn("handler failed, message will redeliver", "queue", queue, "error", err)
		if err := msg.Nak(); err != nil {
			b.logger.Warn("nak failed", "queue", queue, "error", err)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		b.logger.Warn("ack failed", "queue", queue, "error", err)
	}
}
