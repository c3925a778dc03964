package bus

import (
	"context"
	"log/slog"
	"sync"
)

const memoryMaxDeliver = 5

// MemoryBus is an in-process Bus with the same contract as the NATS
// adapter: per-queue publish order, serial handling, redelivery on
// handler error. It backs unit tests.
type MemoryBus struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
	logger *slog.Logger
	wg     sync.WaitGroup
}

type memoryQueue struct {
	messages chan []byte
	cancel   context.CancelFunc
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		queues: make(map[string]*memoryQueue),
		logger: slog.Default(),
	}
}

func (b *MemoryBus) queue(name string) *memoryQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{messages: make(chan []byte, 1024)}
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBus) Publish(_ context.Context, queue string, data []byte) error {
	b.mu.Lock()
	q := b.queue(queue)
	b.mu.Unlock()
	q.messages <- append([]byte(nil), data...)
	return nil
}

func (b *MemoryBus) RegisterCallback(ctx context.Context, queue string, handler Handler) error {
	b.mu.Lock()
	q := b.queue(queue)
	if q.cancel != nil {
		b.mu.Unlock()
		return ErrHandlerRegistered
	}
	subCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-subCtx.Done():
				return
			case data := <-q.messages:
				b.deliver(subCtx, queue, data, handler)
			}
		}
	}()
	return nil
}

// deliver retries a failing handler a bounded number of times, matching
// the broker's redelivery behavior.
func (b *MemoryBus) deliver(ctx context.Context, queue string, data []byte, handler Handler) {
	for attempt := 1; attempt <= memoryMaxDeliver; attempt++ {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = ErrHandlerPanicked
					b.logger.Error("handler panicked", "queue", queue, "panic", r)
				}
			}()
			return handler(ctx, data)
		}()
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("handler failed", "queue", queue, "attempt", attempt, "error", err)
	}
}

func (b *MemoryBus) Deregister(queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue]
	if !ok || q.cancel == nil {
		return ErrNoHandler
	}
	q.cancel()
	q.cancel = nil
	return nil
}
