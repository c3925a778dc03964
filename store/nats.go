package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket holds every resource and record key.
const DefaultBucket = "ROSTER_STORE"

// NATSStore implements Store on a single JetStream KV bucket.
type NATSStore struct {
	kv     jetstream.KeyValue
	logger *slog.Logger
}

// NewNATSStore binds to the bucket, creating it when absent.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket string, logger *slog.Logger) (*NATSStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if logger == nil {
		logger = slog.Default()
	}
	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Roster resource and record storage",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &NATSStore{kv: kv, logger: logger}, nil
}

func (s *NATSStore) Put(ctx context.Context, key string, value []byte) error {
	encoded, err := encodeKey(key)
	if err != nil {
		return fmt.Errorf("%w: %s", err, key)
	}
	if _, err := s.kv.Put(ctx, encoded, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", err, key)
	}
	entry, err := s.kv.Get(ctx, encoded)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

func (s *NATSStore) GetPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, encoded := range keys {
		key := decodeKey(encoded)
		if !hasPrefix(key, prefix) {
			continue
		}
		entry, err := s.kv.Get(ctx, encoded)
		if err != nil {
			// Deleted between Keys and Get; skip.
			continue
		}
		entries = append(entries, Entry{Key: key, Value: entry.Value()})
	}
	return entries, nil
}

func (s *NATSStore) Delete(ctx context.Context, key string) (bool, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return false, fmt.Errorf("%w: %s", err, key)
	}
	if _, err := s.kv.Get(ctx, encoded); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := s.kv.Delete(ctx, encoded); err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

func (s *NATSStore) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return false, fmt.Errorf("%w: %s", err, key)
	}
	if _, err := s.kv.Create(ctx, encoded, value); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("create %s: %w", key, err)
	}
	return true, nil
}

// WatchPrefix subscribes to all keys under prefix. The initial replay is
// absorbed into a previous-value cache so live events carry PrevValue;
// callers seed their own state with GetPrefix. Establishment is retried
// with backoff.
func (s *NATSStore) WatchPrefix(ctx context.Context, prefix string) (Watcher, error) {
	pattern, err := watchPattern(prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, prefix)
	}

	var kw jetstream.KeyWatcher
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		var werr error
		kw, werr = s.kv.Watch(ctx, pattern)
		return werr
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", prefix, err)
	}

	w := &natsWatcher{
		kw:     kw,
		events: make(chan Event, 64),
		logger: s.logger,
	}
	go w.run(ctx)
	return w, nil
}

type natsWatcher struct {
	kw     jetstream.KeyWatcher
	events chan Event
	stop   sync.Once
	logger *slog.Logger
}

func (w *natsWatcher) Events() <-chan Event { return w.events }

func (w *natsWatcher) Stop() {
	w.stop.Do(func() {
		if err := w.kw.Stop(); err != nil {
			w.logger.Debug("stopping key watcher", "error", err)
		}
	})
}

func (w *natsWatcher) run(ctx context.Context) {
	defer close(w.events)

	prev := make(map[string][]byte)
	replaying := true

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case entry, ok := <-w.kw.Updates():
			if !ok {
				return
			}
			// A nil entry marks the end of the initial replay.
			if entry == nil {
				replaying = false
				continue
			}

			key := decodeKey(entry.Key())
			switch entry.Operation() {
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				ev := Event{Type: EventDelete, Key: key, PrevValue: prev[key]}
				delete(prev, key)
				if !replaying {
					w.deliver(ctx, ev)
				}
			default:
				ev := Event{Type: EventPut, Key: key, Value: entry.Value(), PrevValue: prev[key]}
				prev[key] = entry.Value()
				if !replaying {
					w.deliver(ctx, ev)
				}
			}
		}
	}
}

func (w *natsWatcher) deliver(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
