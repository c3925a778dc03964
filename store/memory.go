package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store with the same semantics as the
// NATS-backed adapter: atomic PutIfAbsent and prefix watches delivered
// in commit order. It backs unit tests.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers []*memoryWatcher
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	if _, err := encodeKey(key); err != nil {
		return fmt.Errorf("%w: %s", err, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.data[key]
	s.data[key] = append([]byte(nil), value...)
	s.notify(Event{Type: EventPut, Key: key, Value: s.data[key], PrevValue: prev})
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) GetPrefix(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0)
	for k := range s.data {
		if hasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Value: append([]byte(nil), s.data[k]...)})
	}
	return entries, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.data[key]
	if !ok {
		return false, nil
	}
	delete(s.data, key)
	s.notify(Event{Type: EventDelete, Key: key, PrevValue: prev})
	return true, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	if _, err := encodeKey(key); err != nil {
		return false, fmt.Errorf("%w: %s", err, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = append([]byte(nil), value...)
	s.notify(Event{Type: EventPut, Key: key, Value: s.data[key]})
	return true, nil
}

func (s *MemoryStore) WatchPrefix(ctx context.Context, prefix string) (Watcher, error) {
	w := &memoryWatcher{
		store:  s,
		prefix: prefix,
		events: make(chan Event, 1024),
	}
	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return w, nil
}

// notify runs with s.mu held, so watchers observe events in commit order.
func (s *MemoryStore) notify(ev Event) {
	for _, w := range s.watchers {
		if w.stopped || !hasPrefix(ev.Key, w.prefix) {
			continue
		}
		select {
		case w.events <- ev:
		default:
			// Watcher fell too far behind; drop rather than deadlock.
		}
	}
}

type memoryWatcher struct {
	store   *MemoryStore
	prefix  string
	events  chan Event
	stopped bool
	once    sync.Once
}

func (w *memoryWatcher) Events() <-chan Event { return w.events }

func (w *memoryWatcher) Stop() {
	w.once.Do(func() {
		w.store.mu.Lock()
		w.stopped = true
		for i, other := range w.store.watchers {
			if other == w {
				w.store.watchers = append(w.store.watchers[:i], w.store.watchers[i+1:]...)
				break
			}
		}
		w.store.mu.Unlock()
		close(w.events)
	})
}
