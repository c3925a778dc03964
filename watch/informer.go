package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rosterlabs/roster/resource"
)

// ListFunc seeds an informer cache from the registry.
type ListFunc[R any] func(ctx context.Context) ([]R, error)

// Informer maintains a local cache of one resource kind, seeded by a
// List and kept current by the raw watcher. The watcher goroutine is
// the only writer; readers take snapshots.
type Informer[R any] struct {
	typ    resource.ResourceType
	list   ListFunc[R]
	name   func(R) string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]R

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int

	watcher *Watcher
	reg     Registration
}

func NewInformer[R any](typ resource.ResourceType, list ListFunc[R], name func(R) string, logger *slog.Logger) *Informer[R] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Informer[R]{
		typ:       typ,
		list:      list,
		name:      name,
		logger:    logger,
		cache:     make(map[string]R),
		listeners: make(map[int]Listener),
	}
}

// Setup seeds the cache and attaches to the watcher. Call before the
// watcher starts delivering, or accept that the seed may race a write
// (the cache reconverges either way because events carry full
// documents).
func (i *Informer[R]) Setup(ctx context.Context, watcher *Watcher) error {
	resources, err := i.list(ctx)
	if err != nil {
		return fmt.Errorf("seed %s informer: %w", i.typ, err)
	}
	i.mu.Lock()
	for _, r := range resources {
		i.cache[i.name(r)] = r
	}
	i.mu.Unlock()

	i.watcher = watcher
	i.reg = watcher.AddListener(i.handle)
	return nil
}

// Teardown detaches from the watcher.
func (i *Informer[R]) Teardown() {
	if i.watcher != nil {
		i.watcher.RemoveListener(i.reg)
	}
}

// handle runs on the watcher goroutine.
func (i *Informer[R]) handle(event resource.ResourceEvent) error {
	if event.ResourceType != i.typ {
		return nil
	}

	switch event.EventType {
	case resource.EventPut:
		var r R
		if err := resource.Decode(event.Resource, &r); err != nil {
			i.logger.Warn("informer could not decode resource", "event", event.String(), "error", err)
			return nil
		}
		i.mu.Lock()
		i.cache[event.Name] = r
		i.mu.Unlock()
	case resource.EventDelete:
		i.mu.Lock()
		delete(i.cache, event.Name)
		i.mu.Unlock()
	}

	i.notify(event)
	return nil
}

// ListResources returns a snapshot of the cache.
func (i *Informer[R]) ListResources() []R {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]R, 0, len(i.cache))
	for _, r := range i.cache {
		out = append(out, r)
	}
	return out
}

// Get returns the cached resource by name.
func (i *Informer[R]) Get(name string) (R, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	r, ok := i.cache[name]
	return r, ok
}

// AddEventListener attaches a listener invoked after the cache has
// been updated for each event of this kind. The listener contract
// matches the watcher's: ErrListenerDisconnected removes, other errors
// log and retain.
func (i *Informer[R]) AddEventListener(l Listener) Registration {
	i.lmu.Lock()
	defer i.lmu.Unlock()
	id := i.nextID
	i.nextID++
	i.listeners[id] = l
	return Registration{id: id}
}

func (i *Informer[R]) RemoveEventListener(reg Registration) {
	i.lmu.Lock()
	defer i.lmu.Unlock()
	delete(i.listeners, reg.id)
}

func (i *Informer[R]) notify(event resource.ResourceEvent) {
	i.lmu.Lock()
	ids := make([]int, 0, len(i.listeners))
	listeners := make([]Listener, 0, len(i.listeners))
	for id, l := range i.listeners {
		ids = append(ids, id)
		listeners = append(listeners, l)
	}
	i.lmu.Unlock()

	for n, l := range listeners {
		if err := l(event); err != nil {
			if isDisconnected(err) {
				i.RemoveEventListener(Registration{id: ids[n]})
				continue
			}
			i.logger.Warn("informer listener failed", "event", event.String(), "error", err)
		}
	}
}
