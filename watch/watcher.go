// Package watch converts raw store events into typed resource events
// and keeps per-kind informer caches current. The raw watcher owns a
// single goroutine; listener dispatch happens synchronously on it, so
// cache mutation needs no cross-event locking.
package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// Listener receives resource events in commit order. Returning
// resource.ErrListenerDisconnected removes the listener; any other
// error is logged and the listener is retained.
type Listener func(event resource.ResourceEvent) error

// Registration identifies an attached listener for removal.
type Registration struct {
	id int
}

// Watcher is the long-lived subscription against the resource root.
type Watcher struct {
	store  store.Store
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int

	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewWatcher(s store.Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:     s,
		logger:    logger,
		listeners: make(map[int]Listener),
		stopped:   make(chan struct{}),
	}
}

// Start establishes the prefix watch and begins dispatching. It returns
// once the subscription is live; events flow on a background goroutine
// until the context ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	sw, err := w.store.WatchPrefix(watchCtx, resource.ResourceRoot)
	if err != nil {
		cancel()
		return err
	}

	go w.run(sw)
	return nil
}

// Stop tears the watcher down; it returns after the event loop exits.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.stopped
}

func (w *Watcher) AddListener(l Listener) Registration {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = l
	return Registration{id: id}
}

func (w *Watcher) RemoveListener(reg Registration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.listeners, reg.id)
}

func (w *Watcher) run(sw store.Watcher) {
	defer close(w.stopped)
	defer sw.Stop()

	for raw := range sw.Events() {
		event, err := translate(raw)
		if err != nil {
			w.logger.Warn("dropping unparseable store event", "key", raw.Key, "error", err)
			continue
		}
		w.dispatch(event)
	}
}

func (w *Watcher) dispatch(event resource.ResourceEvent) {
	w.mu.Lock()
	ids := make([]int, 0, len(w.listeners))
	listeners := make([]Listener, 0, len(w.listeners))
	for id, l := range w.listeners {
		ids = append(ids, id)
		listeners = append(listeners, l)
	}
	w.mu.Unlock()

	for i, l := range listeners {
		if err := l(event); err != nil {
			if isDisconnected(err) {
				w.RemoveListener(Registration{id: ids[i]})
				w.logger.Debug("listener disconnected", "event", event.String())
				continue
			}
			w.logger.Warn("listener failed", "event", event.String(), "error", err)
		}
	}
}

func isDisconnected(err error) bool {
	return errors.Is(err, resource.ErrListenerDisconnected)
}

// document splits a stored resource into its diffable halves.
type document struct {
	Spec   json.RawMessage `json:"spec"`
	Status json.RawMessage `json:"status"`
}

// translate parses the key, resolves the kind, and computes the
// spec/status diff flags against the previous revision. A create, with
// no previous value, flags both as changed.
func translate(raw store.Event) (resource.ResourceEvent, error) {
	typ, namespace, name, err := resource.ParseKey(raw.Key)
	if err != nil {
		return resource.ResourceEvent{}, err
	}

	event := resource.ResourceEvent{
		ResourceType: typ,
		Namespace:    namespace,
		Name:         name,
	}

	if raw.Type == store.EventDelete {
		event.EventType = resource.EventDelete
		return event, nil
	}

	event.EventType = resource.EventPut
	event.Resource = raw.Value

	var current document
	if err := resource.Decode(raw.Value, &current); err != nil {
		return resource.ResourceEvent{}, err
	}

	if raw.PrevValue == nil {
		event.SpecChanged = true
		event.StatusChanged = true
		return event, nil
	}

	var prev document
	if err := resource.Decode(raw.PrevValue, &prev); err != nil {
		// Previous revision unreadable; treat everything as changed.
		event.SpecChanged = true
		event.StatusChanged = true
		return event, nil
	}

	event.SpecChanged = !bytes.Equal(current.Spec, prev.Spec)
	event.StatusChanged = !bytes.Equal(current.Status, prev.Status)
	return event, nil
}
