package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := resource.Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestTranslate(t *testing.T) {
	agent := resource.NewAgentResource(resource.AgentSpec{Name: "coder", Image: "img"})
	key := resource.Key(resource.TypeAgent, "default", "coder")

	t.Run("create flags both changed", func(t *testing.T) {
		ev, err := translate(store.Event{Type: store.EventPut, Key: key, Value: mustEncode(t, agent)})
		if err != nil {
			t.Fatalf("translate: %v", err)
		}
		if ev.EventType != resource.EventPut || ev.ResourceType != resource.TypeAgent {
			t.Errorf("event = %+v", ev)
		}
		if !ev.SpecChanged || !ev.StatusChanged {
			t.Errorf("create must flag spec and status changed: %+v", ev)
		}
	})

	t.Run("status-only change", func(t *testing.T) {
		updated := agent
		updated.Status.Status = resource.StatusRunning
		ev, err := translate(store.Event{
			Type:      store.EventPut,
			Key:       key,
			Value:     mustEncode(t, updated),
			PrevValue: mustEncode(t, agent),
		})
		if err != nil {
			t.Fatal(err)
		}
		if ev.SpecChanged {
			t.Error("spec did not change")
		}
		if !ev.StatusChanged {
			t.Error("status changed but was not flagged")
		}
	})

	t.Run("spec-only change", func(t *testing.T) {
		updated := agent
		updated.Spec.Image = "img:2"
		ev, err := translate(store.Event{
			Type:      store.EventPut,
			Key:       key,
			Value:     mustEncode(t, updated),
			PrevValue: mustEncode(t, agent),
		})
		if err != nil {
			t.Fatal(err)
		}
		if !ev.SpecChanged || ev.StatusChanged {
			t.Errorf("flags = spec:%v status:%v", ev.SpecChanged, ev.StatusChanged)
		}
	})

	t.Run("delete", func(t *testing.T) {
		ev, err := translate(store.Event{Type: store.EventDelete, Key: key, PrevValue: mustEncode(t, agent)})
		if err != nil {
			t.Fatal(err)
		}
		if ev.EventType != resource.EventDelete || ev.Name != "coder" {
			t.Errorf("event = %+v", ev)
		}
	})

	t.Run("unparseable key", func(t *testing.T) {
		_, err := translate(store.Event{Type: store.EventPut, Key: "/elsewhere/x", Value: []byte("{}")})
		if !errors.Is(err, resource.ErrInvalidEvent) {
			t.Errorf("expected ErrInvalidEvent, got %v", err)
		}
	})
}

func TestWatcherDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := store.NewMemoryStore()
	w := NewWatcher(mem, nil)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	var mu sync.Mutex
	var names []string
	w.AddListener(func(ev resource.ResourceEvent) error {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, ev.Name)
		return nil
	})

	// A listener that disconnects after the first event.
	var disconnectedCalls int
	w.AddListener(func(ev resource.ResourceEvent) error {
		mu.Lock()
		defer mu.Unlock()
		disconnectedCalls++
		return resource.ErrListenerDisconnected
	})

	// A listener that always fails but must be retained.
	var failingCalls int
	w.AddListener(func(ev resource.ResourceEvent) error {
		mu.Lock()
		defer mu.Unlock()
		failingCalls++
		return errors.New("transient")
	})

	agent := resource.NewAgentResource(resource.AgentSpec{Name: "a1", Image: "img"})
	for _, name := range []string{"a1", "a2"} {
		agent.Spec.Name = name
		if err := mem.Put(ctx, resource.Key(resource.TypeAgent, "default", name), mustEncode(t, agent)); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		done := len(names) == 2
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for events")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if names[0] != "a1" || names[1] != "a2" {
		t.Errorf("commit order violated: %v", names)
	}
	if disconnectedCalls != 1 {
		t.Errorf("disconnected listener called %d times, want 1", disconnectedCalls)
	}
	if failingCalls != 2 {
		t.Errorf("failing listener must be retained: called %d times, want 2", failingCalls)
	}
}

func TestWatcherDropsMalformed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := store.NewMemoryStore()
	w := NewWatcher(mem, nil)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	received := make(chan resource.ResourceEvent, 8)
	w.AddListener(func(ev resource.ResourceEvent) error {
		received <- ev
		return nil
	})

	// Unknown kind prefix: logged and dropped.
	if err := mem.Put(ctx, "/resources/widgets/default/x", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	// Valid event afterwards still arrives.
	agent := resource.NewAgentResource(resource.AgentSpec{Name: "ok", Image: "img"})
	if err := mem.Put(ctx, resource.Key(resource.TypeAgent, "default", "ok"), mustEncode(t, agent)); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-received:
		if ev.Name != "ok" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("valid event never arrived")
	}
}
