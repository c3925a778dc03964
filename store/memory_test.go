package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("get missing", func(t *testing.T) {
		_, ok, err := s.Get(ctx, "/resources/agents/default/x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected missing key")
		}
	})

	t.Run("put then get", func(t *testing.T) {
		if err := s.Put(ctx, "/resources/agents/default/x", []byte("one")); err != nil {
			t.Fatalf("put: %v", err)
		}
		v, ok, err := s.Get(ctx, "/resources/agents/default/x")
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if string(v) != "one" {
			t.Errorf("value = %q", v)
		}
	})

	t.Run("prefix scan", func(t *testing.T) {
		if err := s.Put(ctx, "/resources/agents/default/y", []byte("two")); err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, "/resources/teams/default/z", []byte("three")); err != nil {
			t.Fatal(err)
		}
		entries, err := s.GetPrefix(ctx, "/resources/agents")
		if err != nil {
			t.Fatalf("prefix: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].Key != "/resources/agents/default/x" {
			t.Errorf("entries unsorted: %v", entries[0].Key)
		}
	})

	t.Run("delete", func(t *testing.T) {
		existed, err := s.Delete(ctx, "/resources/agents/default/x")
		if err != nil || !existed {
			t.Fatalf("delete: existed=%v err=%v", existed, err)
		}
		existed, err = s.Delete(ctx, "/resources/agents/default/x")
		if err != nil {
			t.Fatal(err)
		}
		if existed {
			t.Error("second delete must report missing")
		}
	})
}

func TestMemoryStorePutIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.PutIfAbsent(ctx, "/resources/agents/default/x", []byte("one"))
	if err != nil || !created {
		t.Fatalf("first PutIfAbsent: created=%v err=%v", created, err)
	}
	created, err = s.PutIfAbsent(ctx, "/resources/agents/default/x", []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second PutIfAbsent must lose")
	}
	v, _, _ := s.Get(ctx, "/resources/agents/default/x")
	if string(v) != "one" {
		t.Errorf("losing write must not clobber: %q", v)
	}
}

func TestMemoryStoreConcurrentPutIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			created, err := s.PutIfAbsent(ctx, "/resources/agents/default/race", []byte(fmt.Sprintf("w%d", n)))
			if err != nil {
				t.Errorf("worker %d: %v", n, err)
				return
			}
			if created {
				wins <- n
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []int
	for n := range wins {
		winners = append(winners, n)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	v, ok, _ := s.Get(ctx, "/resources/agents/default/race")
	if !ok || string(v) != fmt.Sprintf("w%d", winners[0]) {
		t.Errorf("stored value %q does not match winner %d", v, winners[0])
	}
}

func TestMemoryStoreWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()

	w, err := s.WatchPrefix(ctx, "/resources")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Stop()

	if err := s.Put(ctx, "/resources/agents/default/x", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "/resources/agents/default/x", []byte("two")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Delete(ctx, "/resources/agents/default/x"); err != nil {
		t.Fatal(err)
	}
	// Outside the watched prefix; must not be delivered.
	if err := s.Put(ctx, "/records/workflows/default/w/r", []byte("rec")); err != nil {
		t.Fatal(err)
	}

	want := []struct {
		typ  EventType
		prev string
	}{
		{EventPut, ""},
		{EventPut, "one"},
		{EventDelete, "two"},
	}
	for i, expect := range want {
		select {
		case ev := <-w.Events():
			if ev.Type != expect.typ {
				t.Errorf("event %d type = %s, want %s", i, ev.Type, expect.typ)
			}
			if string(ev.PrevValue) != expect.prev {
				t.Errorf("event %d prev = %q, want %q", i, ev.PrevValue, expect.prev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected extra event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryStoreWatchStop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	w, err := s.WatchPrefix(ctx, "/resources")
	if err != nil {
		t.Fatal(err)
	}
	w.Stop()

	// Writes after Stop must not panic or deliver.
	if err := s.Put(ctx, "/resources/agents/default/x", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("events channel must be closed after Stop")
	}
}
