package activity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps events in process, in insertion order.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListByExecution(_ context.Context, executionID, executionType string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, event := range s.events {
		if event.ExecutionID == executionID && event.ExecutionType == executionType {
			out = append(out, event)
		}
	}
	return out, nil
}
