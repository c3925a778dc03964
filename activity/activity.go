// Package activity persists the append-only log of agent thoughts and
// actions, keyed by the execution (workflow record or chat session)
// that produced them.
package activity

import (
	"context"
	"time"
)

// Event types.
const (
	TypeThought = "thought"
	TypeAction  = "action"
)

// Execution types.
const (
	ExecutionWorkflow = "workflow"
	ExecutionChat     = "chat"
)

// AgentContext identifies who produced an event.
type AgentContext struct {
	Identity string `json:"identity,omitempty"`
	Team     string `json:"team,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Event is one entry in the activity log.
type Event struct {
	ExecutionID   string       `json:"execution_id"`
	ExecutionType string       `json:"execution_type"`
	Type          string       `json:"type"`
	Content       string       `json:"content"`
	AgentContext  AgentContext `json:"agent_context"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Store is the activity log. The Postgres implementation backs the
// daemon; tests use the in-memory one.
type Store interface {
	Insert(ctx context.Context, event Event) error
	ListByExecution(ctx context.Context, executionID, executionType string) ([]Event, error)
}
