package resource

import (
	"encoding/json"
	"fmt"
)

// EventType distinguishes writes from deletions on the change feed.
type EventType string

const (
	EventPut    EventType = "PUT"
	EventDelete EventType = "DELETE"
)

// ResourceEvent is a typed change-feed event. Put events carry the
// current document and diff flags against the previous revision; delete
// events carry only the address.
type ResourceEvent struct {
	EventType     EventType       `json:"event_type"`
	ResourceType  ResourceType    `json:"resource_type"`
	Namespace     string          `json:"namespace"`
	Name          string          `json:"name"`
	Resource      json.RawMessage `json:"resource,omitempty"`
	SpecChanged   bool            `json:"spec_changed,omitempty"`
	StatusChanged bool            `json:"status_changed,omitempty"`
}

func (e ResourceEvent) String() string {
	return fmt.Sprintf("%s %s %s/%s", e.EventType, e.ResourceType, e.Namespace, e.Name)
}

// StatusEvent is a status update pushed by an agent runtime.
type StatusEvent struct {
	EventType    EventType      `json:"event_type"`
	ResourceType ResourceType   `json:"resource_type"`
	Namespace    string         `json:"namespace,omitempty"`
	Name         string         `json:"name"`
	Status       map[string]any `json:"status,omitempty"`
	HostIP       string         `json:"host_ip,omitempty"`
}

func (e StatusEvent) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: status event names no resource", ErrInvalidEvent)
	}
	switch e.EventType {
	case EventPut, EventDelete:
	default:
		return fmt.Errorf("%w: status event type %q", ErrInvalidEvent, e.EventType)
	}
	return nil
}

// WorkflowStartEvent fires when the router creates a record and begins
// triggering steps.
type WorkflowStartEvent struct {
	Workflow string         `json:"workflow"`
	Record   WorkflowRecord `json:"workflow_record"`
}

// WorkflowFinishEvent fires when a record's outputs and errors cover
// every declared workflow output.
type WorkflowFinishEvent struct {
	Workflow string         `json:"workflow"`
	Record   WorkflowRecord `json:"workflow_record"`
}
