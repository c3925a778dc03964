package resource

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowMessageRoundTrip(t *testing.T) {
	t.Run("initiate", func(t *testing.T) {
		msg, err := NewInitiateWorkflowMessage("echo", InitiateWorkflowPayload{
			Inputs:    map[string]string{"q": "hi"},
			Workspace: "ws-1",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, KindInitiateWorkflow, msg.Kind)

		wire, err := json.Marshal(msg)
		require.NoError(t, err)

		var back WorkflowMessage
		require.NoError(t, json.Unmarshal(wire, &back))

		contents, err := back.ReadContents()
		require.NoError(t, err)
		payload, ok := contents.(InitiateWorkflowPayload)
		require.True(t, ok, "contents type %T", contents)
		assert.Equal(t, "hi", payload.Inputs["q"])
		assert.Equal(t, "ws-1", payload.Workspace)
	})

	t.Run("report", func(t *testing.T) {
		msg, err := NewReportActionMessage("echo", "rec-1", WorkflowActionReportPayload{
			Step:    "s1",
			Action:  "Echo",
			Outputs: map[string]TypedResult{"out": {Type: "text", Value: "hi"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "rec-1", msg.ID)

		contents, err := msg.ReadContents()
		require.NoError(t, err)
		payload := contents.(WorkflowActionReportPayload)
		assert.Equal(t, "s1", payload.Step)
		assert.Equal(t, "hi", payload.Outputs["out"].Value)
	})

	t.Run("trigger", func(t *testing.T) {
		msg, err := NewTriggerActionMessage("echo", "rec-1", WorkflowActionTriggerPayload{
			Step:        "s1",
			Action:      "Echo",
			Inputs:      map[string]TypedResult{"in": {Type: "text", Value: "hi"}},
			RoleContext: "writes the code",
		})
		require.NoError(t, err)

		contents, err := msg.ReadContents()
		require.NoError(t, err)
		payload := contents.(WorkflowActionTriggerPayload)
		assert.Equal(t, "writes the code", payload.RoleContext)
		assert.Equal(t, "hi", payload.Inputs["in"].Value)
	})
}

func TestWorkflowMessageInvalid(t *testing.T) {
	t.Run("unknown kind", func(t *testing.T) {
		msg := WorkflowMessage{ID: "x", Workflow: "echo", Kind: "mystery", Data: []byte(`{}`)}
		_, err := msg.ReadContents()
		assert.True(t, errors.Is(err, ErrInvalidEvent), "got %v", err)
	})

	t.Run("malformed data", func(t *testing.T) {
		msg := WorkflowMessage{Kind: KindReportAction, Data: []byte(`{`)}
		_, err := msg.ReadContents()
		assert.True(t, errors.Is(err, ErrInvalidEvent), "got %v", err)
	})

	t.Run("report without step", func(t *testing.T) {
		msg := WorkflowMessage{Kind: KindReportAction, Data: []byte(`{"action":"Echo"}`)}
		_, err := msg.ReadContents()
		assert.True(t, errors.Is(err, ErrInvalidEvent), "got %v", err)
	})

	// An initiate without inputs still decodes; the router judges it
	// against the workflow's declared inputs.
	t.Run("initiate without inputs decodes", func(t *testing.T) {
		msg := WorkflowMessage{Kind: KindInitiateWorkflow, Data: []byte(`{}`)}
		contents, err := msg.ReadContents()
		require.NoError(t, err)
		payload := contents.(InitiateWorkflowPayload)
		assert.Nil(t, payload.Inputs)
	})
}

func TestStatusEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   StatusEvent
		wantErr bool
	}{
		{"valid put", StatusEvent{EventType: EventPut, ResourceType: TypeAgent, Name: "a", Status: map[string]any{"status": "running"}}, false},
		{"valid delete", StatusEvent{EventType: EventDelete, ResourceType: TypeAgent, Name: "a"}, false},
		{"missing name", StatusEvent{EventType: EventPut, ResourceType: TypeAgent}, true},
		{"bad event type", StatusEvent{EventType: "PATCH", ResourceType: TypeAgent, Name: "a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
