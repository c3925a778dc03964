package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterlabs/roster/bus"
	"github.com/rosterlabs/roster/resource"
)

func testTeam() resource.TeamSpec {
	return resource.TeamSpec{
		Name: "core",
		Layout: resource.TeamLayout{
			Name:  "solo",
			Roles: map[string]resource.Role{"driver": {Name: "driver", Description: "writes the code"}},
		},
		Members: map[string]resource.Member{
			"driver": {Identity: "alice", Agent: "coder"},
		},
	}
}

func TestFromRole(t *testing.T) {
	b := bus.NewMemoryBus()

	t.Run("resolves member agent", func(t *testing.T) {
		in, err := FromRole(b, testTeam(), "driver", "")
		require.NoError(t, err)
		assert.Equal(t, "default:actor:agent:coder", in.Queue())
	})

	t.Run("missing member", func(t *testing.T) {
		_, err := FromRole(b, testTeam(), "navigator", "")
		assert.True(t, errors.Is(err, resource.ErrNotFound), "got %v", err)
	})
}

func TestTriggerAction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := bus.NewMemoryBus()

	received := make(chan resource.WorkflowMessage, 1)
	require.NoError(t, b.RegisterCallback(ctx, "default:actor:agent:coder", func(_ context.Context, data []byte) error {
		var msg resource.WorkflowMessage
		if err := resource.Decode(data, &msg); err != nil {
			return err
		}
		received <- msg
		return nil
	}))

	in, err := FromRole(b, testTeam(), "driver", "")
	require.NoError(t, err)
	require.NoError(t, in.TriggerAction(ctx, "echo", "rec-1", resource.WorkflowActionTriggerPayload{
		Step:        "s1",
		Action:      "Echo",
		Inputs:      map[string]resource.TypedResult{"in": {Type: "text", Value: "hi"}},
		RoleContext: "writes the code",
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "rec-1", msg.ID)
		assert.Equal(t, "echo", msg.Workflow)
		assert.Equal(t, resource.KindTriggerAction, msg.Kind)
		contents, err := msg.ReadContents()
		require.NoError(t, err)
		payload := contents.(resource.WorkflowActionTriggerPayload)
		assert.Equal(t, "hi", payload.Inputs["in"].Value)
	case <-time.After(time.Second):
		t.Fatal("trigger message never arrived")
	}
}

func TestSendToolResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := bus.NewMemoryBus()

	received := make(chan resource.ToolMessage, 1)
	require.NoError(t, b.RegisterCallback(ctx, "default:actor:agent:coder", func(_ context.Context, data []byte) error {
		var msg resource.ToolMessage
		if err := resource.Decode(data, &msg); err != nil {
			return err
		}
		received <- msg
		return nil
	}))

	in := New(b, "", "coder")
	payload, _ := json.Marshal(map[string]string{"main.go": "package main"})
	require.NoError(t, in.SendToolResponse(ctx, "inv-1", "workspace-file-reader", payload, ""))

	select {
	case msg := <-received:
		assert.Equal(t, "inv-1", msg.ID)
		assert.Equal(t, resource.KindToolResponse, msg.Kind)
		assert.Equal(t, "workspace-file-reader", msg.Tool)
		assert.Equal(t, "coder", msg.Sender.Name)
	case <-time.After(time.Second):
		t.Fatal("tool response never arrived")
	}
}
