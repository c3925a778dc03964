// Package inbox addresses messages to agents by queue name.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rosterlabs/roster/bus"
	"github.com/rosterlabs/roster/resource"
)

// AgentInbox publishes to one agent's durable queue.
type AgentInbox struct {
	bus       bus.Bus
	namespace string
	agent     string
}

func New(b bus.Bus, namespace, agent string) *AgentInbox {
	if namespace == "" {
		namespace = resource.DefaultNamespace
	}
	return &AgentInbox{bus: b, namespace: namespace, agent: agent}
}

// FromRole resolves the team member backing a role and returns that
// agent's inbox. A role with no member is an agent-not-found error.
func FromRole(b bus.Bus, team resource.TeamSpec, role, namespace string) (*AgentInbox, error) {
	agent, err := team.AgentForRole(role)
	if err != nil {
		return nil, err
	}
	return New(b, namespace, agent), nil
}

// Queue returns the inbox queue name.
func (i *AgentInbox) Queue() string {
	return bus.AgentQueue(i.namespace, i.agent)
}

// TriggerAction enqueues a trigger_action message for one step run.
func (i *AgentInbox) TriggerAction(ctx context.Context, workflow, recordID string, payload resource.WorkflowActionTriggerPayload) error {
	msg, err := resource.NewTriggerActionMessage(workflow, recordID, payload)
	if err != nil {
		return err
	}
	data, err := resource.Encode(msg)
	if err != nil {
		return err
	}
	if err := i.bus.Publish(ctx, i.Queue(), data); err != nil {
		return fmt.Errorf("trigger %s on %s: %w", payload.Action, i.agent, err)
	}
	return nil
}

// SendToolResponse answers a tool invocation the agent issued earlier.
func (i *AgentInbox) SendToolResponse(ctx context.Context, invocationID, tool string, data json.RawMessage, errMsg string) error {
	msg := resource.ToolMessage{
		ID:    invocationID,
		Tool:  tool,
		Kind:  resource.KindToolResponse,
		Data:  data,
		Error: errMsg,
		Sender: resource.ToolSender{
			Name:      i.agent,
			Namespace: i.namespace,
		},
	}
	body, err := resource.Encode(msg)
	if err != nil {
		return err
	}
	if err := i.bus.Publish(ctx, i.Queue(), body); err != nil {
		return fmt.Errorf("tool response %s to %s: %w", invocationID, i.agent, err)
	}
	return nil
}
