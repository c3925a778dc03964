// Package bus provides durable named queues with at-least-once delivery
// on NATS JetStream. Queue names follow the platform addressing scheme,
// e.g. default:actor:agent:coder; handlers on one queue run serially in
// publish order.
package bus

import (
	"context"
	"strings"
)

// Handler consumes one message body. A non-nil error triggers
// redelivery, so handlers must be idempotent.
type Handler func(ctx context.Context, data []byte) error

// Bus is the messaging surface the engine and integrations build on.
type Bus interface {
	Publish(ctx context.Context, queue string, data []byte) error
	// RegisterCallback attaches the handler to a durable queue
	// subscription. One handler per queue.
	RegisterCallback(ctx context.Context, queue string, handler Handler) error
	// Deregister detaches the queue's handler; the durable state
	// survives so redelivery resumes on re-registration.
	Deregister(queue string) error
}

// Well-known queue names.
const (
	WorkflowRouterQueue = "default:actor:roster-admin:workflow-router"
)

// AgentQueue addresses an agent's inbox.
func AgentQueue(namespace, agent string) string {
	if namespace == "" {
		namespace = "default"
	}
	return namespace + ":actor:agent:" + agent
}

// WorkspaceQueue addresses the workspace integration.
func WorkspaceQueue(namespace string) string {
	if namespace == "" {
		namespace = "default"
	}
	return namespace + ":actor:workspace"
}

// queueSubject maps a queue name onto the stream's subject space.
func queueSubject(queue string) string {
	return subjectPrefix + strings.ReplaceAll(queue, ":", ".")
}

// durableName derives a consumer name valid for JetStream (no dots,
// wildcards or whitespace).
func durableName(queue string) string {
	sanitized := strings.NewReplacer(":", "-", ".", "-", "*", "-", ">", "-", " ", "-").Replace(queue)
	return "roster-" + sanitized
}
