package workflowrouter

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"

	"github.com/rosterlabs/roster/bus"
	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// workflowRouterSchema defines the configuration schema.
var workflowRouterSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the workflow-router component.
type Config struct {
	// Queue is the durable queue the router consumes.
	Queue string `json:"queue" schema:"type:string,description:Durable queue for initiate and report messages,category:basic,default:default:actor:roster-admin:workflow-router"`

	// Namespace scopes every resource lookup and record write.
	Namespace string `json:"namespace" schema:"type:string,description:Namespace for resource lookups and records,category:basic,default:default"`

	// Bucket is the KV bucket holding resources and records.
	Bucket string `json:"bucket" schema:"type:string,description:KV bucket for resources and workflow records,category:advanced,default:ROSTER_STORE"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Queue:     bus.WorkflowRouterQueue,
		Namespace: resource.DefaultNamespace,
		Bucket:    store.DefaultBucket,
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "router-queue",
					Type:        "jetstream",
					Subject:     "roster.queue.default.actor.roster-admin.workflow-router",
					StreamName:  "ROSTER_QUEUES",
					Description: "Receive initiate_workflow and report_action messages",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "agent-inboxes",
					Type:        "jetstream",
					Subject:     "roster.queue.default.actor.agent.>",
					StreamName:  "ROSTER_QUEUES",
					Description: "Publish trigger_action messages to agent inboxes",
					Required:    false,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Queue == "" {
		return fmt.Errorf("queue is required")
	}
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	return nil
}
