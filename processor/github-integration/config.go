package githubintegration

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// githubIntegrationSchema defines the configuration schema.
var githubIntegrationSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the github-integration component.
type Config struct {
	// WebhookSecret verifies webhook deliveries. Deliveries are
	// rejected when unset.
	WebhookSecret string `json:"webhook_secret" schema:"type:string,description:Shared secret for webhook signature verification,category:basic"`

	// Token authenticates git pushes and API calls.
	Token string `json:"token" schema:"type:string,description:GitHub access token,category:basic"`

	// Workflow is started for each opened issue.
	Workflow string `json:"workflow" schema:"type:string,description:Workflow initiated per opened issue,category:basic,default:ImplementFeature"`

	// Namespace scopes workspaces and queue traffic.
	Namespace string `json:"namespace" schema:"type:string,description:Namespace for workspaces,category:basic,default:default"`

	// Bucket is the KV bucket holding resources.
	Bucket string `json:"bucket" schema:"type:string,description:KV bucket for resources,category:advanced,default:ROSTER_STORE"`

	// Workdir holds the working clones.
	Workdir string `json:"workdir" schema:"type:string,description:Directory for workspace clones,category:advanced,default:/var/lib/roster/workspaces"`

	// APIBase overrides the GitHub REST endpoint.
	APIBase string `json:"api_base,omitempty" schema:"type:string,description:GitHub API base URL,category:advanced"`

	// CloneBase overrides the clone URL prefix.
	CloneBase string `json:"clone_base,omitempty" schema:"type:string,description:Clone URL prefix,category:advanced"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Workflow:  DefaultWorkflow,
		Namespace: resource.DefaultNamespace,
		Bucket:    store.DefaultBucket,
		Workdir:   "/var/lib/roster/workspaces",
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "workspace-queue",
					Type:        "jetstream",
					Subject:     "roster.queue.default.actor.workspace",
					StreamName:  "ROSTER_QUEUES",
					Description: "Code reports and workspace tool invocations",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "router-queue",
					Type:        "jetstream",
					Subject:     "roster.queue.default.actor.roster-admin.workflow-router",
					StreamName:  "ROSTER_QUEUES",
					Description: "Workflow initiations for opened issues",
					Required:    true,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workflow == "" {
		return fmt.Errorf("workflow is required")
	}
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Workdir == "" {
		return fmt.Errorf("workdir is required")
	}
	return nil
}
