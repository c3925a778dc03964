package taskcontroller

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/runtime"
	"github.com/rosterlabs/roster/store"
)

// taskControllerSchema defines the configuration schema.
var taskControllerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the task-controller component.
type Config struct {
	// Namespace scopes the informers and every reconcile write.
	Namespace string `json:"namespace" schema:"type:string,description:Namespace for task reconciliation,category:basic,default:default"`

	// Bucket is the KV bucket holding resources.
	Bucket string `json:"bucket" schema:"type:string,description:KV bucket for resources,category:advanced,default:ROSTER_STORE"`

	// RuntimePort is the agent runtime port on each host.
	RuntimePort int `json:"runtime_port" schema:"type:int,description:Agent runtime port on each host,category:advanced,default:7889"`

	// RuntimeTimeout bounds each runtime HTTP call.
	RuntimeTimeout string `json:"runtime_timeout" schema:"type:string,description:Timeout per agent runtime call,category:advanced,default:30s"`

	// StrictWatch makes change feed establishment failures fatal
	// instead of starting idle.
	StrictWatch bool `json:"strict_watch,omitempty" schema:"type:bool,description:Fail startup when the change feed cannot be established,category:advanced,default:false"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:      resource.DefaultNamespace,
		Bucket:         store.DefaultBucket,
		RuntimePort:    runtime.DefaultPort,
		RuntimeTimeout: "30s",
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "resource-feed",
					Type:        "jetstream",
					Subject:     "$KV.ROSTER_STORE.resources.>",
					StreamName:  "KV_ROSTER_STORE",
					Description: "Watch task and agent resources",
					Required:    true,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.RuntimeTimeout != "" {
		if _, err := time.ParseDuration(c.RuntimeTimeout); err != nil {
			return fmt.Errorf("invalid runtime_timeout: %w", err)
		}
	}
	return nil
}

// GetRuntimeTimeout parses the runtime timeout with a fallback.
func (c *Config) GetRuntimeTimeout() time.Duration {
	if d, err := time.ParseDuration(c.RuntimeTimeout); err == nil {
		return d
	}
	return 30 * time.Second
}
