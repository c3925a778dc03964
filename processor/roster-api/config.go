package rosterapi

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/runtime"
	"github.com/rosterlabs/roster/store"
)

// rosterAPISchema defines the configuration schema.
var rosterAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the roster-api component.
type Config struct {
	// Port is where the HTTP server listens.
	Port int `json:"port" schema:"type:int,description:HTTP listen port,category:basic,default:7888,min:1,max:65535"`

	// Namespace is the default namespace for resource operations.
	Namespace string `json:"namespace" schema:"type:string,description:Default namespace for resource operations,category:basic,default:default"`

	// Bucket is the KV bucket holding resources and records.
	Bucket string `json:"bucket" schema:"type:string,description:KV bucket for resources and workflow records,category:advanced,default:ROSTER_STORE"`

	// PostgresDSN enables the activity log when set.
	PostgresDSN string `json:"postgres_dsn,omitempty" schema:"type:string,description:Postgres connection string for the activity log,category:advanced"`

	// RuntimePort is the agent runtime port on each host.
	RuntimePort int `json:"runtime_port" schema:"type:int,description:Agent runtime port on each host,category:advanced,default:7889"`

	// RuntimeTimeout bounds each runtime HTTP call.
	RuntimeTimeout string `json:"runtime_timeout" schema:"type:string,description:Timeout per agent runtime call,category:advanced,default:120s"`

	// StrictWatch makes change feed establishment failures fatal
	// instead of degrading to a feed-less API.
	StrictWatch bool `json:"strict_watch,omitempty" schema:"type:bool,description:Fail startup when the change feed cannot be established,category:advanced,default:false"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Port:           7888,
		Namespace:      resource.DefaultNamespace,
		Bucket:         store.DefaultBucket,
		RuntimePort:    runtime.DefaultPort,
		RuntimeTimeout: "120s",
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "router-queue",
					Type:        "jetstream",
					Subject:     "roster.queue.default.actor.roster-admin.workflow-router",
					StreamName:  "ROSTER_QUEUES",
					Description: "Publish initiate_workflow commands to the router",
					Required:    false,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
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
	return 120 * time.Second
}
