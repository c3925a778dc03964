package workflowrouter

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the workflow-router component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "workflow-router",
		Factory:     NewComponent,
		Schema:      workflowRouterSchema,
		Type:        "processor",
		Protocol:    "workflow",
		Domain:      "roster",
		Description: "Advances workflow records by routing initiate and report messages to step triggers",
		Version:     "0.1.0",
	})
}
