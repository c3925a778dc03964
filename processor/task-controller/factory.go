package taskcontroller

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the task-controller component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "task-controller",
		Factory:     NewComponent,
		Schema:      taskControllerSchema,
		Type:        "processor",
		Protocol:    "reconcile",
		Domain:      "roster",
		Description: "Reconciles task resources against the agent runtime",
		Version:     "0.1.0",
	})
}
