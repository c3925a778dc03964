package githubintegration

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the github-integration component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "github-integration",
		Factory:     NewComponent,
		Schema:      githubIntegrationSchema,
		Type:        "processor",
		Protocol:    "webhook",
		Domain:      "roster",
		Description: "Bridges GitHub issues and pull requests to workflows",
		Version:     "0.1.0",
	})
}
