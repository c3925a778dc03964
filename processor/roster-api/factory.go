package rosterapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the roster-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "roster-api",
		Factory:     NewComponent,
		Schema:      rosterAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "roster",
		Description: "REST and SSE surface of the control plane with status ingest and command endpoints",
		Version:     "0.1.0",
	})
}
