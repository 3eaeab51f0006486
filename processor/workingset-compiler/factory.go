package workingsetcompiler

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the working-set-compiler component with the given
// registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "workingset-compiler",
		Factory:     NewComponent,
		Schema:      workingSetCompilerSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "wscompile",
		Description: "Compiles a bounded, diverse, explainable working set from candidate spans",
		Version:     "0.1.0",
	})
}
