package controldispatcher

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the control-dispatcher processor with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "control-dispatcher",
		Factory:     NewComponent,
		Schema:      dispatcherSchema,
		Type:        "processor",
		Protocol:    "control",
		Domain:      "enrichment",
		Description: "Applies control-plane commands such as model reloads on this engine instance",
		Version:     "1.0.0",
	})
}
