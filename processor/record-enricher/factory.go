package recordenricher

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the record-enricher processor with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "record-enricher",
		Factory:     NewComponent,
		Schema:      enricherSchema,
		Type:        "processor",
		Protocol:    "records",
		Domain:      "enrichment",
		Description: "Applies the enrichment plan to ingested records",
		Version:     "1.0.0",
	})
}
