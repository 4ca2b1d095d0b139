package recordenricher

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semstreams/component"
)

// enricherSchema defines the configuration schema.
var enricherSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the record-enricher processor.
type Config struct {
	Ports      *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`
	Instance   string                `json:"instance" schema:"type:string,description:Engine instance stamped on enriched records,category:basic"`
	MaxDeliver int                   `json:"max_deliver" schema:"type:int,description:Delivery attempts when publishing the enriched record fails,category:advanced,default:5"`

	// Pipeline is the plan applied to every record.
	Pipeline enrich.Plan `json:"pipeline"`

	// AckWait is how long a record may take before redelivery.
	AckWait time.Duration `json:"ack_wait,omitempty"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MaxDeliver < 0 {
		return fmt.Errorf("max_deliver must not be negative")
	}
	if c.AckWait < 0 {
		return fmt.Errorf("ack_wait must not be negative")
	}
	if c.Ports != nil && len(c.Ports.Outputs) > 0 {
		if !strings.HasSuffix(c.Ports.Outputs[0].Subject, ".>") {
			return fmt.Errorf("output subject %q must end in .>", c.Ports.Outputs[0].Subject)
		}
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// GetMaxDeliver returns the delivery bound with a default fallback.
func (c *Config) GetMaxDeliver() int {
	if c.MaxDeliver > 0 {
		return c.MaxDeliver
	}
	return 5
}

// GetAckWait returns the ack wait with a default fallback.
func (c *Config) GetAckWait() time.Duration {
	if c.AckWait > 0 {
		return c.AckWait
	}
	return 10 * time.Second
}

// DefaultConfig returns the default configuration for record-enricher.
func DefaultConfig() Config {
	instance, _ := os.Hostname()

	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "records_in",
					Type:        "jetstream",
					Subject:     "records.ingest.>",
					StreamName:  "RECORDS",
					Required:    true,
					Description: "Records awaiting enrichment",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "records_out",
					Type:        "jetstream",
					Subject:     "records.enriched.>",
					StreamName:  "RECORDS",
					Required:    true,
					Description: "Enriched records keyed by record id",
				},
			},
		},
		Instance:   instance,
		MaxDeliver: 5,
		AckWait:    10 * time.Second,
	}
}
