package controldispatcher

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/c360studio/semenrich/ctrl"
	"github.com/c360studio/semstreams/component"
)

// dispatcherSchema defines the configuration schema.
var dispatcherSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the control-dispatcher processor.
type Config struct {
	Ports      *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`
	Instance   string                `json:"instance" schema:"type:string,description:Engine instance name used for the consumer and result subject,category:basic"`
	MaxDeliver int                   `json:"max_deliver" schema:"type:int,description:Delivery attempts for a command whose handler fails,category:advanced,default:3"`

	// AckWait is how long a command may take to apply before redelivery.
	AckWait time.Duration `json:"ack_wait,omitempty"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}
	if c.MaxDeliver < 0 {
		return fmt.Errorf("max_deliver must not be negative")
	}
	if c.AckWait < 0 {
		return fmt.Errorf("ack_wait must not be negative")
	}
	return nil
}

// GetMaxDeliver returns the delivery bound with a default fallback.
func (c *Config) GetMaxDeliver() int {
	if c.MaxDeliver > 0 {
		return c.MaxDeliver
	}
	return 3
}

// GetAckWait returns the ack wait with a default fallback.
func (c *Config) GetAckWait() time.Duration {
	if c.AckWait > 0 {
		return c.AckWait
	}
	return 30 * time.Second
}

// DefaultConfig returns the default configuration for control-dispatcher.
func DefaultConfig() Config {
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "semenrich"
	}

	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "commands_in",
					Type:        "jetstream",
					Subject:     ctrl.CommandSubjects,
					StreamName:  ctrl.StreamName,
					Required:    true,
					Description: "Control commands addressed to every engine instance",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "results_out",
					Type:        "jetstream",
					Subject:     ctrl.ResultSubjects,
					StreamName:  ctrl.StreamName,
					Required:    false,
					Description: "Per-instance outcome of each command",
				},
			},
		},
		Instance:   instance,
		MaxDeliver: 3,
		AckWait:    30 * time.Second,
	}
}
