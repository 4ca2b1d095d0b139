package model

import (
	"fmt"
	"time"
)

// StoreConfig describes one named model artifact.
type StoreConfig struct {
	// Name is the model name commands and enrichers refer to.
	Name string `yaml:"name" json:"name"`

	// Path is the artifact file on disk.
	Path string `yaml:"path" json:"path"`

	// Watch reloads the artifact when the file changes.
	Watch bool `yaml:"watch" json:"watch"`

	// Debounce is how long to wait for more file changes before reloading.
	Debounce time.Duration `yaml:"debounce,omitempty" json:"debounce,omitempty"`
}

// DefaultDebounce applies when Debounce is unset.
const DefaultDebounce = 250 * time.Millisecond

// Validate checks the configuration for errors.
func (c StoreConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Path == "" {
		return fmt.Errorf("model %s: path is required", c.Name)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("model %s: debounce must not be negative", c.Name)
	}
	return nil
}

// GetDebounce returns the debounce delay with a default fallback.
func (c StoreConfig) GetDebounce() time.Duration {
	if c.Debounce > 0 {
		return c.Debounce
	}
	return DefaultDebounce
}

// NewRegistryFromConfig builds a registry with one store per config entry.
// Artifacts are not loaded; call LoadAll.
func NewRegistryFromConfig(cfgs []StoreConfig, opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := r.Register(NewStore(cfg, r.logger)); err != nil {
			return nil, err
		}
	}
	return r, nil
}
