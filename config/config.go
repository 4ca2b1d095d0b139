// Package config provides configuration loading and management for semenrich.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/model"
	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration
type Config struct {
	// Instance names this engine in consumer names and result subjects.
	Instance string `yaml:"instance"`

	NATS      NATSConfig          `yaml:"nats"`
	Records   RecordsConfig       `yaml:"records"`
	Models    []model.StoreConfig `yaml:"models"`
	Enrichers []EnricherConfig    `yaml:"enrichers"`
	Pipeline  enrich.Plan         `yaml:"pipeline"`
	Metrics   MetricsConfig       `yaml:"metrics"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
	// MaxReconnects bounds reconnect attempts (-1 = unlimited)
	MaxReconnects int `yaml:"max_reconnects"`
	// ReconnectWait is the delay between reconnect attempts
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// RecordsConfig configures where records are consumed from and published to
type RecordsConfig struct {
	// Stream is the JetStream stream holding ingested records
	Stream string `yaml:"stream"`
	// Subject is the ingest filter subject
	Subject string `yaml:"subject"`
	// OutputPrefix prefixes the subject enriched records are published on
	OutputPrefix string `yaml:"output_prefix"`
}

// EnricherConfig binds a capability key to an enricher type and model
type EnricherConfig struct {
	// Key is the capability key pipeline steps refer to
	Key string `yaml:"key"`
	// Type selects the implementation (ipgeo, lookup)
	Type string `yaml:"type"`
	// Model is the name of the model the enricher reads
	Model string `yaml:"model"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Enabled serves /metrics when true. Unset means enabled.
	Enabled *bool `yaml:"enabled,omitempty"`
	// Addr is the listen address of the metrics server
	Addr string `yaml:"addr"`
}

// IsEnabled reports whether the metrics endpoint should be served.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "semenrich"
	}

	return &Config{
		Instance: instance,
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Records: RecordsConfig{
			Stream:       "RECORDS",
			Subject:      "records.ingest.>",
			OutputPrefix: "records.enriched",
		},
		Metrics: MetricsConfig{
			Enabled: boolPtr(true),
			Addr:    ":9090",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Records.Stream == "" || c.Records.Subject == "" || c.Records.OutputPrefix == "" {
		return fmt.Errorf("records.stream, records.subject and records.output_prefix are required")
	}
	if c.Metrics.IsEnabled() && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	models := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("models: %w", err)
		}
		if models[m.Name] {
			return fmt.Errorf("models: duplicate model %s", m.Name)
		}
		models[m.Name] = true
	}

	keys := make(map[string]bool, len(c.Enrichers))
	for _, e := range c.Enrichers {
		if e.Key == "" {
			return fmt.Errorf("enrichers: key is required")
		}
		if e.Type == "" {
			return fmt.Errorf("enrichers: %s: type is required", e.Key)
		}
		if keys[e.Key] {
			return fmt.Errorf("enrichers: duplicate key %s", e.Key)
		}
		if !models[e.Model] {
			return fmt.Errorf("enrichers: %s: unknown model %q", e.Key, e.Model)
		}
		keys[e.Key] = true
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	for i, step := range c.Pipeline {
		for _, key := range step.Capabilities {
			if !keys[key] {
				return fmt.Errorf("pipeline: step %d: unknown capability %q", i, key)
			}
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file. Relative model paths
// are resolved against the directory of the file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	dir := filepath.Dir(path)
	for i := range config.Models {
		p := config.Models[i].Path
		if p != "" && !filepath.IsAbs(p) {
			config.Models[i].Path = filepath.Join(dir, p)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values; non-empty lists replace the current ones)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Instance != "" {
		c.Instance = other.Instance
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.MaxReconnects != 0 {
		c.NATS.MaxReconnects = other.NATS.MaxReconnects
	}
	if other.NATS.ReconnectWait != 0 {
		c.NATS.ReconnectWait = other.NATS.ReconnectWait
	}

	// Records
	if other.Records.Stream != "" {
		c.Records.Stream = other.Records.Stream
	}
	if other.Records.Subject != "" {
		c.Records.Subject = other.Records.Subject
	}
	if other.Records.OutputPrefix != "" {
		c.Records.OutputPrefix = other.Records.OutputPrefix
	}

	if len(other.Models) > 0 {
		c.Models = other.Models
	}
	if len(other.Enrichers) > 0 {
		c.Enrichers = other.Enrichers
	}
	if len(other.Pipeline) > 0 {
		c.Pipeline = other.Pipeline
	}

	// Metrics
	if other.Metrics.Enabled != nil {
		c.Metrics.Enabled = boolPtr(*other.Metrics.Enabled)
	}
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}

func boolPtr(b bool) *bool {
	return &b
}
