// Package recordenricher provides a processor that applies the configured
// enrichment plan to every ingested record and republishes the result.
//
// Each record is isolated: a record that cannot be decoded, or whose
// enrichment hits a fatal enricher error, is logged, counted and
// acknowledged without affecting the records around it.
package recordenricher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/metrics"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

type publishFunc func(ctx context.Context, subject string, data []byte) error

type disposition int

const (
	dispositionAck disposition = iota
	dispositionNak
)

// Component implements the record-enricher processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	registry   enrich.Registry
	publish    publishFunc

	// Resolved subjects from port config
	inputSubject string
	inputStream  string
	outputPrefix string

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	recordsEnriched atomic.Int64
	recordsPoison   atomic.Int64
	recordsFatal    atomic.Int64
	publishErrors   atomic.Int64
	lastActivityMu  sync.RWMutex
	lastActivity    time.Time
}

// NewComponent creates a record-enricher that resolves capabilities through
// the process-wide enricher library.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if config.Ports == nil {
		config.Ports = DefaultConfig().Ports
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return New(config, deps, enrich.Global()), nil
}

// New creates a record-enricher resolving capabilities through registry.
func New(config Config, deps component.Dependencies, registry enrich.Registry) *Component {
	inputSubject := "records.ingest.>"
	inputStream := "RECORDS"
	outputSubject := "records.enriched.>"

	if config.Ports != nil {
		if len(config.Ports.Inputs) > 0 {
			inputSubject = config.Ports.Inputs[0].Subject
			inputStream = config.Ports.Inputs[0].StreamName
		}
		if len(config.Ports.Outputs) > 0 {
			outputSubject = config.Ports.Outputs[0].Subject
		}
	}

	c := &Component{
		name:         "record-enricher",
		config:       config,
		natsClient:   deps.NATSClient,
		logger:       deps.GetLogger(),
		registry:     registry,
		inputSubject: inputSubject,
		inputStream:  inputStream,
		outputPrefix: strings.TrimSuffix(outputSubject, ".>"),
	}
	if deps.NATSClient != nil {
		c.publish = deps.NATSClient.PublishToStream
	}
	return c
}

// EnrichRecord applies plan to a copy of rec's fields. A fatal enricher error
// is returned and no enriched record is produced.
func EnrichRecord(reg enrich.Registry, plan enrich.Plan, rec *Record) (*EnrichedRecord, error) {
	fields := rec.Fields.Clone()
	report, err := enrich.Apply(reg, &fields, plan)
	if err != nil {
		return nil, fmt.Errorf("enrich record %s: %w", rec.ID, err)
	}
	return &EnrichedRecord{
		ID:         rec.ID,
		Fields:     fields,
		Report:     report,
		EnrichedAt: time.Now().UTC(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized record-enricher",
		"steps", len(c.config.Pipeline),
		"input", c.inputSubject)
	return nil
}

// Start begins consuming ingested records.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	consumeCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	consumerCfg := natsclient.StreamConsumerConfig{
		StreamName:    c.inputStream,
		ConsumerName:  "record-enricher",
		FilterSubject: c.inputSubject,
		DeliverPolicy: "new",
		AckPolicy:     "explicit",
		MaxDeliver:    c.config.GetMaxDeliver(),
		AckWait:       c.config.GetAckWait(),
	}

	err := c.natsClient.ConsumeStreamWithConfig(consumeCtx, consumerCfg, c.handleMessage)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("start consumer: %w", err)
	}

	c.logger.Info("record-enricher started",
		"input", c.inputSubject,
		"output", c.outputPrefix+".>",
		"steps", len(c.config.Pipeline))

	return nil
}

func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	switch c.process(ctx, msg.Subject(), msg.Data()) {
	case dispositionNak:
		_ = msg.Nak()
	default:
		_ = msg.Ack()
	}
}

// process enriches one record message. Only a failed publish is retried;
// the enrichment itself is deterministic for a given model generation.
func (c *Component) process(ctx context.Context, subject string, data []byte) disposition {
	c.updateLastActivity()

	rec, err := DecodeRecord(data)
	if err != nil {
		c.recordsPoison.Add(1)
		metrics.Records.WithLabelValues(metrics.ResultPoison).Inc()
		c.logger.Warn("Dropping undecodable record",
			"subject", subject,
			"error", err)
		return dispositionAck
	}

	enriched, err := EnrichRecord(c.registry, c.config.Pipeline, rec)
	if err != nil {
		c.recordsFatal.Add(1)
		metrics.Records.WithLabelValues(metrics.ResultFatal).Inc()
		c.logger.Error("Dropping record after fatal enricher error",
			"record_id", rec.ID,
			"error", err)
		return dispositionAck
	}
	enriched.Instance = c.config.Instance

	out, err := json.Marshal(message.NewBaseMessage(EnrichedMessageType, enriched, c.name))
	if err != nil {
		c.recordsPoison.Add(1)
		metrics.Records.WithLabelValues(metrics.ResultPoison).Inc()
		c.logger.Warn("Failed to marshal enriched record",
			"record_id", rec.ID,
			"error", err)
		return dispositionAck
	}

	outSubject := c.outputSubject(rec.ID)
	if c.publish == nil {
		c.publishErrors.Add(1)
		return dispositionNak
	}
	if err := c.publish(ctx, outSubject, out); err != nil {
		c.publishErrors.Add(1)
		metrics.Records.WithLabelValues(metrics.ResultPublishError).Inc()
		c.logger.Warn("Failed to publish enriched record",
			"record_id", rec.ID,
			"subject", outSubject,
			"error", err)
		return dispositionNak
	}

	c.recordsEnriched.Add(1)
	metrics.Records.WithLabelValues(metrics.ResultEnriched).Inc()
	c.logger.Debug("Enriched record",
		"record_id", rec.ID,
		"steps_applied", enriched.Report.Applied(),
		"fields", len(enriched.Fields))
	return dispositionAck
}

// outputSubject builds the subject for id, mapping characters that are not
// valid inside a subject token.
func (c *Component) outputSubject(id string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, id)
	return c.outputPrefix + "." + token
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.running = false
	c.logger.Info("record-enricher stopped",
		"records_enriched", c.recordsEnriched.Load(),
		"records_poison", c.recordsPoison.Load(),
		"records_fatal", c.recordsFatal.Load(),
		"publish_errors", c.publishErrors.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "record-enricher",
		Type:        "processor",
		Description: "Applies the enrichment plan to ingested records",
		Version:     "1.0.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = buildPort(portDef, component.DirectionInput)
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = buildPort(portDef, component.DirectionOutput)
	}
	return ports
}

func buildPort(portDef component.PortDefinition, direction component.Direction) component.Port {
	port := component.Port{
		Name:        portDef.Name,
		Direction:   direction,
		Required:    portDef.Required,
		Description: portDef.Description,
	}
	if portDef.Type == "jetstream" {
		port.Config = component.JetStreamPort{
			StreamName: portDef.StreamName,
			Subjects:   []string{portDef.Subject},
		}
	} else {
		port.Config = component.NATSPort{
			Subject: portDef.Subject,
		}
	}
	return port
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return enricherSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.recordsFatal.Load() + c.publishErrors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	total := c.recordsEnriched.Load() + c.recordsPoison.Load() + c.recordsFatal.Load()
	var errorRate float64
	if total > 0 {
		errorRate = float64(c.recordsPoison.Load()+c.recordsFatal.Load()) / float64(total)
	}
	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
