// Package controldispatcher provides a processor that consumes control-plane
// commands and applies them on this engine instance.
//
// Every instance uses its own durable consumer so each instance sees every
// command. Commands are decoded strictly: an unknown command tag is rejected
// and acknowledged, never retried and never reinterpreted as a known command.
package controldispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semenrich/ctrl"
	"github.com/c360studio/semenrich/metrics"
	"github.com/c360studio/semenrich/model"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// publishFunc publishes data on a JetStream subject.
type publishFunc func(ctx context.Context, subject string, data []byte) error

// disposition is what happens to a consumed message.
type disposition int

const (
	dispositionAck disposition = iota
	dispositionNak
)

// Component implements the control-dispatcher processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	dispatcher *ctrl.Dispatcher
	models     modelHealth
	publish    publishFunc

	// Resolved subjects from port config
	inputSubject  string
	inputStream   string
	resultSubject string

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	commandsApplied  atomic.Int64
	commandsRejected atomic.Int64
	commandsFailed   atomic.Int64
	publishErrors    atomic.Int64
}

// modelHealth reports the load health of the models commands act on.
type modelHealth interface {
	Health() map[string]model.LoadHealth
}

// NewComponent creates a control-dispatcher that routes LoadModel commands to
// the process-wide model registry.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config, err := parseConfig(rawConfig)
	if err != nil {
		return nil, err
	}

	dispatcher := ctrl.NewDispatcher(deps.GetLogger())
	if err := dispatcher.Register(ctrl.LoadModel, model.Global()); err != nil {
		return nil, fmt.Errorf("register load_model handler: %w", err)
	}

	return New(config, deps, dispatcher, model.Global()), nil
}

// New creates a control-dispatcher around an existing dispatcher. models,
// when non-nil, feeds model load health into Health.
func New(config Config, deps component.Dependencies, dispatcher *ctrl.Dispatcher, models *model.Registry) *Component {
	inputSubject := ctrl.CommandSubjects
	inputStream := ctrl.StreamName
	if config.Ports != nil && len(config.Ports.Inputs) > 0 {
		inputSubject = config.Ports.Inputs[0].Subject
		inputStream = config.Ports.Inputs[0].StreamName
	}

	c := &Component{
		name:          "control-dispatcher",
		config:        config,
		natsClient:    deps.NATSClient,
		logger:        deps.GetLogger(),
		dispatcher:    dispatcher,
		inputSubject:  inputSubject,
		inputStream:   inputStream,
		resultSubject: ctrl.ResultSubject(config.Instance),
	}
	if models != nil {
		c.models = models
	}
	if deps.NATSClient != nil {
		c.publish = deps.NATSClient.PublishToStream
	}
	return c
}

func parseConfig(rawConfig json.RawMessage) (Config, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return Config{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if config.Ports == nil {
		config.Ports = DefaultConfig().Ports
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Start begins consuming control commands.
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
		ConsumerName:  consumerName(c.config.Instance),
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

	c.logger.Info("control-dispatcher started",
		"instance", c.config.Instance,
		"consumer", consumerCfg.ConsumerName,
		"input", c.inputSubject,
		"results", c.resultSubject)

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

// process decodes and applies one command message. Decode failures,
// unrouted commands and unknown model targets are terminal; other handler
// failures are retried.
func (c *Component) process(ctx context.Context, subject string, data []byte) disposition {
	cmd, err := ctrl.Decode(data)
	if err != nil {
		label := "invalid"
		if ctrl.IsUnknownCommand(err) {
			label = "unknown"
		}
		metrics.ControlCommands.WithLabelValues(label, metrics.ResultRejected).Inc()
		c.commandsRejected.Add(1)
		c.logger.Warn("Rejected control command",
			"subject", subject,
			"error", err)
		c.publishResult(ctx, &ctrl.Result{
			CommandID: peekCommandID(data),
			Status:    ctrl.StatusRejected,
			Error:     err.Error(),
		})
		return dispositionAck
	}

	err = c.dispatcher.Dispatch(ctx, cmd)
	switch {
	case err == nil:
		c.commandsApplied.Add(1)
		c.publishResult(ctx, &ctrl.Result{
			CommandID: cmd.ID,
			Type:      cmd.Type.Tag(),
			Status:    ctrl.StatusApplied,
		})
		return dispositionAck

	case errors.Is(err, ctrl.ErrNoHandler), errors.Is(err, model.ErrUnknownModel):
		c.commandsRejected.Add(1)
		c.logger.Warn("Rejected control command",
			"command_id", cmd.ID,
			"type", cmd.Type.String(),
			"target", cmd.Target,
			"error", err)
		c.publishResult(ctx, &ctrl.Result{
			CommandID: cmd.ID,
			Type:      cmd.Type.Tag(),
			Status:    ctrl.StatusRejected,
			Error:     err.Error(),
		})
		return dispositionAck

	default:
		c.commandsFailed.Add(1)
		c.logger.Error("Control command failed",
			"command_id", cmd.ID,
			"type", cmd.Type.String(),
			"target", cmd.Target,
			"error", err)
		c.publishResult(ctx, &ctrl.Result{
			CommandID: cmd.ID,
			Type:      cmd.Type.Tag(),
			Status:    ctrl.StatusFailed,
			Error:     err.Error(),
		})
		return dispositionNak
	}
}

func (c *Component) publishResult(ctx context.Context, result *ctrl.Result) {
	if c.publish == nil {
		return
	}

	result.Instance = c.config.Instance
	result.CompletedAt = time.Now().UTC()

	data, err := json.Marshal(message.NewBaseMessage(ctrl.ResultMessageType, result, c.name))
	if err != nil {
		c.publishErrors.Add(1)
		c.logger.Warn("Failed to marshal command result", "error", err)
		return
	}
	if err := c.publish(ctx, c.resultSubject, data); err != nil {
		c.publishErrors.Add(1)
		c.logger.Warn("Failed to publish command result",
			"subject", c.resultSubject,
			"command_id", result.CommandID,
			"error", err)
	}
}

// peekCommandID returns the id of a command that failed to decode, if the
// envelope carries one.
func peekCommandID(data []byte) string {
	var raw struct {
		Payload struct {
			ID string `json:"id"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ""
	}
	return raw.Payload.ID
}

// consumerName derives a durable consumer name unique to instance.
func consumerName(instance string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '/', '\\':
			return '-'
		}
		return r
	}, instance)
	return "control-dispatcher-" + clean
}

// Dispatcher returns the dispatcher commands are routed through.
func (c *Component) Dispatcher() *ctrl.Dispatcher {
	return c.dispatcher
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
	c.logger.Info("control-dispatcher stopped",
		"commands_applied", c.commandsApplied.Load(),
		"commands_rejected", c.commandsRejected.Load(),
		"commands_failed", c.commandsFailed.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "control-dispatcher",
		Type:        "processor",
		Description: "Applies control-plane commands such as model reloads on this engine instance",
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
	return dispatcherSchema
}

// Health returns the current health status. A model that has never loaded
// makes the component unhealthy; a model whose last reload failed while an
// older artifact keeps serving makes it degraded.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	healthy := running
	status := "stopped"
	if running {
		status = "running"
		if unavailable, failing := c.modelProblems(); len(unavailable) > 0 {
			healthy = false
			status = "unhealthy: models not loaded: " + strings.Join(unavailable, ",")
		} else if len(failing) > 0 {
			status = "degraded: reload failing: " + strings.Join(failing, ",")
		} else if c.dispatcher.State() == ctrl.StateApplying {
			status = "applying"
		}
	}

	return component.HealthStatus{
		Healthy:    healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(c.commandsFailed.Load() + c.publishErrors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// modelProblems lists models with no artifact installed and models whose
// latest reload failed, each sorted by name.
func (c *Component) modelProblems() (unavailable, failing []string) {
	if c.models == nil {
		return nil, nil
	}
	for name, h := range c.models.Health() {
		switch {
		case !h.Available:
			unavailable = append(unavailable, name)
		case h.FailureCount > 0:
			failing = append(failing, name)
		}
	}
	sort.Strings(unavailable)
	sort.Strings(failing)
	return unavailable, failing
}

// DataFlow reports when a command was last applied and the share of
// dispatched commands that failed.
func (c *Component) DataFlow() component.FlowMetrics {
	applied, failed := c.dispatcher.Stats()
	var errorRate float64
	if total := applied + failed; total > 0 {
		errorRate = float64(failed) / float64(total)
	}
	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: c.dispatcher.LastApplied(),
	}
}
