package ctrl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semenrich/metrics"
)

// Handler applies one command type. Handlers must publish any state change
// atomically so enrichment running concurrently never sees partial state.
type Handler interface {
	Handle(ctx context.Context, cmd *Command) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, cmd *Command) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd *Command) error {
	return f(ctx, cmd)
}

// State is the control state of one engine instance.
type State int32

const (
	StateIdle State = iota
	StateApplying
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateApplying:
		return "applying"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Dispatcher routes decoded commands to the handler owning their type.
// Commands are applied one at a time; the record path is never blocked by
// the dispatcher itself.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[CommandType]Handler

	applyMu sync.Mutex
	state   atomic.Int32
	applied atomic.Int64
	failed  atomic.Int64
	lastMu  sync.RWMutex
	last    time.Time
}

// NewDispatcher creates a dispatcher with no handlers.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[CommandType]Handler),
	}
}

// Register installs h for ct, replacing any previous handler.
func (d *Dispatcher) Register(ct CommandType, h Handler) error {
	if !ct.IsValid() {
		return fmt.Errorf("register handler: %w", &UnknownCommandError{Tag: ct.String()})
	}
	if h == nil {
		return fmt.Errorf("register handler for %s: handler is nil", ct)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[ct] = h
	return nil
}

// Handles reports whether a handler is registered for ct.
func (d *Dispatcher) Handles(ct CommandType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[ct]
	return ok
}

// Dispatch applies cmd with its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *Command) error {
	if cmd == nil {
		return errors.New("dispatch: command is nil")
	}
	if err := cmd.Validate(); err != nil {
		metrics.ControlCommands.WithLabelValues(cmd.Type.String(), metrics.ResultRejected).Inc()
		return fmt.Errorf("dispatch: invalid command: %w", err)
	}

	d.mu.RLock()
	h, ok := d.handlers[cmd.Type]
	d.mu.RUnlock()
	if !ok {
		metrics.ControlCommands.WithLabelValues(cmd.Type.String(), metrics.ResultUnrouted).Inc()
		return fmt.Errorf("dispatch %s %s: %w", cmd.Type, cmd.ID, ErrNoHandler)
	}

	d.applyMu.Lock()
	defer d.applyMu.Unlock()

	d.state.Store(int32(StateApplying))
	defer d.state.Store(int32(StateIdle))

	start := time.Now()
	d.logger.Info("Applying control command",
		"command_id", cmd.ID,
		"type", cmd.Type.String(),
		"target", cmd.Target)

	if err := h.Handle(ctx, cmd); err != nil {
		d.failed.Add(1)
		metrics.ControlCommands.WithLabelValues(cmd.Type.String(), metrics.ResultFailed).Inc()
		return fmt.Errorf("dispatch %s %s: %w", cmd.Type, cmd.ID, err)
	}

	d.applied.Add(1)
	d.setLast(time.Now())
	metrics.ControlCommands.WithLabelValues(cmd.Type.String(), metrics.ResultApplied).Inc()
	d.logger.Info("Control command applied",
		"command_id", cmd.ID,
		"type", cmd.Type.String(),
		"duration", time.Since(start))
	return nil
}

// State returns the current control state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Stats returns the number of applied and failed commands.
func (d *Dispatcher) Stats() (applied, failed int64) {
	return d.applied.Load(), d.failed.Load()
}

// LastApplied returns when the last command was applied successfully.
func (d *Dispatcher) LastApplied() time.Time {
	d.lastMu.RLock()
	defer d.lastMu.RUnlock()
	return d.last
}

func (d *Dispatcher) setLast(t time.Time) {
	d.lastMu.Lock()
	d.last = t
	d.lastMu.Unlock()
}
