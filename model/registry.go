package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360studio/semenrich/ctrl"
)

var (
	// ErrUnknownModel is returned when a command targets a model that is not registered.
	ErrUnknownModel = errors.New("unknown model")

	// ErrDuplicateModel is returned when registering a name twice.
	ErrDuplicateModel = errors.New("model already registered")
)

// Registry maps model names to their stores. It is the control-plane handler
// for LoadModel commands.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
	logger *slog.Logger
}

var _ ctrl.Handler = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. Stores built by NewRegistryFromConfig
// inherit it.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		stores: make(map[string]*Store),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a store under its name.
func (r *Registry) Register(s *Store) error {
	if s == nil || s.Name() == "" {
		return fmt.Errorf("register model: store must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[s.Name()]; exists {
		return fmt.Errorf("register model %s: %w", s.Name(), ErrDuplicateModel)
	}
	r.stores[s.Name()] = s
	return nil
}

// Get returns the store for name.
func (r *Registry) Get(name string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stores[name]
	return s, ok
}

// Names returns all registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health returns load health keyed by model name.
func (r *Registry) Health() map[string]LoadHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]LoadHealth, len(r.stores))
	for name, s := range r.stores {
		out[name] = s.Health()
	}
	return out
}

// LoadAll loads every registered model. All models are attempted; the
// returned error joins every failure.
func (r *Registry) LoadAll(ctx context.Context) error {
	return r.Reload(ctx, "")
}

// Reload loads the model named target, or every model when target is empty.
func (r *Registry) Reload(ctx context.Context, target string) error {
	if target != "" {
		s, ok := r.Get(target)
		if !ok {
			return fmt.Errorf("reload %s: %w", target, ErrUnknownModel)
		}
		return s.Load(ctx)
	}

	var errs []error
	for _, name := range r.Names() {
		s, _ := r.Get(name)
		if err := s.Load(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WatchAll starts file watchers for every store configured with Watch.
func (r *Registry) WatchAll(ctx context.Context) error {
	for _, name := range r.Names() {
		s, _ := r.Get(name)
		if !s.Config().Watch {
			continue
		}
		if err := s.Watch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Handle applies a LoadModel command by reloading its target.
func (r *Registry) Handle(ctx context.Context, cmd *ctrl.Command) error {
	if cmd.Type != ctrl.LoadModel {
		return fmt.Errorf("model registry cannot handle %s", cmd.Type)
	}
	r.logger.Info("Reloading models on command",
		"command_id", cmd.ID,
		"target", cmd.Target)
	return r.Reload(ctx, cmd.Target)
}
