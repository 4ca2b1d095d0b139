package model

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

// ErrNotLoaded is returned when a store has no artifact installed yet.
var ErrNotLoaded = errors.New("model not loaded")

// Store holds the current artifact of one named model.
//
// Snapshot is lock-free. Load and Install serialize among themselves and
// publish a fresh artifact value with a single atomic pointer swap; a
// published artifact is never written again.
type Store struct {
	config StoreConfig
	logger *slog.Logger

	current    atomic.Pointer[Artifact]
	generation atomic.Uint64
	loadMu     sync.Mutex
	health     healthState
}

// NewStore creates a store for cfg. Nothing is loaded until Load is called.
func NewStore(cfg StoreConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		config: cfg,
		logger: logger.With("model", cfg.Name),
	}
}

// Name returns the model name.
func (s *Store) Name() string {
	return s.config.Name
}

// Config returns the store configuration.
func (s *Store) Config() StoreConfig {
	return s.config
}

// Snapshot returns the installed artifact, or nil before the first load.
// Callers use one snapshot for the whole of an operation.
func (s *Store) Snapshot() *Artifact {
	return s.current.Load()
}

// Generation returns how many artifacts have been installed.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// Health returns the load health of the store.
func (s *Store) Health() LoadHealth {
	return s.health.snapshot()
}

// Load reads the configured artifact file and installs it. On failure the
// previously installed artifact stays in place. Loads are serialized from
// read to swap, so concurrent reloads install in the order they read.
func (s *Store) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.config.Path == "" {
		return s.fail(fmt.Errorf("load model %s: path is not configured", s.config.Name))
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	a, err := LoadArtifact(s.config.Name, s.config.Path)
	if err != nil {
		return s.fail(fmt.Errorf("load model %s: %w", s.config.Name, err))
	}
	if a.Name != s.config.Name {
		return s.fail(fmt.Errorf("load model %s: artifact is named %q", s.config.Name, a.Name))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	s.install(a)
	return nil
}

// Install publishes a copy of a with the next generation and load time and
// returns the copy. a itself is never modified, so an artifact that is
// already installed, such as a held snapshot, can be reinstalled safely.
func (s *Store) Install(a *Artifact) *Artifact {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.install(a)
}

// install must be called with loadMu held.
func (s *Store) install(a *Artifact) *Artifact {
	now := time.Now()
	next := *a
	next.Generation = s.generation.Load() + 1
	next.LoadedAt = now

	prev := s.current.Swap(&next)
	s.generation.Store(next.Generation)
	s.health.markSuccess(now)

	metrics.ModelLoads.WithLabelValues(s.config.Name, metrics.ResultLoaded).Inc()
	metrics.ModelGeneration.WithLabelValues(s.config.Name).Set(float64(next.Generation))

	attrs := []any{
		"version", next.Version,
		"generation", next.Generation,
		"digest", next.Digest,
		"size", next.Size(),
	}
	if prev != nil {
		attrs = append(attrs, "previous_version", prev.Version)
	}
	s.logger.Info("Model installed", attrs...)
	return &next
}

func (s *Store) fail(err error) error {
	s.health.markFailure(time.Now(), err)
	metrics.ModelLoads.WithLabelValues(s.config.Name, metrics.ResultError).Inc()
	s.logger.Warn("Model load failed, keeping previous artifact",
		"generation", s.generation.Load(),
		"error", err)
	return err
}
