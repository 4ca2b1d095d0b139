package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360studio/semenrich/config"
	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/enricher"
	"github.com/c360studio/semenrich/metrics"
	"github.com/c360studio/semenrich/model"
	controldispatcher "github.com/c360studio/semenrich/processor/control-dispatcher"
	recordenricher "github.com/c360studio/semenrich/processor/record-enricher"
	"github.com/c360studio/semstreams/component"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func runCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the enrichment engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(contextOrBackground(cmd.Context()), opts)
		},
	}
}

// lifecycle is the part of a semstreams component the engine drives.
type lifecycle interface {
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

func run(ctx context.Context, opts *globalOptions) error {
	logger := newLogger(opts.logLevel)

	cfg, err := loadConfig(opts, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	models, lib, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	if err := ensureStreams(ctx, cfg, natsClient, logger); err != nil {
		return err
	}

	deps := component.Dependencies{
		NATSClient: natsClient,
		Logger:     logger,
	}
	components, err := buildComponents(cfg, deps)
	if err != nil {
		return err
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	g, gctx := errgroup.WithContext(signalCtx)

	if err := models.WatchAll(gctx); err != nil {
		return fmt.Errorf("watch models: %w", err)
	}

	started := make([]lifecycle, 0, len(components))
	defer func() {
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].Stop(shutdownTimeout); err != nil {
				slog.Error("Error stopping component", "error", err)
			}
		}
	}()
	for _, c := range components {
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize component: %w", err)
		}
		if err := c.Start(gctx); err != nil {
			return fmt.Errorf("start component: %w", err)
		}
		started = append(started, c)
	}

	if cfg.Metrics.IsEnabled() {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, logger)
		})
	}

	slog.Info("Semenrich ready",
		"version", Version,
		"instance", cfg.Instance,
		"models", models.Names(),
		"capabilities", lib.Keys(),
		"steps", len(cfg.Pipeline))

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	slog.Info("Received shutdown signal")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("Semenrich shutdown complete")
	return nil
}

// buildEngine loads every configured model and installs the configured
// enrichers in the process-wide library. A model that fails to load is
// reported but does not stop the engine; its enrichers decline until a later
// reload succeeds.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*model.Registry, *enrich.Library, error) {
	models, err := model.NewRegistryFromConfig(cfg.Models, model.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("build models: %w", err)
	}
	model.InitGlobal(models)
	if model.Global() != models {
		return nil, nil, fmt.Errorf("model registry already initialized")
	}

	if err := models.LoadAll(ctx); err != nil {
		logger.Warn("Some models failed to load", "error", err)
	}

	lib := enrich.Global()
	if err := enricher.Populate(lib, cfg.Enrichers, models, logger); err != nil {
		return nil, nil, fmt.Errorf("populate enrichers: %w", err)
	}
	return models, lib, nil
}

// componentFactory is the constructor a component registers with semstreams.
type componentFactory func(json.RawMessage, component.Dependencies) (component.Discoverable, error)

// buildComponents creates both processors through their registered factories.
// The factories resolve the process-wide model registry and enricher library,
// so buildEngine must run first.
func buildComponents(cfg *config.Config, deps component.Dependencies) ([]lifecycle, error) {
	cdConfig := controldispatcher.DefaultConfig()
	cdConfig.Instance = cfg.Instance

	reConfig := recordenricher.DefaultConfig()
	reConfig.Instance = cfg.Instance
	reConfig.Pipeline = cfg.Pipeline
	reConfig.Ports.Inputs[0].StreamName = cfg.Records.Stream
	reConfig.Ports.Inputs[0].Subject = cfg.Records.Subject
	reConfig.Ports.Outputs[0].StreamName = cfg.Records.Stream
	reConfig.Ports.Outputs[0].Subject = cfg.Records.OutputPrefix + ".>"

	specs := []struct {
		name    string
		config  any
		factory componentFactory
	}{
		{"control-dispatcher", cdConfig, controldispatcher.NewComponent},
		{"record-enricher", reConfig, recordenricher.NewComponent},
	}

	components := make([]lifecycle, 0, len(specs))
	for _, spec := range specs {
		raw, err := json.Marshal(spec.config)
		if err != nil {
			return nil, fmt.Errorf("marshal %s config: %w", spec.name, err)
		}
		d, err := spec.factory(raw, deps)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", spec.name, err)
		}
		c, ok := d.(lifecycle)
		if !ok {
			return nil, fmt.Errorf("create %s: component has no lifecycle", spec.name)
		}
		components = append(components, c)
	}
	return components, nil
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
