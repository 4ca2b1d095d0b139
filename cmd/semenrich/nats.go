package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/semenrich/config"
	"github.com/c360studio/semenrich/ctrl"
	ssconfig "github.com/c360studio/semstreams/config"
	"github.com/c360studio/semstreams/natsclient"
)

func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	url := cfg.NATS.URL
	logger.Info("Connecting to NATS", "url", url)

	reconnectWait := cfg.NATS.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = time.Second
	}

	client, err := natsclient.NewClient(url,
		natsclient.WithName(appName+"-"+cfg.Instance),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(reconnectWait),
		natsclient.WithCircuitBreakerThreshold(20),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, url)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, url)
	}

	logger.Info("Connected to NATS", "url", url)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set SEMENRICH_NATS_URL (or NATS_URL) to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// streamsConfig declares the JetStream streams the engine consumes from and
// publishes to.
func streamsConfig(cfg *config.Config) *ssconfig.Config {
	return &ssconfig.Config{
		Version: "1.0.0",
		Platform: ssconfig.PlatformConfig{
			Org:         appName,
			ID:          cfg.Instance,
			Environment: "prod",
		},
		NATS: ssconfig.NATSConfig{
			URLs:          []string{cfg.NATS.URL},
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			JetStream: ssconfig.JetStreamConfig{
				Enabled: true,
			},
		},
		Streams: ssconfig.StreamConfigs{
			ctrl.StreamName: ssconfig.StreamConfig{
				Subjects: []string{
					ctrl.CommandSubjects,
					ctrl.ResultSubjects,
				},
				MaxAge:   "24h",
				Storage:  "file",
				Replicas: 1,
			},
			cfg.Records.Stream: ssconfig.StreamConfig{
				Subjects: []string{
					cfg.Records.Subject,
					cfg.Records.OutputPrefix + ".>",
				},
				MaxAge:   "24h",
				Storage:  "file",
				Replicas: 1,
			},
		},
	}
}

func ensureStreams(ctx context.Context, cfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger) error {
	logger.Debug("Creating JetStream streams")
	streamsManager := ssconfig.NewStreamsManager(natsClient, logger)

	if err := streamsManager.EnsureStreams(ctx, streamsConfig(cfg)); err != nil {
		return fmt.Errorf("ensure streams: %w", err)
	}

	logger.Debug("JetStream streams ready")
	return nil
}
