// Package main provides the semenrich binary entry point.
// Semenrich is a streaming record-enrichment engine built on semstreams:
// it enriches records flowing through NATS JetStream using hot-reloadable
// model artifacts, and applies control commands such as model reloads.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/c360studio/semenrich/config"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semenrich"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Streaming record-enrichment engine",
		Long: `Semenrich enriches records flowing through NATS JetStream.

Each record passes through a pipeline of enrichment steps. A step names an
anchor field and an ordered list of capabilities; the first enricher that
engages adds derived fields such as the country of an address.

Enrichers read model artifacts that can be reloaded at runtime, either when
the artifact file changes or when a load_model control command arrives.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML); default searches for semenrich.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		runCmd(opts),
		sendCmd(opts),
		enrichCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig loads the explicit config file, or the layered default
// configuration when none is given.
func loadConfig(opts *globalOptions, logger *slog.Logger) (*config.Config, error) {
	loader := config.NewLoader(logger)
	if opts.configPath != "" {
		return loader.LoadPath(opts.configPath)
	}
	return loader.Load()
}
