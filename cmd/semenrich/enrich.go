package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/c360studio/semenrich/config"
	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/enricher"
	"github.com/c360studio/semenrich/model"
	recordenricher "github.com/c360studio/semenrich/processor/record-enricher"
	"github.com/spf13/cobra"
)

func enrichCmd(opts *globalOptions) *cobra.Command {
	var recordPath string

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enrich one JSON record offline with the configured models and pipeline",
		Long: `Enrich reads a record ({"id": ..., "fields": [...]}) from --record or
stdin, applies the configured pipeline using local model files, and prints
the enriched record with a per-step report. NATS is not used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(opts.logLevel)

			cfg, err := loadConfig(opts, logger)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			in := cmd.InOrStdin()
			if recordPath != "" && recordPath != "-" {
				f, err := os.Open(recordPath)
				if err != nil {
					return fmt.Errorf("open record: %w", err)
				}
				defer f.Close()
				in = f
			}

			return enrichOffline(cmd, cfg, in, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&recordPath, "record", "r", "", "Record file (JSON); - or empty reads stdin")
	return cmd
}

func enrichOffline(cmd *cobra.Command, cfg *config.Config, in io.Reader, out io.Writer) error {
	var rec recordenricher.Record
	if err := json.NewDecoder(in).Decode(&rec); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	models, err := model.NewRegistryFromConfig(cfg.Models)
	if err != nil {
		return fmt.Errorf("build models: %w", err)
	}
	if err := models.LoadAll(contextOrBackground(cmd.Context())); err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	lib := enrich.NewLibrary()
	if err := enricher.Populate(lib, cfg.Enrichers, models, nil); err != nil {
		return fmt.Errorf("populate enrichers: %w", err)
	}

	enriched, err := recordenricher.EnrichRecord(lib, cfg.Pipeline, &rec)
	if err != nil {
		return err
	}
	enriched.Instance = cfg.Instance

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(enriched)
}
