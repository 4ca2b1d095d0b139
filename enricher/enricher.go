// Package enricher builds the configured enrichers and installs them in a
// capability library.
package enricher

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/semenrich/config"
	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/enricher/ipgeo"
	"github.com/c360studio/semenrich/enricher/lookup"
	"github.com/c360studio/semenrich/model"
)

// ErrUnknownType is returned for an enricher type with no implementation.
var ErrUnknownType = errors.New("unknown enricher type")

// Types returns the supported enricher type names.
func Types() []string {
	return []string{ipgeo.Type, lookup.Type}
}

// Build creates the enricher described by cfg, bound to its model store.
func Build(cfg config.EnricherConfig, models *model.Registry) (enrich.Enricher, error) {
	store, ok := models.Get(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("build enricher %s: %w: %s", cfg.Key, model.ErrUnknownModel, cfg.Model)
	}

	switch cfg.Type {
	case ipgeo.Type:
		return ipgeo.New(store)
	case lookup.Type:
		return lookup.New(store)
	default:
		return nil, fmt.Errorf("build enricher %s: %w: %q", cfg.Key, ErrUnknownType, cfg.Type)
	}
}

// Populate builds every configured enricher and installs it in lib under its
// key, replacing any previous entry. Nothing is installed unless every
// enricher builds.
func Populate(lib *enrich.Library, cfgs []config.EnricherConfig, models *model.Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	built := make([]enrich.Enricher, len(cfgs))
	for i, cfg := range cfgs {
		e, err := Build(cfg, models)
		if err != nil {
			return err
		}
		built[i] = e
	}

	for i, cfg := range cfgs {
		prev, err := lib.Replace(cfg.Key, built[i])
		if err != nil {
			return fmt.Errorf("install enricher %s: %w", cfg.Key, err)
		}
		logger.Info("Enricher installed",
			"key", cfg.Key,
			"type", cfg.Type,
			"model", cfg.Model,
			"replaced", prev != nil)
	}
	return nil
}
