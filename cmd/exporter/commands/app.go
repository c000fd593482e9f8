package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/points-exporter/internal/blobstore"
	"github.com/dvloznov/points-exporter/internal/config"
	"github.com/dvloznov/points-exporter/internal/logger"
	"github.com/dvloznov/points-exporter/internal/pipeline"
	"github.com/dvloznov/points-exporter/internal/warehouse"
	"github.com/dvloznov/points-exporter/internal/watermark"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds the clients of one command invocation.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	store     blobstore.Store
	warehouse *warehouse.Client
	exporter  *pipeline.Exporter
}

// newApp loads the configuration, installs the logger in the command context
// and opens the clients. The warehouse is only opened when withWarehouse is
// set.
func newApp(cmd *cobra.Command, withWarehouse bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if pretty {
		cfg.Log.Pretty = true
	}

	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	ctx := logger.WithContext(cmd.Context(), log)
	cmd.SetContext(ctx)

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	a.store, err = blobstore.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Store:     a.store,
		Watermark: watermark.NewTracker(a.store, cfg.Export.WatermarkKey),
		Now:       time.Now,
	}

	if withWarehouse {
		a.warehouse, err = warehouse.NewClient(ctx, cfg.Warehouse, cfg.Retry)
		if err != nil {
			_ = a.store.Close()
			return nil, err
		}
		deps.Lines = a.warehouse
		deps.References = a.warehouse
		deps.Members = a.warehouse
		if cfg.Export.BigQueryTable != "" {
			deps.Sink = a.warehouse
		}
	}

	a.exporter = pipeline.NewExporter(deps, opts)

	log.Debug().
		Str("backend", cfg.Store.Backend).
		Str("prefix", cfg.Store.Prefix).
		Str("format", string(opts.Format)).
		Int64("batch_size", opts.BatchSize).
		Int("workers", opts.Workers).
		Msg("Exporter configured")
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.warehouse != nil {
		errs = append(errs, a.warehouse.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// closeApp closes a and logs a failure instead of masking the command error.
func closeApp(a *app) {
	if err := a.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close clients")
	}
}
