// Package main runs a single batch pipeline cycle: file validation followed
// by transformation, archival, and the optional extract, exiting 0 on
// overall success and 1 on any failure.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/config"
	"github.com/meridian-markets/surveillance-platform/internal/objectstore"
	"github.com/meridian-markets/surveillance-platform/internal/orchestrator"
	"github.com/meridian-markets/surveillance-platform/internal/specs"
	"github.com/meridian-markets/surveillance-platform/internal/validation"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

const (
	version = "1.0.0-dev"
	name    = "orchestrator"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("starting orchestrator run", slog.String("service", name), slog.String("version", version))

	ctx := context.Background()

	store, err := newObjectStore(ctx)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	wh, err := warehouse.NewPostgres(config.GetEnvStr("WAREHOUSE_DSN", ""))
	if err != nil {
		logger.Error("failed to connect to warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer wh.Close()

	registry, err := specs.Load(config.GetEnvStr("TABLE_CONFIG_PATH", ""))
	if err != nil {
		logger.Error("failed to load table specs", slog.Any("error", err))
		os.Exit(1)
	}

	clk := clock.New()
	workers := config.GetEnvInt("LOADER_WORKERS", 1)

	engine := validation.NewEngine(store, wh, registry, clk, logger, workers)

	runner := orchestrator.SubprocessTransformationRunner{
		Command: []string{config.GetEnvStr("TRANSFORM_COMMAND", "dbt"), "build"},
		WorkDir: config.GetEnvStr("TRANSFORM_WORKDIR", "."),
	}

	extractHour := config.GetEnvInt("EXTRACT_HOUR", -1)

	o := orchestrator.New(engine, runner, store, wh, clk, logger, orchestrator.Config{
		Extract: orchestrator.ExtractConfig{
			Hour:   extractHour,
			Format: config.GetEnvStr("EXTRACT_FORMAT", orchestrator.ExtractFormatJSONL),
		},
	})

	result, err := o.Run(ctx)
	if err != nil {
		logger.Error("orchestrator run failed", slog.Any("error", err))
		os.Exit(1)
	}

	if !result.Success {
		logger.Error("orchestrator run completed with failures", slog.String("run_id", result.RunID))
		os.Exit(1)
	}

	logger.Info("orchestrator run completed successfully", slog.String("run_id", result.RunID))
}

func newObjectStore(ctx context.Context) (objectstore.ObjectStore, error) {
	bucket := config.GetEnvStr("STAGING_BUCKET", "")
	if bucket == "" {
		return objectstore.NewLocal(config.GetEnvStr("LANDING_PATH", "."))
	}

	gcs, err := objectstore.NewGCS(ctx, bucket)
	if err != nil {
		return nil, err
	}

	return objectstore.NewRetrying(gcs), nil
}
