// Package main provides the Reporter service: the reporting cache and
// submitter fronted by an HTTP server exposing /health, /submit, and
// cache-admin endpoints.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/meridian-markets/surveillance-platform/internal/api"
	"github.com/meridian-markets/surveillance-platform/internal/cache"
	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/config"
	"github.com/meridian-markets/surveillance-platform/internal/storage"
	"github.com/meridian-markets/surveillance-platform/internal/submitter"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

const (
	version = "1.0.0-dev"
	name    = "reporter"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("starting reporter service", slog.String("service", name), slog.String("version", version))

	wh, err := warehouse.NewPostgres(config.GetEnvStr("WAREHOUSE_DSN", ""))
	if err != nil {
		logger.Error("failed to connect to warehouse", slog.Any("error", err))
		os.Exit(1)
	}

	clk := clock.New()

	c := cache.New(wh, clk, logger, cache.Config{
		RefreshInterval: time.Duration(config.GetEnvInt("CACHE_REFRESH_SECONDS", 300)) * time.Second,
		StaleThreshold:  time.Duration(config.GetEnvInt("CACHE_STALE_THRESHOLD_SECONDS", 600)) * time.Second,
	})

	if _, err := c.Refresh(context.Background(), true); err != nil {
		logger.Error("initial cache refresh failed", slog.Any("error", err))
	}

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()

	go c.RunScheduler(schedulerCtx)

	sub := submitter.New(wh, c, http.DefaultClient, clk, logger, submitter.Config{
		RegulatorURL: config.GetEnvStr("REGULATOR_API_URL", ""),
		APIKey:       config.GetEnvStr("REGULATOR_API_KEY", ""),
		MaxAttempts:  config.GetEnvInt("RETRY_MAX_ATTEMPTS", 5),
		InitialDelay: config.GetEnvDuration("RETRY_INITIAL_DELAY", time.Second),
		MaxDelay:     config.GetEnvDuration("RETRY_MAX_DELAY", 16*time.Second),
	})

	var apiKeyStore storage.APIKeyStore

	if config.GetEnvBool("REPORTER_AUTH_ENABLED", false) {
		conn, connErr := storage.NewConnection(storage.LoadConfig())
		if connErr != nil {
			logger.Error("failed to connect to operator key store", slog.Any("error", connErr))
			os.Exit(1)
		}

		store, storeErr := storage.NewPersistentKeyStore(conn)
		if storeErr != nil {
			logger.Error("failed to initialize operator key store", slog.Any("error", storeErr))
			os.Exit(1)
		}

		apiKeyStore = store
	}

	server := api.NewServer(&serverConfig, apiKeyStore, nil, c, sub, wh)

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("reporter service stopped")
}
