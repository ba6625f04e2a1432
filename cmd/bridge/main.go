// Package main runs the streaming bridge as a long-lived process: it
// forwards Kafka messages to Pub/Sub until a shutdown signal is received,
// exiting 0 on clean shutdown and non-zero on fatal initialization error.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/config"
	"github.com/meridian-markets/surveillance-platform/internal/streaming"
)

const (
	version = "1.0.0-dev"
	name    = "bridge"
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

	logger.Info("starting streaming bridge", slog.String("service", name), slog.String("version", version))

	ctx := context.Background()

	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", ""))
	topic := config.GetEnvStr("KAFKA_TOPIC", "")
	groupID := config.GetEnvStr("KAFKA_GROUP_ID", "")

	if len(brokers) == 0 || topic == "" || groupID == "" {
		logger.Error("KAFKA_BROKERS, KAFKA_TOPIC, and KAFKA_GROUP_ID are required")
		os.Exit(1)
	}

	consumer := streaming.NewKafkaReader(brokers, topic, groupID)

	publisher, err := streaming.NewPubSubPublisher(ctx, config.GetEnvStr("PROJECT_ID", ""), config.GetEnvStr("PUBSUB_TOPIC", ""))
	if err != nil {
		logger.Error("failed to initialize pubsub publisher", slog.Any("error", err))
		os.Exit(1)
	}

	bridge := streaming.New(consumer, publisher, clock.New(), logger, streaming.Config{
		Topic:        topic,
		BufferMax:    config.GetEnvInt("BUFFER_MAX_SIZE", 10000),
		BufferResume: config.GetEnvInt("BUFFER_RESUME_SIZE", 5000),
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bridge.Run(runCtx); err != nil && !strings.Contains(err.Error(), "context canceled") {
		logger.Error("streaming bridge exited with error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("streaming bridge stopped")
}
