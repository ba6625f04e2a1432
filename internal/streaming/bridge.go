package streaming

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
)

// Config tunes the bridge's backpressure and health thresholds.
type Config struct {
	Topic          string
	BufferMax      int
	BufferResume   int
	MaxLagSeconds  int
	PublishTimeout time.Duration
	DrainTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferMax <= 0 {
		c.BufferMax = 10000
	}

	if c.BufferResume <= 0 {
		c.BufferResume = 5000
	}

	if c.MaxLagSeconds <= 0 {
		c.MaxLagSeconds = 300
	}

	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 30 * time.Second
	}

	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}

	return c
}

// Bridge forwards messages from a Kafka-style consumer to a cloud
// publisher through a bounded FIFO buffer, pausing ingestion under
// backpressure and deferring offset commits until publish is acknowledged.
type Bridge struct {
	consumer  Consumer
	publisher Publisher
	clk       clock.Clock
	logger    *slog.Logger
	cfg       Config

	buf *buffer

	pausedMu sync.Mutex
	paused   bool

	offsetsMu   sync.Mutex
	uncommitted map[int]int64

	shutdownOnce sync.Once
	shutdown     chan struct{}

	metricsMu sync.Mutex
	metrics   Metrics
}

// New builds a Bridge from its consumer/publisher collaborators.
func New(consumer Consumer, publisher Publisher, clk clock.Clock, logger *slog.Logger, cfg Config) *Bridge {
	return &Bridge{
		consumer:    consumer,
		publisher:   publisher,
		clk:         clk,
		logger:      logger,
		cfg:         cfg.withDefaults(),
		buf:         newBuffer(),
		uncommitted: make(map[int]int64),
		shutdown:    make(chan struct{}),
	}
}

// Run drives the ingest and publish loops until ctx is cancelled or
// Shutdown is called, then drains the buffer for up to cfg.DrainTimeout,
// commits final offsets, and closes the consumer.
func (b *Bridge) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		b.publishLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			b.gracefulShutdown(context.Background())

			return ctx.Err()
		case <-b.shutdown:
			wg.Wait()
			b.gracefulShutdown(context.Background())

			return nil
		default:
		}

		b.ingestOnce(ctx)
		b.checkBackpressure()
		b.commitOffsets(ctx)
	}
}

// Shutdown requests a graceful stop, e.g. from a signal handler.
func (b *Bridge) Shutdown() {
	b.shutdownOnce.Do(func() { close(b.shutdown) })
}

func (b *Bridge) ingestOnce(ctx context.Context) {
	if b.isPaused() {
		b.clk.Sleep(100 * time.Millisecond)

		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	msg, err := b.consumer.FetchMessage(fetchCtx)
	if err != nil {
		return
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		b.logger.Error("message decode failed",
			slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset), slog.Any("error", err))
		b.metricsMu.Lock()
		b.metrics.MessagesFailed++
		b.metricsMu.Unlock()

		return
	}

	sourceTimestamp := msg.Time
	if sourceTimestamp.IsZero() {
		sourceTimestamp = b.clk.Now()
	}

	now := b.clk.Now()
	decoded["_kafka_partition"] = msg.Partition
	decoded["_kafka_offset"] = msg.Offset
	decoded["_kafka_timestamp"] = sourceTimestamp.Format(time.RFC3339Nano)
	decoded["_ingestion_time"] = now.Format(time.RFC3339Nano)

	payload, err := json.Marshal(decoded)
	if err != nil {
		b.logger.Error("message re-encode failed", slog.Any("error", err))
		b.metricsMu.Lock()
		b.metrics.MessagesFailed++
		b.metricsMu.Unlock()

		return
	}

	b.buf.pushBack(BufferedMessage{
		Partition:       msg.Partition,
		Offset:          msg.Offset,
		SourceTimestamp: sourceTimestamp,
		ReceivedAt:      now,
		Payload:         payload,
	})

	b.metricsMu.Lock()
	if l := b.buf.len(); l > b.metrics.BufferHighWater {
		b.metrics.BufferHighWater = l
	}

	b.metrics.MessagesReceived++
	b.metrics.LastMessageAt = now
	b.metricsMu.Unlock()
}

// checkBackpressure pauses ingestion once the buffer reaches BufferMax and
// resumes it once the buffer drains to BufferResume.
func (b *Bridge) checkBackpressure() {
	occupancy := b.buf.len()

	b.pausedMu.Lock()
	defer b.pausedMu.Unlock()

	switch {
	case !b.paused && occupancy >= b.cfg.BufferMax:
		b.paused = true

		b.metricsMu.Lock()
		b.metrics.PausedCount++
		b.metricsMu.Unlock()

		b.logger.Warn("ingest paused for backpressure", slog.Int("buffer_size", occupancy))
	case b.paused && occupancy <= b.cfg.BufferResume:
		b.paused = false

		b.logger.Info("ingest resumed", slog.Int("buffer_size", occupancy))
	}
}

func (b *Bridge) isPaused() bool {
	b.pausedMu.Lock()
	defer b.pausedMu.Unlock()

	return b.paused
}

func (b *Bridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-b.shutdown:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, ok := b.buf.popFront()
		if !ok {
			b.clk.Sleep(10 * time.Millisecond)

			continue
		}

		b.publishOne(ctx, msg)
	}
}

// publishOne publishes msg and reports whether the buffer head advanced: a
// successful publish and a permanently-rejected (dropped) message both
// make progress, while a transient failure re-queues msg at the head.
func (b *Bridge) publishOne(ctx context.Context, msg BufferedMessage) bool {
	result := b.publisher.Publish(ctx, msg.Payload)

	getCtx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	defer cancel()

	if _, err := result.Get(getCtx); err != nil {
		if isPermanentPublishError(err) {
			b.logger.Error("dropping message rejected by publisher",
				slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset), slog.Any("error", err))

			b.metricsMu.Lock()
			b.metrics.MessagesFailed++
			b.metricsMu.Unlock()

			return true
		}

		b.logger.Error("publish failed",
			slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset), slog.Any("error", err))

		b.metricsMu.Lock()
		b.metrics.PublishErrors++
		b.metricsMu.Unlock()

		b.buf.pushFront(msg)

		return false
	}

	b.offsetsMu.Lock()
	if current, ok := b.uncommitted[msg.Partition]; !ok || msg.Offset > current {
		b.uncommitted[msg.Partition] = msg.Offset
	}
	b.offsetsMu.Unlock()

	b.metricsMu.Lock()
	b.metrics.MessagesPublished++
	b.metrics.LastPublishAt = b.clk.Now()
	b.metricsMu.Unlock()

	return true
}

// isPermanentPublishError reports whether a Pub/Sub publish error can never
// succeed on retry, reading the gRPC status code the same way the
// submitter classifies regulator 4xx responses as non-retryable. Anything
// else — unavailable, deadline exceeded, resource exhaustion, plain
// network errors (codes.Unknown) — is transient and re-queued.
func isPermanentPublishError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
		codes.Unauthenticated, codes.FailedPrecondition, codes.OutOfRange,
		codes.Unimplemented:
		return true
	default:
		return false
	}
}

// commitOffsets drains the uncommitted-offsets map and submits a commit for
// offset+1 on each partition; kafka-go's CommitMessages already commits
// msg.Offset+1 per message.
func (b *Bridge) commitOffsets(ctx context.Context) {
	b.offsetsMu.Lock()

	if len(b.uncommitted) == 0 {
		b.offsetsMu.Unlock()

		return
	}

	msgs := make([]kafka.Message, 0, len(b.uncommitted))
	for partition, offset := range b.uncommitted {
		msgs = append(msgs, kafka.Message{Topic: b.cfg.Topic, Partition: partition, Offset: offset})
	}

	b.uncommitted = make(map[int]int64)
	b.offsetsMu.Unlock()

	if err := b.consumer.CommitMessages(ctx, msgs...); err != nil {
		b.logger.Error("commit offsets failed", slog.Any("error", err))
	}
}

// gracefulShutdown drains the remaining buffer itself — the publish loop
// has already exited by the time the main loop gets here — publishing
// until the buffer is empty or DrainTimeout passes, then commits final
// offsets and closes the consumer.
func (b *Bridge) gracefulShutdown(ctx context.Context) {
	b.logger.Info("graceful shutdown starting")

	deadline := b.clk.Now().Add(b.cfg.DrainTimeout)
	for b.clk.Now().Before(deadline) {
		msg, ok := b.buf.popFront()
		if !ok {
			break
		}

		if !b.publishOne(ctx, msg) {
			b.clk.Sleep(100 * time.Millisecond)
		}
	}

	if remaining := b.buf.len(); remaining > 0 {
		b.logger.Warn("shutdown with remaining buffered messages", slog.Int("count", remaining))
	}

	b.commitOffsets(ctx)

	if err := b.consumer.Close(); err != nil {
		b.logger.Error("failed to close consumer", slog.Any("error", err))
	}

	b.logger.Info("bridge shutdown complete")
}

// Health reports the bridge's point-in-time health: healthy means not
// paused, and either no message has been seen yet or the gap since the
// last one is under the configured lag threshold, and buffer occupancy is
// under 90% of capacity.
func (b *Bridge) Health() Health {
	occupancy := b.buf.len()
	paused := b.isPaused()

	b.metricsMu.Lock()
	metrics := b.metrics
	b.metricsMu.Unlock()

	var lagSeconds float64

	hasLag := !metrics.LastMessageAt.IsZero()
	if hasLag {
		lagSeconds = b.clk.Now().Sub(metrics.LastMessageAt).Seconds()
	}

	healthy := !paused &&
		(!hasLag || lagSeconds < float64(b.cfg.MaxLagSeconds)) &&
		float64(occupancy) < 0.9*float64(b.cfg.BufferMax)

	return Health{
		Healthy:    healthy,
		Paused:     paused,
		BufferSize: occupancy,
		BufferMax:  b.cfg.BufferMax,
		LagSeconds: lagSeconds,
		HasLag:     hasLag,
		Metrics:    metrics,
	}
}
