package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConsumer struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (f *fakeConsumer) FetchMessage(_ context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return kafka.Message{}, context.DeadlineExceeded
	}

	m := f.queue[0]
	f.queue = f.queue[1:]

	return m, nil
}

func (f *fakeConsumer) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.committed = append(f.committed, msgs...)

	return nil
}

func (f *fakeConsumer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

type fakeResult struct {
	err error
}

func (r fakeResult) Get(_ context.Context) (string, error) {
	return "srv-1", r.err
}

type fakePublisher struct {
	mu        sync.Mutex
	published [][]byte
	errs      []error
}

// failNext queues errors returned by subsequent Publish calls, in order.
func (f *fakePublisher) failNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errs = append(f.errs, errs...)
}

func (f *fakePublisher) Publish(_ context.Context, data []byte) PublishResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]

		return fakeResult{err: err}
	}

	f.published = append(f.published, data)

	return fakeResult{}
}

func (f *fakePublisher) Stop() {}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.published)
}

func newTestBridge(consumer Consumer, publisher Publisher, clk clock.Clock, cfg Config) *Bridge {
	return New(consumer, publisher, clk, testLogger(), cfg)
}

func jsonMessage(partition int, offset int64, t time.Time) kafka.Message {
	return kafka.Message{
		Partition: partition,
		Offset:    offset,
		Time:      t,
		Value:     []byte(`{"trade_id":"T1","quantity":100}`),
	}
}

func TestBufferFIFOAndRequeueAtHead(t *testing.T) {
	b := newBuffer()

	b.pushBack(BufferedMessage{Offset: 1})
	b.pushBack(BufferedMessage{Offset: 2})
	b.pushBack(BufferedMessage{Offset: 3})

	first, ok := b.popFront()
	require.True(t, ok)
	require.EqualValues(t, 1, first.Offset)

	// A transient publish failure re-queues at the head, preserving FIFO.
	b.pushFront(first)

	again, ok := b.popFront()
	require.True(t, ok)
	require.EqualValues(t, 1, again.Offset)

	second, ok := b.popFront()
	require.True(t, ok)
	require.EqualValues(t, 2, second.Offset)

	require.Equal(t, 1, b.len())
}

func TestIngestEnrichesAndBuffers(t *testing.T) {
	sourceTime := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC))

	consumer := &fakeConsumer{queue: []kafka.Message{jsonMessage(2, 42, sourceTime)}}
	b := newTestBridge(consumer, &fakePublisher{}, clk, Config{})

	b.ingestOnce(context.Background())

	require.Equal(t, 1, b.buf.len())

	msg, ok := b.buf.popFront()
	require.True(t, ok)
	require.Equal(t, 2, msg.Partition)
	require.EqualValues(t, 42, msg.Offset)
	require.Equal(t, sourceTime, msg.SourceTimestamp)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	require.EqualValues(t, 2, decoded["_kafka_partition"])
	require.EqualValues(t, 42, decoded["_kafka_offset"])
	require.Equal(t, sourceTime.Format(time.RFC3339Nano), decoded["_kafka_timestamp"])
	require.Equal(t, clk.Now().Format(time.RFC3339Nano), decoded["_ingestion_time"])
	require.Equal(t, "T1", decoded["trade_id"])

	health := b.Health()
	require.EqualValues(t, 1, health.Metrics.MessagesReceived)
	require.Equal(t, 1, health.Metrics.BufferHighWater)
}

func TestIngestDropsUndecodableMessage(t *testing.T) {
	consumer := &fakeConsumer{queue: []kafka.Message{{
		Partition: 0,
		Offset:    7,
		Value:     []byte("not json"),
	}}}

	b := newTestBridge(consumer, &fakePublisher{}, clock.NewFake(time.Now()), Config{})
	b.ingestOnce(context.Background())

	require.Equal(t, 0, b.buf.len())
	require.EqualValues(t, 1, b.Health().Metrics.MessagesFailed)
}

func TestBackpressurePauseAtMaxResumeAtWatermark(t *testing.T) {
	clk := clock.NewFake(time.Now())
	consumer := &fakeConsumer{}

	for i := 0; i < 3; i++ {
		consumer.queue = append(consumer.queue, jsonMessage(0, int64(i), time.Time{}))
	}

	b := newTestBridge(consumer, &fakePublisher{}, clk, Config{BufferMax: 3, BufferResume: 1})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.ingestOnce(ctx)
		b.checkBackpressure()
	}

	// Occupancy exactly at BufferMax pauses ingestion.
	require.True(t, b.isPaused())
	require.EqualValues(t, 1, b.Health().Metrics.PausedCount)

	// While paused the ingest loop must not fetch.
	consumer.queue = append(consumer.queue, jsonMessage(0, 99, time.Time{}))
	b.ingestOnce(ctx)
	require.Equal(t, 3, b.buf.len())

	// Draining to one above the watermark is not enough to resume.
	b.buf.popFront()
	b.checkBackpressure()
	require.True(t, b.isPaused())

	// Occupancy exactly at BufferResume resumes.
	b.buf.popFront()
	b.checkBackpressure()
	require.False(t, b.isPaused())
}

func TestPublishRecordsMaxUncommittedOffset(t *testing.T) {
	b := newTestBridge(&fakeConsumer{}, &fakePublisher{}, clock.NewFake(time.Now()), Config{})

	ctx := context.Background()
	require.True(t, b.publishOne(ctx, BufferedMessage{Partition: 0, Offset: 5, Payload: []byte("{}")}))
	require.True(t, b.publishOne(ctx, BufferedMessage{Partition: 0, Offset: 3, Payload: []byte("{}")}))
	require.True(t, b.publishOne(ctx, BufferedMessage{Partition: 1, Offset: 8, Payload: []byte("{}")}))

	b.offsetsMu.Lock()
	defer b.offsetsMu.Unlock()

	require.EqualValues(t, 5, b.uncommitted[0], "per-partition commit offset takes the max")
	require.EqualValues(t, 8, b.uncommitted[1])
}

func TestPublishFailureRequeuesAndCommitsNothing(t *testing.T) {
	publisher := &fakePublisher{}
	publisher.failNext(errors.New("pubsub unavailable"))

	b := newTestBridge(&fakeConsumer{}, publisher, clock.NewFake(time.Now()), Config{})

	ok := b.publishOne(context.Background(), BufferedMessage{Partition: 0, Offset: 11, Payload: []byte("{}")})
	require.False(t, ok)

	// The failed message is back at the head, its offset never committed.
	msg, found := b.buf.popFront()
	require.True(t, found)
	require.EqualValues(t, 11, msg.Offset)

	b.offsetsMu.Lock()
	require.Empty(t, b.uncommitted)
	b.offsetsMu.Unlock()

	require.EqualValues(t, 1, b.Health().Metrics.PublishErrors)
}

func TestPublishPermanentErrorDropsMessage(t *testing.T) {
	publisher := &fakePublisher{}
	publisher.failNext(status.Error(codes.InvalidArgument, "payload too large"))

	b := newTestBridge(&fakeConsumer{}, publisher, clock.NewFake(time.Now()), Config{})

	ok := b.publishOne(context.Background(), BufferedMessage{Partition: 0, Offset: 11, Payload: []byte("{}")})
	require.True(t, ok, "a permanently-rejected message still advances the buffer")

	// The message is dropped, not re-queued; a retry can never succeed.
	_, found := b.buf.popFront()
	require.False(t, found)

	require.EqualValues(t, 1, b.Health().Metrics.MessagesFailed)
	require.EqualValues(t, 0, b.Health().Metrics.PublishErrors)
}

func TestCommitOffsetsDrainsMap(t *testing.T) {
	consumer := &fakeConsumer{}
	b := newTestBridge(consumer, &fakePublisher{}, clock.NewFake(time.Now()), Config{Topic: "trades"})

	ctx := context.Background()
	b.publishOne(ctx, BufferedMessage{Partition: 0, Offset: 5, Payload: []byte("{}")})
	b.commitOffsets(ctx)

	consumer.mu.Lock()
	require.Len(t, consumer.committed, 1)
	require.Equal(t, "trades", consumer.committed[0].Topic)
	require.EqualValues(t, 5, consumer.committed[0].Offset)
	consumer.mu.Unlock()

	// Second cycle with nothing new commits nothing.
	b.commitOffsets(ctx)

	consumer.mu.Lock()
	require.Len(t, consumer.committed, 1)
	consumer.mu.Unlock()
}

func TestGracefulShutdownDrainsCommitsAndCloses(t *testing.T) {
	consumer := &fakeConsumer{}
	publisher := &fakePublisher{}
	b := newTestBridge(consumer, publisher, clock.NewFake(time.Now()), Config{Topic: "trades"})

	b.buf.pushBack(BufferedMessage{Partition: 0, Offset: 1, Payload: []byte("{}")})
	b.buf.pushBack(BufferedMessage{Partition: 0, Offset: 2, Payload: []byte("{}")})

	b.gracefulShutdown(context.Background())

	require.Equal(t, 0, b.buf.len())
	require.Equal(t, 2, publisher.count())

	consumer.mu.Lock()
	defer consumer.mu.Unlock()

	require.True(t, consumer.closed)
	require.Len(t, consumer.committed, 1)
	require.EqualValues(t, 2, consumer.committed[0].Offset)
}

func TestGracefulShutdownGivesUpAtDrainDeadline(t *testing.T) {
	consumer := &fakeConsumer{}
	publisher := &fakePublisher{}

	// Every publish attempt fails; the fake clock advances 100ms per retry,
	// so the drain loop hits its deadline instead of spinning forever.
	for i := 0; i < 1000; i++ {
		publisher.failNext(errors.New("pubsub down"))
	}

	clk := clock.NewFake(time.Now())
	b := newTestBridge(consumer, publisher, clk, Config{DrainTimeout: time.Second})

	b.buf.pushBack(BufferedMessage{Partition: 0, Offset: 1, Payload: []byte("{}")})

	b.gracefulShutdown(context.Background())

	// The undeliverable message stays buffered (lost from this process; its
	// offset was never committed, so it is re-read on the next start).
	require.Equal(t, 1, b.buf.len())

	consumer.mu.Lock()
	defer consumer.mu.Unlock()

	require.True(t, consumer.closed)
	require.Empty(t, consumer.committed)
}

func TestRunForwardsUntilShutdown(t *testing.T) {
	sourceTime := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	consumer := &fakeConsumer{queue: []kafka.Message{
		jsonMessage(0, 1, sourceTime),
		jsonMessage(0, 2, sourceTime),
	}}
	publisher := &fakePublisher{}

	b := newTestBridge(consumer, publisher, clock.New(), Config{Topic: "trades"})

	done := make(chan error, 1)

	go func() { done <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool { return publisher.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	b.Shutdown()
	require.NoError(t, <-done)

	consumer.mu.Lock()
	defer consumer.mu.Unlock()

	require.True(t, consumer.closed)
	require.NotEmpty(t, consumer.committed)
	require.EqualValues(t, 2, consumer.committed[len(consumer.committed)-1].Offset)
}

func TestHealthThresholds(t *testing.T) {
	clk := clock.NewFake(time.Now())
	b := newTestBridge(&fakeConsumer{}, &fakePublisher{}, clk, Config{BufferMax: 10, MaxLagSeconds: 60})

	require.True(t, b.Health().Healthy, "idle bridge with no ingest yet is healthy")

	// 90% occupancy tips unhealthy.
	for i := 0; i < 9; i++ {
		b.buf.pushBack(BufferedMessage{Offset: int64(i)})
	}

	require.False(t, b.Health().Healthy)

	for b.buf.len() > 0 {
		b.buf.popFront()
	}

	require.True(t, b.Health().Healthy)

	// Lag past the threshold tips unhealthy once a message has been seen.
	b.metricsMu.Lock()
	b.metrics.LastMessageAt = clk.Now()
	b.metricsMu.Unlock()

	require.True(t, b.Health().Healthy)

	clk.Advance(2 * time.Minute)
	require.False(t, b.Health().Healthy)

	// A paused bridge is never healthy.
	b.pausedMu.Lock()
	b.paused = true
	b.pausedMu.Unlock()

	require.False(t, b.Health().Healthy)
}
