// Package streaming implements the bounded-buffer Kafka-to-Pub/Sub
// forwarder: an ingest loop and a publish loop cooperate through a bounded
// FIFO, backpressure pauses ingestion when the buffer fills, and Kafka
// offsets commit only after Pub/Sub has acknowledged the matching message.
package streaming

import "time"

// BufferedMessage is a decoded Kafka message waiting to be published.
type BufferedMessage struct {
	Partition       int
	Offset          int64
	SourceTimestamp time.Time
	ReceivedAt      time.Time
	Payload         []byte
}

// Metrics tracks bridge activity for the health endpoint and operator
// dashboards.
type Metrics struct {
	MessagesReceived  int64
	MessagesPublished int64
	MessagesFailed    int64
	PublishErrors     int64
	BufferHighWater   int
	PausedCount       int64
	LastMessageAt     time.Time
	LastPublishAt     time.Time
}

// Health is the bridge's point-in-time health snapshot.
type Health struct {
	Healthy    bool
	Paused     bool
	BufferSize int
	BufferMax  int
	LagSeconds float64
	HasLag     bool
	Metrics    Metrics
}
