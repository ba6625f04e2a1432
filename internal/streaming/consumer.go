package streaming

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Consumer is the narrow contract the ingest loop needs from a Kafka
// reader.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader builds a Consumer backed by kafka-go with auto-commit
// disabled — commits are issued explicitly by Bridge.commitOffsets after
// Pub/Sub acknowledges.
func NewKafkaReader(brokers []string, topic, groupID string) Consumer {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		CommitInterval: 0,
	})
}
