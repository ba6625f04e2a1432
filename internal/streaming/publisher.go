package streaming

import (
	"context"

	"cloud.google.com/go/pubsub"
)

// PublishResult is the future-like handle an async publish returns. Get
// blocks until the publish is acknowledged or ctx expires.
// *pubsub.PublishResult satisfies it directly.
type PublishResult interface {
	Get(ctx context.Context) (serverID string, err error)
}

// Publisher is the narrow contract the publish loop needs: an async publish
// that returns a future-like result the caller polls for the completion
// callback.
type Publisher interface {
	Publish(ctx context.Context, data []byte) PublishResult
	Stop()
}

type pubsubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher builds a Publisher backed by a Pub/Sub topic.
func NewPubSubPublisher(ctx context.Context, projectID, topicID string) (Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &pubsubPublisher{topic: client.Topic(topicID)}, nil
}

func (p *pubsubPublisher) Publish(ctx context.Context, data []byte) PublishResult {
	return p.topic.Publish(ctx, &pubsub.Message{Data: data})
}

func (p *pubsubPublisher) Stop() {
	p.topic.Stop()
}
