package pubsub

import (
	"context"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// DefaultPublishTimeout bounds a single synchronous publish.
const DefaultPublishTimeout = 15 * time.Second

var errNilPublisher = errors.New("publisher not configured")

// Publisher is the narrow publish surface used by the notification sink and the outbox relay.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) PublishResult
}

// PublishResult resolves to the server message id once the publish is acknowledged.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// Wrap adapts a GCP publisher to Publisher. It returns nil for a nil publisher.
func Wrap(p *pubsub.Publisher) Publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

// PublishSync publishes msg and waits for the acknowledgement.
func PublishSync(ctx context.Context, pub Publisher, msg *pubsub.Message, timeout time.Duration) (string, error) {
	if pub == nil {
		return "", errNilPublisher
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	publishCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return "", errors.New("publisher returned nil result")
	}
	return result.Get(publishCtx)
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) PublishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*pubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
