package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
	"github.com/angelmondragon/groupbuy-backend/pkg/outbox"
	"github.com/angelmondragon/groupbuy-backend/pkg/pubsub"
)

const (
	JobOutboxRelay = "outbox-relay"

	defaultRelayBatchSize   = 50
	defaultRelayMaxAttempts = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRelayRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, maxAttempts int) error
}

type topicRouter interface {
	TopicFor(eventType enums.OutboxEventType) (string, error)
}

// PublisherFactory returns the publisher for a topic, or nil when none is configured.
type PublisherFactory func(topic string) pubsub.Publisher

type OutboxRelayJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxRelayRepository
	Router      topicRouter
	Publishers  PublisherFactory
	Metrics     *metrics.CronJobMetrics
	BatchSize   int
	MaxAttempts int
}

// NewOutboxRelayJob publishes queued domain events to Pub/Sub.
func NewOutboxRelayJob(params OutboxRelayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Router == nil {
		return nil, fmt.Errorf("topic router required")
	}
	if params.Publishers == nil {
		return nil, fmt.Errorf("publisher factory required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRelayBatchSize
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultRelayMaxAttempts
	}
	return &outboxRelayJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		router:      params.Router,
		publishers:  params.Publishers,
		metrics:     params.Metrics,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

type outboxRelayJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRelayRepository
	router      topicRouter
	publishers  PublisherFactory
	metrics     *metrics.CronJobMetrics
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func (j *outboxRelayJob) Name() string { return JobOutboxRelay }

// Run relays one batch. Rows are fetched, published and marked inside a
// single transaction so the SKIP LOCKED row locks hold until marked. A batch
// where every publish failed is reported after the marks commit.
func (j *outboxRelayJob) Run(ctx context.Context) error {
	var result BatchResult
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := j.repo.FetchUnpublishedForPublish(tx, j.batchSize, j.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		var markErr error
		result = RunBatch(ctx, Batch[models.OutboxEvent]{
			Job:     JobOutboxRelay,
			Logger:  j.logg,
			Metrics: j.metrics,
			Fields:  outboxFields,
			Process: func(ctx context.Context, event models.OutboxEvent) error {
				pubErr := j.publish(ctx, event)
				if err := j.mark(tx, event, pubErr); err != nil {
					markErr = err
					return err
				}
				return pubErr
			},
		}, events)
		return markErr
	})
	if err != nil {
		return err
	}
	return result.Err()
}

func (j *outboxRelayJob) publish(ctx context.Context, event models.OutboxEvent) error {
	topic, err := j.router.TopicFor(event.EventType)
	if err != nil {
		return nonRetryable(err)
	}
	pub := j.publishers(topic)
	if pub == nil {
		return nonRetryable(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nonRetryable(fmt.Errorf("decode envelope: %w", err))
	}
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if _, err := pubsub.PublishSync(ctx, pub, msg, pubsub.DefaultPublishTimeout); err != nil {
		if isPermanent(err) {
			return nonRetryable(err)
		}
		return err
	}
	return nil
}

func (j *outboxRelayJob) mark(tx *gorm.DB, event models.OutboxEvent, pubErr error) error {
	switch {
	case pubErr == nil:
		if err := j.repo.MarkPublishedTx(tx, event.ID, j.now().UTC()); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
	case errors.As(pubErr, new(permanentError)) || event.AttemptCount+1 >= j.maxAttempts:
		if err := j.repo.MarkTerminalTx(tx, event.ID, pubErr, j.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	default:
		if err := j.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	}
	return nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return "not retryable: " + e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func nonRetryable(err error) error { return permanentError{err: err} }

func isPermanent(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition:
		return true
	default:
		return false
	}
}

func outboxFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
