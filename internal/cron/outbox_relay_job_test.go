package cron

import (
	"context"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/groupbuy-backend/pkg/db"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/dbtest"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
	"github.com/angelmondragon/groupbuy-backend/pkg/outbox"
	"github.com/angelmondragon/groupbuy-backend/pkg/pubsub"
)

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) { return r.id, r.err }

type scriptedPublisher struct {
	errs []error
	sent []*gcppubsub.Message
}

func (p *scriptedPublisher) Publish(_ context.Context, msg *gcppubsub.Message) pubsub.PublishResult {
	p.sent = append(p.sent, msg)
	var err error
	if len(p.errs) > 0 {
		err, p.errs = p.errs[0], p.errs[1:]
	}
	return fakeResult{id: "msg-1", err: err}
}

func TestOutboxRelayPublishesAndMarksRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	emitter := outbox.NewService(repo, nil)
	ctx := context.Background()

	aggregates := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range aggregates {
		require.NoError(t, emitter.Emit(ctx, conn, outbox.DomainEvent{
			EventType:     enums.EventCampaignLocked,
			AggregateType: enums.AggregateCampaign,
			AggregateID:   id,
			Data:          map[string]string{"campaign_id": id.String()},
		}))
	}

	pub := &scriptedPublisher{errs: []error{
		nil,
		errors.New("unavailable"),
		status.Error(codes.NotFound, "topic missing"),
	}}
	router, err := outbox.NewTopicRouter("gb-domain-events")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	job, err := NewOutboxRelayJob(OutboxRelayJobParams{
		Logger:      testLogger(),
		DB:          dbpkg.NewFromConn(conn),
		Repository:  repo,
		Router:      router,
		Publishers:  func(string) pubsub.Publisher { return pub },
		Metrics:     metrics.NewCronJobMetrics(reg),
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, map[string]float64{metrics.OutcomeSucceeded: 1, metrics.OutcomeFailed: 2}, candidateOutcomes(t, reg, JobOutboxRelay))
	require.Len(t, pub.sent, 3)
	assert.Equal(t, string(enums.EventCampaignLocked), pub.sent[0].Attributes["event_type"])
	assert.NotEmpty(t, pub.sent[0].Attributes["event_id"])

	rows := loadOutbox(t, conn, aggregates)
	assert.NotNil(t, rows[0].PublishedAt)
	assert.Nil(t, rows[1].PublishedAt)
	assert.Equal(t, 1, rows[1].AttemptCount)
	assert.Equal(t, 3, rows[2].AttemptCount, "permanent failures exhaust attempts")

	pub.errs = nil
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, map[string]float64{metrics.OutcomeSucceeded: 2, metrics.OutcomeFailed: 2}, candidateOutcomes(t, reg, JobOutboxRelay))
	rows = loadOutbox(t, conn, aggregates)
	assert.NotNil(t, rows[1].PublishedAt)
	assert.Nil(t, rows[2].PublishedAt)
}

func TestOutboxRelayMissingPublisherIsTerminal(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	id := uuid.New()
	require.NoError(t, outbox.NewService(repo, nil).Emit(context.Background(), conn, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   id,
		Data:          map[string]string{},
	}))
	router, err := outbox.NewTopicRouter("gb-domain-events")
	require.NoError(t, err)

	job, err := NewOutboxRelayJob(OutboxRelayJobParams{
		Logger:     testLogger(),
		DB:         dbpkg.NewFromConn(conn),
		Repository: repo,
		Router:     router,
		Publishers: func(string) pubsub.Publisher { return nil },
	})
	require.NoError(t, err)
	require.ErrorIs(t, job.Run(context.Background()), ErrBatchFailed)

	// The terminal mark commits even though the run reports failure.
	rows := loadOutbox(t, conn, []uuid.UUID{id})
	assert.Equal(t, defaultRelayMaxAttempts, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Contains(t, *rows[0].LastError, "publisher not configured")
}

func loadOutbox(t *testing.T, conn *gorm.DB, aggregateIDs []uuid.UUID) []models.OutboxEvent {
	t.Helper()
	out := make([]models.OutboxEvent, 0, len(aggregateIDs))
	for _, id := range aggregateIDs {
		var row models.OutboxEvent
		require.NoError(t, conn.Where("aggregate_id = ?", id).First(&row).Error)
		out = append(out, row)
	}
	return out
}
