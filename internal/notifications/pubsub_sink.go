package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/pubsub"
)

// PubSubSink publishes notifications to the notification topic for
// out-of-band delivery (email, push).
type PubSubSink struct {
	publisher pubsub.Publisher
	logg      *logger.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewPubSubSink builds a sink publishing through publisher.
func NewPubSubSink(publisher pubsub.Publisher, logg *logger.Logger) (*PubSubSink, error) {
	if publisher == nil {
		return nil, errors.New("notification publisher required")
	}
	return &PubSubSink{
		publisher: publisher,
		logg:      logg,
		timeout:   pubsub.DefaultPublishTimeout,
		now:       time.Now,
	}, nil
}

func (s *PubSubSink) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	attrs := map[string]string{
		"notification_type": string(msg.Type),
		"created_at":        s.now().UTC().Format(time.RFC3339Nano),
	}
	if msg.CampaignID != nil {
		attrs["campaign_id"] = msg.CampaignID.String()
	}
	if msg.InvoiceID != nil {
		attrs["invoice_id"] = msg.InvoiceID.String()
	}

	id, err := pubsub.PublishSync(ctx, s.publisher, &gcppubsub.Message{Data: data, Attributes: attrs}, s.timeout)
	if err != nil {
		return fmt.Errorf("publish %s notification: %w", msg.Type, err)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"message_id":        id,
			"notification_type": msg.Type,
		})
		s.logg.Info(logCtx, "notification published")
	}
	return nil
}
