package main

import (
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/internal/notifications"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/pubsub"
)

// notificationSink fans messages out to the in-app inbox and, when Pub/Sub is
// configured, to the notification topic.
func notificationSink(conn *gorm.DB, client *pubsub.Client, logg *logger.Logger) (notifications.Sink, error) {
	inbox, err := notifications.NewStoreSink(notifications.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	if client == nil {
		return inbox, nil
	}
	topic, err := notifications.NewPubSubSink(pubsub.Wrap(client.NotificationPublisher()), logg)
	if err != nil {
		return nil, err
	}
	return notifications.MultiSink{inbox, topic}, nil
}
