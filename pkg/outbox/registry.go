package outbox

import (
	"fmt"

	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

// TopicRouter maps event types to the Pub/Sub topic they are relayed to.
type TopicRouter struct {
	routes map[enums.OutboxEventType]string
}

// NewTopicRouter routes every known event type to the domain topic.
func NewTopicRouter(domainTopic string) (*TopicRouter, error) {
	if domainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}
	r := &TopicRouter{routes: make(map[enums.OutboxEventType]string, len(validEventTypes))}
	for _, eventType := range validEventTypes {
		r.routes[eventType] = domainTopic
	}
	return r, nil
}

// Route overrides the topic for a single event type.
func (r *TopicRouter) Route(eventType enums.OutboxEventType, topic string) {
	r.routes[eventType] = topic
}

// TopicFor returns the topic for eventType.
func (r *TopicRouter) TopicFor(eventType enums.OutboxEventType) (string, error) {
	topic, ok := r.routes[eventType]
	if !ok || topic == "" {
		return "", fmt.Errorf("no topic routed for %s", eventType)
	}
	return topic, nil
}

var validEventTypes = []enums.OutboxEventType{
	enums.EventCampaignPublished,
	enums.EventCampaignGraceStarted,
	enums.EventCampaignLocked,
	enums.EventCampaignCancelled,
	enums.EventCampaignCompleted,
	enums.EventPledgeRefundRequested,
	enums.EventOrderCreated,
	enums.EventOrderStatusChanged,
}
