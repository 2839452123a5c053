package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateCampaign OutboxAggregateType = "campaign"
	AggregatePledge   OutboxAggregateType = "pledge"
	AggregateOrder    OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCampaign,
	AggregatePledge,
	AggregateOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventCampaignPublished     OutboxEventType = "campaign_published"
	EventCampaignGraceStarted  OutboxEventType = "campaign_grace_started"
	EventCampaignLocked        OutboxEventType = "campaign_locked"
	EventCampaignCancelled     OutboxEventType = "campaign_cancelled"
	EventCampaignCompleted     OutboxEventType = "campaign_completed"
	EventPledgeRefundRequested OutboxEventType = "pledge_refund_requested"
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCampaignPublished,
	EventCampaignGraceStarted,
	EventCampaignLocked,
	EventCampaignCancelled,
	EventCampaignCompleted,
	EventPledgeRefundRequested,
	EventOrderCreated,
	EventOrderStatusChanged,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
