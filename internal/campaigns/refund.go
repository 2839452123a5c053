package campaigns

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	"github.com/angelmondragon/groupbuy-backend/pkg/outbox"
)

const refundReasonCancelled = "campaign_cancelled"

// RefundHook is invoked inside the cancelling transaction with every
// COMMITTED pledge of the campaign.
type RefundHook interface {
	RequestRefunds(ctx context.Context, tx *gorm.DB, campaign models.Campaign, committed []models.Pledge) (int, error)
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxRefundHook queues one pledge_refund_requested event per pledge.
type OutboxRefundHook struct {
	outbox emitter
}

// NewOutboxRefundHook builds the default refund hook.
func NewOutboxRefundHook(out emitter) (*OutboxRefundHook, error) {
	if out == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &OutboxRefundHook{outbox: out}, nil
}

func (h *OutboxRefundHook) RequestRefunds(ctx context.Context, tx *gorm.DB, campaign models.Campaign, committed []models.Pledge) (int, error) {
	requested := 0
	for _, pledge := range committed {
		if pledge.Status != enums.PledgeStatusCommitted {
			continue
		}
		err := h.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPledgeRefundRequested,
			AggregateType: enums.AggregatePledge,
			AggregateID:   pledge.ID,
			Data: outbox.PledgeRefundRequestedEvent{
				PledgeID:            pledge.ID,
				CampaignID:          campaign.ID,
				BuyerOrganizationID: pledge.BuyerOrganizationID,
				Quantity:            pledge.Quantity,
				Reason:              refundReasonCancelled,
			},
		})
		if err != nil {
			return requested, fmt.Errorf("queue refund for pledge %s: %w", pledge.ID, err)
		}
		requested++
	}
	return requested, nil
}
