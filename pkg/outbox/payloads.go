package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

// CampaignTransitionedEvent is emitted whenever a campaign changes status.
type CampaignTransitionedEvent struct {
	CampaignID        uuid.UUID            `json:"campaign_id"`
	SupplierID        uuid.UUID            `json:"supplier_id"`
	From              enums.CampaignStatus `json:"from"`
	To                enums.CampaignStatus `json:"to"`
	CommittedQuantity *int                 `json:"committed_quantity,omitempty"`
	MinimumQuantity   *int                 `json:"minimum_quantity,omitempty"`
	At                time.Time            `json:"at"`
}

// PledgeRefundRequestedEvent asks the payments side to refund a committed pledge of a cancelled campaign.
type PledgeRefundRequestedEvent struct {
	PledgeID            uuid.UUID `json:"pledge_id"`
	CampaignID          uuid.UUID `json:"campaign_id"`
	BuyerOrganizationID uuid.UUID `json:"buyer_organization_id"`
	Quantity            int       `json:"quantity"`
	Reason              string    `json:"reason"`
}

// OrderCreatedEvent announces an order materialized from a payment.
type OrderCreatedEvent struct {
	OrderID             uuid.UUID       `json:"order_id"`
	PaymentID           uuid.UUID       `json:"payment_id"`
	CampaignID          uuid.UUID       `json:"campaign_id"`
	BuyerOrganizationID uuid.UUID       `json:"buyer_organization_id"`
	SupplierID          uuid.UUID       `json:"supplier_id"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
}

// OrderStatusChangedEvent is emitted for each accepted order status transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}
