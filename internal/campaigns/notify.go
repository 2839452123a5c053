package campaigns

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/internal/notifications"
	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

func campaignLink(id uuid.UUID) *string {
	link := fmt.Sprintf("/campaigns/%s", id)
	return &link
}

func recipients(c models.Campaign, pledges []models.Pledge) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(pledges)+1)
	out = append(out, c.SupplierID)
	for _, p := range pledges {
		out = append(out, p.BuyerOrganizationID)
	}
	return out
}

func gracePeriodMessage(c models.Campaign, pending []models.Pledge) notifications.Message {
	id := c.ID
	body := fmt.Sprintf("%q is in its grace period. Commit your pledge to keep it.", c.Title)
	if c.GracePeriodEndDate != nil {
		body = fmt.Sprintf("%q is in its grace period until %s. Commit your pledge to keep it.",
			c.Title, c.GracePeriodEndDate.Format("2006-01-02 15:04 MST"))
	}
	return notifications.Message{
		Type:       enums.NotificationTypeGracePeriodStarted,
		Recipients: recipients(c, pending),
		Title:      "Grace period started",
		Body:       body,
		Link:       campaignLink(id),
		CampaignID: &id,
	}
}

func lockedMessage(c models.Campaign, committed []models.Pledge, quote pricing.Quote) notifications.Message {
	id := c.ID
	body := fmt.Sprintf("%q reached its minimum quantity and is locked.", c.Title)
	if quote.Priced() {
		body = fmt.Sprintf("%q reached its minimum quantity and is locked at %s per unit.", c.Title, quote.UnitPrice().StringFixed(2))
	}
	return notifications.Message{
		Type:       enums.NotificationTypeCampaignLocked,
		Recipients: recipients(c, committed),
		Title:      "Campaign locked",
		Body:       body,
		Link:       campaignLink(id),
		CampaignID: &id,
	}
}

func cancelledMessage(c models.Campaign, pledges []models.Pledge) notifications.Message {
	id := c.ID
	return notifications.Message{
		Type:       enums.NotificationTypeCampaignCancelled,
		Recipients: recipients(c, pledges),
		Title:      "Campaign cancelled",
		Body:       fmt.Sprintf("%q did not reach its minimum quantity and was cancelled.", c.Title),
		Link:       campaignLink(id),
		CampaignID: &id,
	}
}
