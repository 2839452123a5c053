package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

type campaignResponse struct {
	ID                 uuid.UUID            `json:"id"`
	SupplierID         uuid.UUID            `json:"supplier_id"`
	Title              string               `json:"title"`
	Status             enums.CampaignStatus `json:"status"`
	StartDate          time.Time            `json:"start_date"`
	EndDate            time.Time            `json:"end_date"`
	GracePeriodEndDate *time.Time           `json:"grace_period_end_date,omitempty"`
	TargetQuantity     int                  `json:"target_quantity"`
	PublishedAt        *time.Time           `json:"published_at,omitempty"`
}

func toCampaignResponse(c *models.Campaign) campaignResponse {
	return campaignResponse{
		ID:                 c.ID,
		SupplierID:         c.SupplierID,
		Title:              c.Title,
		Status:             c.Status,
		StartDate:          c.StartDate,
		EndDate:            c.EndDate,
		GracePeriodEndDate: c.GracePeriodEndDate,
		TargetQuantity:     c.TargetQuantity,
		PublishedAt:        c.PublishedAt,
	}
}

type bracketResponse struct {
	MinQuantity int             `json:"min_quantity"`
	MaxQuantity *int            `json:"max_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func toBracketResponse(b *models.DiscountBracket) *bracketResponse {
	if b == nil {
		return nil
	}
	return &bracketResponse{MinQuantity: b.MinQuantity, MaxQuantity: b.MaxQuantity, UnitPrice: b.UnitPrice}
}

type quoteResponse struct {
	Quantity    int              `json:"quantity"`
	Priced      bool             `json:"priced"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	Total       decimal.Decimal  `json:"total"`
	Current     *bracketResponse `json:"current_bracket"`
	Next        *bracketResponse `json:"next_bracket"`
	UnitsToNext *int             `json:"units_to_next"`
}

func toQuoteResponse(q pricing.Quote) quoteResponse {
	return quoteResponse{
		Quantity:    q.Quantity,
		Priced:      q.Priced(),
		UnitPrice:   q.UnitPrice(),
		Total:       q.Total(),
		Current:     toBracketResponse(q.Current),
		Next:        toBracketResponse(q.Next),
		UnitsToNext: q.UnitsToNext,
	}
}

type pledgeResponse struct {
	ID                  uuid.UUID          `json:"id"`
	CampaignID          uuid.UUID          `json:"campaign_id"`
	BuyerOrganizationID uuid.UUID          `json:"buyer_organization_id"`
	Quantity            int                `json:"quantity"`
	Status              enums.PledgeStatus `json:"status"`
	CommittedAt         *time.Time         `json:"committed_at,omitempty"`
	WithdrawnAt         *time.Time         `json:"withdrawn_at,omitempty"`
}

func toPledgeResponse(p *models.Pledge) pledgeResponse {
	return pledgeResponse{
		ID:                  p.ID,
		CampaignID:          p.CampaignID,
		BuyerOrganizationID: p.BuyerOrganizationID,
		Quantity:            p.Quantity,
		Status:              p.Status,
		CommittedAt:         p.CommittedAt,
		WithdrawnAt:         p.WithdrawnAt,
	}
}

type orderResponse struct {
	ID                  uuid.UUID         `json:"id"`
	PaymentID           uuid.UUID         `json:"payment_id"`
	InvoiceID           uuid.UUID         `json:"invoice_id"`
	CampaignID          uuid.UUID         `json:"campaign_id"`
	PledgeID            uuid.UUID         `json:"pledge_id"`
	BuyerOrganizationID uuid.UUID         `json:"buyer_organization_id"`
	SupplierID          uuid.UUID         `json:"supplier_id"`
	Quantity            int               `json:"quantity"`
	UnitPrice           decimal.Decimal   `json:"unit_price"`
	TotalAmount         decimal.Decimal   `json:"total_amount"`
	Status              enums.OrderStatus `json:"status"`
	CreatedAt           time.Time         `json:"created_at"`
}

func toOrderResponse(o *models.Order) orderResponse {
	return orderResponse{
		ID:                  o.ID,
		PaymentID:           o.PaymentID,
		InvoiceID:           o.InvoiceID,
		CampaignID:          o.CampaignID,
		PledgeID:            o.PledgeID,
		BuyerOrganizationID: o.BuyerOrganizationID,
		SupplierID:          o.SupplierID,
		Quantity:            o.Quantity,
		UnitPrice:           o.UnitPrice,
		TotalAmount:         o.TotalAmount,
		Status:              o.Status,
		CreatedAt:           o.CreatedAt,
	}
}

type notificationResponse struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type notificationListResponse struct {
	Items  []notificationResponse `json:"items"`
	Cursor string                 `json:"cursor"`
}

func toNotificationList(rows []models.Notification, cursor string) notificationListResponse {
	items := make([]notificationResponse, 0, len(rows))
	for _, n := range rows {
		items = append(items, notificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	return notificationListResponse{Items: items, Cursor: cursor}
}
