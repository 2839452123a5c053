package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

// Order is materialized exactly once per successful payment.
type Order struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID           uuid.UUID         `gorm:"column:payment_id;type:uuid;not null;uniqueIndex:ux_orders_payment_id"`
	InvoiceID           uuid.UUID         `gorm:"column:invoice_id;type:uuid;not null;uniqueIndex:ux_orders_invoice_id"`
	CampaignID          uuid.UUID         `gorm:"column:campaign_id;type:uuid;not null;index"`
	PledgeID            uuid.UUID         `gorm:"column:pledge_id;type:uuid;not null"`
	BuyerOrganizationID uuid.UUID         `gorm:"column:buyer_organization_id;type:uuid;not null"`
	SupplierID          uuid.UUID         `gorm:"column:supplier_id;type:uuid;not null"`
	ShippingAddressID   *uuid.UUID        `gorm:"column:shipping_address_id;type:uuid"`
	Quantity            int               `gorm:"column:quantity;not null"`
	UnitPrice           decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TotalAmount         decimal.Decimal   `gorm:"column:total_amount;type:numeric(14,2);not null"`
	Status              enums.OrderStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
