package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

// Invoice is issued by the invoicing flow for each committed pledge of a locked campaign.
type Invoice struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CampaignID          uuid.UUID           `gorm:"column:campaign_id;type:uuid;not null;index"`
	PledgeID            uuid.UUID           `gorm:"column:pledge_id;type:uuid;not null"`
	BuyerOrganizationID uuid.UUID           `gorm:"column:buyer_organization_id;type:uuid;not null"`
	SupplierID          uuid.UUID           `gorm:"column:supplier_id;type:uuid;not null"`
	ShippingAddressID   *uuid.UUID          `gorm:"column:shipping_address_id;type:uuid"`
	AmountDue           decimal.Decimal     `gorm:"column:amount_due;type:numeric(14,2);not null"`
	Status              enums.InvoiceStatus `gorm:"column:status;type:text;not null;default:'PENDING';index"`
	DueDate             time.Time           `gorm:"column:due_date;not null"`
	LastReminderAt      *time.Time          `gorm:"column:last_reminder_at"`
	FailureNotifiedAt   *time.Time          `gorm:"column:failure_notified_at"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
