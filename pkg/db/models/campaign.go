package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

// Campaign is a supplier's time-boxed group-buy offer.
type Campaign struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	SupplierID         uuid.UUID            `gorm:"column:supplier_id;type:uuid;not null;index"`
	Title              string               `gorm:"column:title;not null"`
	Description        *string              `gorm:"column:description"`
	StartDate          time.Time            `gorm:"column:start_date;not null"`
	EndDate            time.Time            `gorm:"column:end_date;not null"`
	GracePeriodEndDate *time.Time           `gorm:"column:grace_period_end_date"`
	TargetQuantity     int                  `gorm:"column:target_quantity;not null"`
	Status             enums.CampaignStatus `gorm:"column:status;type:text;not null;default:'DRAFT';index"`
	PublishedAt        *time.Time           `gorm:"column:published_at"`
	LockedAt           *time.Time           `gorm:"column:locked_at"`
	CancelledAt        *time.Time           `gorm:"column:cancelled_at"`
	CompletedAt        *time.Time           `gorm:"column:completed_at"`
	Brackets           []DiscountBracket    `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Campaign) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
