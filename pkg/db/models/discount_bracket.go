package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DiscountBracket is one volume-pricing tier of a campaign. MaxQuantity is
// inclusive; nil marks the unbounded top tier.
type DiscountBracket struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CampaignID   uuid.UUID       `gorm:"column:campaign_id;type:uuid;not null;uniqueIndex:ux_discount_brackets_campaign_order"`
	MinQuantity  int             `gorm:"column:min_quantity;not null"`
	MaxQuantity  *int            `gorm:"column:max_quantity"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	BracketOrder int             `gorm:"column:bracket_order;not null;uniqueIndex:ux_discount_brackets_campaign_order"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (b *DiscountBracket) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
