package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

// Pledge records the quantity a buyer organization intends to purchase from a campaign.
type Pledge struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CampaignID          uuid.UUID          `gorm:"column:campaign_id;type:uuid;not null;uniqueIndex:ux_pledges_campaign_buyer"`
	BuyerOrganizationID uuid.UUID          `gorm:"column:buyer_organization_id;type:uuid;not null;uniqueIndex:ux_pledges_campaign_buyer"`
	Quantity            int                `gorm:"column:quantity;not null"`
	Status              enums.PledgeStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	CommittedAt         *time.Time         `gorm:"column:committed_at"`
	WithdrawnAt         *time.Time         `gorm:"column:withdrawn_at"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Pledge) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
