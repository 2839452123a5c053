package pricing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/internal/repo"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
)

// BracketStore loads a campaign's bracket table.
type BracketStore interface {
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.DiscountBracket, error)
}

// Repository persists discount brackets.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.DiscountBracket, error) {
	var rows []models.DiscountBracket
	err := r.DB(ctx).
		Where("campaign_id = ?", campaignID).
		Order("bracket_order ASC").
		Find(&rows).Error
	return rows, err
}
