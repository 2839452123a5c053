package campaigns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/internal/repo"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

// Repository exposes persistence helpers for campaigns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID, lock bool) (*models.Campaign, error)
	ListBrackets(ctx context.Context, campaignID uuid.UUID) ([]models.DiscountBracket, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.CampaignStatus, fields map[string]any) (int64, error)
	ListEndingBy(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	ListGraceElapsed(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a campaigns repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: r.Bind(tx)}
}

// FindByID loads a campaign. With lock it holds the row FOR UPDATE until the
// surrounding transaction ends.
func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID, lock bool) (*models.Campaign, error) {
	q := r.DB(ctx)
	if lock {
		q = repo.ForUpdate(q)
	}
	var campaign models.Campaign
	if err := q.Where("id = ?", id).First(&campaign).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repositoryImpl) ListBrackets(ctx context.Context, campaignID uuid.UUID) ([]models.DiscountBracket, error) {
	var rows []models.DiscountBracket
	err := r.DB(ctx).
		Where("campaign_id = ?", campaignID).
		Order("bracket_order ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateStatus flips status only while the row still has status from.
// Zero rows affected means another writer got there first.
func (r *repositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.CampaignStatus, fields map[string]any) (int64, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.DB(ctx).
		Model(&models.Campaign{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListEndingBy returns ACTIVE campaigns whose end date is at or before cutoff.
func (r *repositoryImpl) ListEndingBy(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.Campaign{}).
		Where("status = ? AND end_date <= ?", enums.CampaignStatusActive, cutoff).
		Order("end_date ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ListGraceElapsed returns GRACE_PERIOD campaigns whose grace period has ended.
func (r *repositoryImpl) ListGraceElapsed(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.Campaign{}).
		Where("status = ? AND grace_period_end_date IS NOT NULL AND grace_period_end_date <= ?", enums.CampaignStatusGracePeriod, now).
		Order("grace_period_end_date ASC").
		Pluck("id", &ids).Error
	return ids, err
}
