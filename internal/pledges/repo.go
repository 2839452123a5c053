package pledges

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/internal/repo"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

// Repository exposes persistence helpers for pledges.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, pledge *models.Pledge) error
	FindByID(ctx context.Context, id uuid.UUID, lock bool) (*models.Pledge, error)
	FindByCampaignAndBuyer(ctx context.Context, campaignID, buyerOrganizationID uuid.UUID) (*models.Pledge, error)
	FindCampaign(ctx context.Context, campaignID uuid.UUID, lock bool) (*models.Campaign, error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) (int64, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PledgeStatus, at time.Time) (int64, error)
	WithdrawAllPending(ctx context.Context, campaignID uuid.UUID, at time.Time) (int64, error)
	SumCommitted(ctx context.Context, campaignID uuid.UUID) (int, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, status *enums.PledgeStatus) ([]models.Pledge, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a pledges repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: r.Bind(tx)}
}

func (r *repositoryImpl) Create(ctx context.Context, pledge *models.Pledge) error {
	return r.DB(ctx).Create(pledge).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID, lock bool) (*models.Pledge, error) {
	q := r.DB(ctx)
	if lock {
		q = repo.ForUpdate(q)
	}
	var pledge models.Pledge
	if err := q.Where("id = ?", id).First(&pledge).Error; err != nil {
		return nil, err
	}
	return &pledge, nil
}

func (r *repositoryImpl) FindByCampaignAndBuyer(ctx context.Context, campaignID, buyerOrganizationID uuid.UUID) (*models.Pledge, error) {
	var pledge models.Pledge
	err := r.DB(ctx).
		Where("campaign_id = ? AND buyer_organization_id = ?", campaignID, buyerOrganizationID).
		First(&pledge).Error
	if err != nil {
		return nil, err
	}
	return &pledge, nil
}

// FindCampaign reads the owning campaign. With lock it takes a shared row
// lock so the campaign cannot change status until the pledge mutation commits.
func (r *repositoryImpl) FindCampaign(ctx context.Context, campaignID uuid.UUID, lock bool) (*models.Campaign, error) {
	q := r.DB(ctx)
	if lock {
		q = repo.ForShare(q)
	}
	var campaign models.Campaign
	if err := q.Where("id = ?", campaignID).First(&campaign).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repositoryImpl) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Pledge{}).
		Where("id = ? AND status = ?", id, enums.PledgeStatusPending).
		Update("quantity", quantity)
	return res.RowsAffected, res.Error
}

// TransitionStatus moves one pledge from -> to, stamping the timestamp column
// that belongs to the target status. Zero rows means the precondition failed.
func (r *repositoryImpl) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PledgeStatus, at time.Time) (int64, error) {
	updates := map[string]any{"status": to}
	switch to {
	case enums.PledgeStatusCommitted:
		updates["committed_at"] = at
	case enums.PledgeStatusWithdrawn:
		updates["withdrawn_at"] = at
	}
	res := r.DB(ctx).
		Model(&models.Pledge{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) WithdrawAllPending(ctx context.Context, campaignID uuid.UUID, at time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Pledge{}).
		Where("campaign_id = ? AND status = ?", campaignID, enums.PledgeStatusPending).
		Updates(map[string]any{
			"status":       enums.PledgeStatusWithdrawn,
			"withdrawn_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) SumCommitted(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var total int64
	err := r.DB(ctx).
		Model(&models.Pledge{}).
		Where("campaign_id = ? AND status = ?", campaignID, enums.PledgeStatusCommitted).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *repositoryImpl) ListByCampaign(ctx context.Context, campaignID uuid.UUID, status *enums.PledgeStatus) ([]models.Pledge, error) {
	q := r.DB(ctx).Where("campaign_id = ?", campaignID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var rows []models.Pledge
	err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}
