package pledges

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/internal/repo"
	"github.com/angelmondragon/groupbuy-backend/pkg/auth"
	dbpkg "github.com/angelmondragon/groupbuy-backend/pkg/db"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
)

const uniqueCampaignBuyer = "ux_pledges_campaign_buyer"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the pledge ledger. Every pledge status change goes through it.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Pledge, error)
	UpdateQuantity(ctx context.Context, pledgeID uuid.UUID, actor auth.Actor, quantity int) (*models.Pledge, error)
	Commit(ctx context.Context, pledgeID uuid.UUID, actor auth.Actor) (*models.Pledge, error)
	Withdraw(ctx context.Context, pledgeID uuid.UUID, actor auth.Actor) (*models.Pledge, error)
	WithdrawAllPending(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) (int64, error)
	CommittedQuantity(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) (int, error)
	ListByCampaign(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID, status *enums.PledgeStatus) ([]models.Pledge, error)
}

// CreateInput carries the data required to open a pledge.
type CreateInput struct {
	CampaignID          uuid.UUID
	BuyerOrganizationID uuid.UUID
	Actor               auth.Actor
	Quantity            int
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService builds the pledge ledger.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("pledges repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Pledge, error) {
	if input.CampaignID == uuid.Nil || input.BuyerOrganizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign and buyer organization are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if !input.Actor.Owns(input.BuyerOrganizationID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "actor does not belong to the buyer organization")
	}

	var created *models.Pledge
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		campaign, err := r.FindCampaign(ctx, input.CampaignID, true)
		if err != nil {
			return campaignLookupError(err)
		}
		if !campaign.Status.AcceptsPledges() {
			return pkgerrors.InvalidCampaignState(string(campaign.Status),
				string(enums.CampaignStatusActive), string(enums.CampaignStatusGracePeriod))
		}

		if _, err := r.FindByCampaignAndBuyer(ctx, input.CampaignID, input.BuyerOrganizationID); err == nil {
			return duplicatePledge()
		} else if !repo.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing pledge")
		}

		pledge := &models.Pledge{
			CampaignID:          input.CampaignID,
			BuyerOrganizationID: input.BuyerOrganizationID,
			Quantity:            input.Quantity,
			Status:              enums.PledgeStatusPending,
		}
		if err := r.Create(ctx, pledge); err != nil {
			if dbpkg.IsUniqueViolation(err, uniqueCampaignBuyer, "pledges.campaign_id") {
				return duplicatePledge()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pledge")
		}
		created = pledge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) UpdateQuantity(ctx context.Context, pledgeID uuid.UUID, actor auth.Actor, quantity int) (*models.Pledge, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	return s.mutate(ctx, pledgeID, actor, []enums.CampaignStatus{enums.CampaignStatusActive},
		func(r Repository, pledge *models.Pledge) error {
			affected, err := r.UpdateQuantity(ctx, pledge.ID, quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pledge quantity")
			}
			if affected == 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "pledge changed concurrently")
			}
			pledge.Quantity = quantity
			return nil
		})
}

// Commit turns a PENDING pledge into a binding COMMITTED one. Only possible
// while the campaign is in GRACE_PERIOD.
func (s *service) Commit(ctx context.Context, pledgeID uuid.UUID, actor auth.Actor) (*models.Pledge, error) {
	return s.mutate(ctx, pledgeID, actor, []enums.CampaignStatus{enums.CampaignStatusGracePeriod},
		func(r Repository, pledge *models.Pledge) error {
			return s.transition(ctx, r, pledge, enums.PledgeStatusCommitted)
		})
}

// Withdraw is buyer self-service and only allowed while the campaign is ACTIVE.
func (s *service) Withdraw(ctx context.Context, pledgeID uuid.UUID, actor auth.Actor) (*models.Pledge, error) {
	return s.mutate(ctx, pledgeID, actor, []enums.CampaignStatus{enums.CampaignStatusActive},
		func(r Repository, pledge *models.Pledge) error {
			return s.transition(ctx, r, pledge, enums.PledgeStatusWithdrawn)
		})
}

func (s *service) WithdrawAllPending(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) (int64, error) {
	if campaignID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	n, err := s.repo.WithTx(tx).WithdrawAllPending(ctx, campaignID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw pending pledges")
	}
	return n, nil
}

func (s *service) CommittedQuantity(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) (int, error) {
	total, err := s.repo.WithTx(tx).SumCommitted(ctx, campaignID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum committed pledges")
	}
	return total, nil
}

func (s *service) ListByCampaign(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID, status *enums.PledgeStatus) ([]models.Pledge, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown pledge status %q", *status))
	}
	rows, err := s.repo.WithTx(tx).ListByCampaign(ctx, campaignID, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pledges")
	}
	return rows, nil
}

// mutate loads and authorizes a pledge, checks its campaign is in one of the
// allowed statuses and its own status is PENDING, then applies fn in the same
// transaction. Checks run in that order so callers get the most specific error.
func (s *service) mutate(ctx context.Context, pledgeID uuid.UUID, actor auth.Actor, allowed []enums.CampaignStatus, fn func(Repository, *models.Pledge) error) (*models.Pledge, error) {
	if pledgeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pledge id required")
	}

	var result *models.Pledge
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		pledge, err := r.FindByID(ctx, pledgeID, true)
		if err != nil {
			if repo.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "pledge not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pledge")
		}
		if !actor.Owns(pledge.BuyerOrganizationID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "actor does not belong to the pledge's buyer organization")
		}

		campaign, err := r.FindCampaign(ctx, pledge.CampaignID, true)
		if err != nil {
			return campaignLookupError(err)
		}
		if !statusIn(campaign.Status, allowed) {
			required := make([]string, len(allowed))
			for i, st := range allowed {
				required[i] = string(st)
			}
			return pkgerrors.InvalidCampaignState(string(campaign.Status), required...)
		}
		if pledge.Status != enums.PledgeStatusPending {
			return pkgerrors.InvalidPledgeState(string(pledge.Status), string(enums.PledgeStatusPending))
		}

		if err := fn(r, pledge); err != nil {
			return err
		}
		result = pledge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) transition(ctx context.Context, r Repository, pledge *models.Pledge, to enums.PledgeStatus) error {
	at := s.now().UTC()
	affected, err := r.TransitionStatus(ctx, pledge.ID, enums.PledgeStatusPending, to, at)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("mark pledge %s", to))
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "pledge changed concurrently")
	}
	pledge.Status = to
	switch to {
	case enums.PledgeStatusCommitted:
		pledge.CommittedAt = &at
	case enums.PledgeStatusWithdrawn:
		pledge.WithdrawnAt = &at
	}
	return nil
}

func statusIn(status enums.CampaignStatus, allowed []enums.CampaignStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}

func campaignLookupError(err error) error {
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
}

func duplicatePledge() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "buyer organization already pledged to this campaign")
}
