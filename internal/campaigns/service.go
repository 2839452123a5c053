package campaigns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/internal/notifications"
	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
	"github.com/angelmondragon/groupbuy-backend/internal/repo"
	"github.com/angelmondragon/groupbuy-backend/pkg/auth"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
	"github.com/angelmondragon/groupbuy-backend/pkg/outbox"
)

// DefaultGraceWindow is how long before the end date a campaign enters its grace period.
const DefaultGraceWindow = 48 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ledger is the part of the pledge ledger the lifecycle engine drives.
type ledger interface {
	WithdrawAllPending(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) (int64, error)
	CommittedQuantity(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) (int, error)
	ListByCampaign(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID, status *enums.PledgeStatus) ([]models.Pledge, error)
}

// Service owns the campaign status state machine.
type Service interface {
	Publish(ctx context.Context, campaignID uuid.UUID, actor auth.Actor) (*models.Campaign, error)
	StartGracePeriod(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error)
	Evaluate(ctx context.Context, campaignID uuid.UUID) (*EvaluationResult, error)
	Complete(ctx context.Context, campaignID uuid.UUID, actor auth.Actor) (*models.Campaign, error)
	GracePeriodCandidates(ctx context.Context) ([]uuid.UUID, error)
	EvaluationCandidates(ctx context.Context) ([]uuid.UUID, error)
}

// EvaluationResult describes what Evaluate decided for a campaign.
type EvaluationResult struct {
	CampaignID        uuid.UUID            `json:"campaign_id"`
	Outcome           enums.CampaignStatus `json:"outcome"`
	CommittedQuantity int                  `json:"committed_quantity"`
	MinimumQuantity   int                  `json:"minimum_quantity"`
	Policy            string               `json:"policy"`
	Withdrawn         int64                `json:"withdrawn"`
	RefundsRequested  int                  `json:"refunds_requested"`
	Quote             pricing.Quote        `json:"-"`
}

// ServiceParams collects the lifecycle engine's collaborators.
type ServiceParams struct {
	Repo        Repository
	Ledger      ledger
	Tx          txRunner
	Outbox      emitter
	Policy      MinimumQuantityPolicy
	Refunds     RefundHook
	Notifier    notifications.Sink
	Metrics     *metrics.LifecycleMetrics
	Logger      *logger.Logger
	GraceWindow time.Duration
}

type service struct {
	repo        Repository
	ledger      ledger
	tx          txRunner
	outbox      emitter
	policy      MinimumQuantityPolicy
	refunds     RefundHook
	notifier    notifications.Sink
	metrics     *metrics.LifecycleMetrics
	logg        *logger.Logger
	graceWindow time.Duration
	now         func() time.Time
}

// NewService builds the lifecycle engine. Policy defaults to the target
// quantity, the refund hook to outbox events, and the notifier to a no-op.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("campaigns repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("pledge ledger required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	policy := params.Policy
	if policy == nil {
		policy = TargetQuantityPolicy{}
	}
	refunds := params.Refunds
	if refunds == nil {
		hook, err := NewOutboxRefundHook(params.Outbox)
		if err != nil {
			return nil, err
		}
		refunds = hook
	}
	window := params.GraceWindow
	if window <= 0 {
		window = DefaultGraceWindow
	}
	return &service{
		repo:        params.Repo,
		ledger:      params.Ledger,
		tx:          params.Tx,
		outbox:      params.Outbox,
		policy:      policy,
		refunds:     refunds,
		notifier:    notifications.NewBestEffort(params.Notifier, params.Logger),
		metrics:     params.Metrics,
		logg:        params.Logger,
		graceWindow: window,
		now:         time.Now,
	}, nil
}

// Publish moves a supplier's DRAFT campaign to ACTIVE after validating its price table.
func (s *service) Publish(ctx context.Context, campaignID uuid.UUID, actor auth.Actor) (*models.Campaign, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}

	var campaign *models.Campaign
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		c, err := s.load(ctx, r, campaignID)
		if err != nil {
			return err
		}
		if !actor.Owns(c.SupplierID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "actor does not belong to the campaign supplier")
		}
		if c.Status != enums.CampaignStatusDraft {
			return pkgerrors.InvalidTransition(string(c.Status), string(enums.CampaignStatusActive))
		}
		if !c.EndDate.After(c.StartDate) {
			return pkgerrors.New(pkgerrors.CodeValidation, "end date must be after start date")
		}
		if c.TargetQuantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "target quantity must be positive")
		}
		brackets, err := r.ListBrackets(ctx, c.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount brackets")
		}
		if err := pricing.Validate(brackets); err != nil {
			return err
		}

		at := s.now().UTC()
		if err := s.transition(ctx, tx, r, c, enums.CampaignStatusActive, map[string]any{"published_at": at}, at, nil); err != nil {
			return err
		}
		c.PublishedAt = &at
		campaign = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, enums.CampaignStatusDraft, campaign)
	return campaign, nil
}

// StartGracePeriod freezes an ACTIVE campaign's pledges. Calling it on a
// campaign that already left ACTIVE is an error, never a no-op.
func (s *service) StartGracePeriod(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}

	var (
		campaign *models.Campaign
		pending  []models.Pledge
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		c, err := s.load(ctx, r, campaignID)
		if err != nil {
			return err
		}
		if c.Status != enums.CampaignStatusActive {
			return pkgerrors.InvalidTransition(string(c.Status), string(enums.CampaignStatusGracePeriod))
		}

		at := s.now().UTC()
		graceEnd := GracePeriodEnd(c.EndDate, s.graceWindow, at)
		if err := s.transition(ctx, tx, r, c, enums.CampaignStatusGracePeriod,
			map[string]any{"grace_period_end_date": graceEnd}, at, nil); err != nil {
			return err
		}
		c.GracePeriodEndDate = &graceEnd

		status := enums.PledgeStatusPending
		pending, err = s.ledger.ListByCampaign(ctx, tx, c.ID, &status)
		if err != nil {
			return err
		}
		campaign = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, enums.CampaignStatusActive, campaign)
	_ = s.notifier.Send(ctx, gracePeriodMessage(*campaign, pending))
	return campaign, nil
}

// Evaluate closes a campaign's grace period. Committed quantity at or above
// the policy minimum locks it; anything less cancels it, withdraws every
// PENDING pledge and requests refunds for COMMITTED ones. All of it commits
// in one transaction.
func (s *service) Evaluate(ctx context.Context, campaignID uuid.UUID) (*EvaluationResult, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}

	var (
		campaign *models.Campaign
		result   *EvaluationResult
		pledges  []models.Pledge
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		c, err := s.load(ctx, r, campaignID)
		if err != nil {
			return err
		}
		if c.Status != enums.CampaignStatusGracePeriod {
			return pkgerrors.InvalidCampaignState(string(c.Status), string(enums.CampaignStatusGracePeriod))
		}

		brackets, err := r.ListBrackets(ctx, c.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount brackets")
		}
		committed, err := s.ledger.CommittedQuantity(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		minimum, err := s.policy.Minimum(*c, brackets)
		if err != nil {
			return err
		}

		res := &EvaluationResult{
			CampaignID:        c.ID,
			CommittedQuantity: committed,
			MinimumQuantity:   minimum,
			Policy:            s.policy.Name(),
			Quote:             pricing.Resolve(brackets, committed),
		}
		at := s.now().UTC()
		measured := &measurement{committed: committed, minimum: minimum}

		if committed >= minimum {
			res.Outcome = enums.CampaignStatusLocked
			if err := s.transition(ctx, tx, r, c, enums.CampaignStatusLocked, map[string]any{"locked_at": at}, at, measured); err != nil {
				return err
			}
			c.LockedAt = &at
			status := enums.PledgeStatusCommitted
			if pledges, err = s.ledger.ListByCampaign(ctx, tx, c.ID, &status); err != nil {
				return err
			}
		} else {
			res.Outcome = enums.CampaignStatusCancelled
			if err := s.transition(ctx, tx, r, c, enums.CampaignStatusCancelled, map[string]any{"cancelled_at": at}, at, measured); err != nil {
				return err
			}
			c.CancelledAt = &at
			if res.Withdrawn, err = s.ledger.WithdrawAllPending(ctx, tx, c.ID); err != nil {
				return err
			}
			if pledges, err = s.ledger.ListByCampaign(ctx, tx, c.ID, nil); err != nil {
				return err
			}
			committedPledges := filterPledges(pledges, enums.PledgeStatusCommitted)
			if res.RefundsRequested, err = s.refunds.RequestRefunds(ctx, tx, *c, committedPledges); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request refunds")
			}
		}

		campaign = c
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, enums.CampaignStatusGracePeriod, campaign)
	if result.Outcome == enums.CampaignStatusLocked {
		_ = s.notifier.Send(ctx, lockedMessage(*campaign, pledges, result.Quote))
	} else {
		_ = s.notifier.Send(ctx, cancelledMessage(*campaign, pledges))
	}
	return result, nil
}

// Complete retires a supplier's LOCKED or CANCELLED campaign.
func (s *service) Complete(ctx context.Context, campaignID uuid.UUID, actor auth.Actor) (*models.Campaign, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}

	var (
		campaign *models.Campaign
		from     enums.CampaignStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		c, err := s.load(ctx, r, campaignID)
		if err != nil {
			return err
		}
		if !actor.Owns(c.SupplierID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "actor does not belong to the campaign supplier")
		}
		from = c.Status
		at := s.now().UTC()
		if err := s.transition(ctx, tx, r, c, enums.CampaignStatusDone, map[string]any{"completed_at": at}, at, nil); err != nil {
			return err
		}
		c.CompletedAt = &at
		campaign = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, from, campaign)
	return campaign, nil
}

// GracePeriodCandidates lists ACTIVE campaigns ending within the grace window.
func (s *service) GracePeriodCandidates(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListEndingBy(ctx, s.now().UTC().Add(s.graceWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list grace period candidates")
	}
	return ids, nil
}

// EvaluationCandidates lists GRACE_PERIOD campaigns whose grace period has elapsed.
func (s *service) EvaluationCandidates(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListGraceElapsed(ctx, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list evaluation candidates")
	}
	return ids, nil
}

// GracePeriodEnd is endDate minus window, or now when that moment already passed.
func GracePeriodEnd(endDate time.Time, window time.Duration, now time.Time) time.Time {
	end := endDate.UTC().Add(-window)
	if end.Before(now) {
		return now
	}
	return end
}

type measurement struct {
	committed int
	minimum   int
}

func (s *service) load(ctx context.Context, r Repository, id uuid.UUID) (*models.Campaign, error) {
	c, err := r.FindByID(ctx, id, true)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
	}
	return c, nil
}

// transition applies c.Status -> to with a conditional update and queues the
// matching outbox event in the same transaction.
func (s *service) transition(ctx context.Context, tx *gorm.DB, r Repository, c *models.Campaign, to enums.CampaignStatus, fields map[string]any, at time.Time, m *measurement) error {
	from := c.Status
	if !from.CanTransitionTo(to) {
		return pkgerrors.InvalidTransition(string(from), string(to))
	}

	affected, err := r.UpdateStatus(ctx, c.ID, from, to, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("mark campaign %s", to))
	}
	if affected == 0 {
		current := "unknown"
		if fresh, findErr := r.FindByID(ctx, c.ID, false); findErr == nil {
			current = string(fresh.Status)
		}
		return pkgerrors.InvalidCampaignState(current, string(from))
	}
	c.Status = to

	payload := outbox.CampaignTransitionedEvent{
		CampaignID: c.ID,
		SupplierID: c.SupplierID,
		From:       from,
		To:         to,
		At:         at,
	}
	if m != nil {
		committed, minimum := m.committed, m.minimum
		payload.CommittedQuantity = &committed
		payload.MinimumQuantity = &minimum
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     transitionEvents[to],
		AggregateType: enums.AggregateCampaign,
		AggregateID:   c.ID,
		Data:          payload,
		OccurredAt:    at,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue campaign event")
	}
	return nil
}

func (s *service) afterTransition(ctx context.Context, from enums.CampaignStatus, c *models.Campaign) {
	s.metrics.IncTransition(string(from), string(c.Status))
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithCampaignID(ctx, c.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": from, "to": c.Status})
	s.logg.Info(logCtx, "campaign transitioned")
}

var transitionEvents = map[enums.CampaignStatus]enums.OutboxEventType{
	enums.CampaignStatusActive:      enums.EventCampaignPublished,
	enums.CampaignStatusGracePeriod: enums.EventCampaignGraceStarted,
	enums.CampaignStatusLocked:      enums.EventCampaignLocked,
	enums.CampaignStatusCancelled:   enums.EventCampaignCancelled,
	enums.CampaignStatusDone:        enums.EventCampaignCompleted,
}

func filterPledges(pledges []models.Pledge, status enums.PledgeStatus) []models.Pledge {
	out := make([]models.Pledge, 0, len(pledges))
	for _, p := range pledges {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}
