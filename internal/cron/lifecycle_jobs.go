package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/internal/campaigns"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
)

const (
	JobGracePeriod        = "grace-period"
	JobCampaignEvaluation = "campaign-evaluation"
)

type gracePeriodStarter interface {
	GracePeriodCandidates(ctx context.Context) ([]uuid.UUID, error)
	StartGracePeriod(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error)
}

type campaignEvaluator interface {
	EvaluationCandidates(ctx context.Context) ([]uuid.UUID, error)
	Evaluate(ctx context.Context, campaignID uuid.UUID) (*campaigns.EvaluationResult, error)
}

type GracePeriodJobParams struct {
	Logger    *logger.Logger
	Campaigns gracePeriodStarter
	Metrics   *metrics.CronJobMetrics
}

// NewGracePeriodJob moves ACTIVE campaigns nearing their end date into the grace period.
func NewGracePeriodJob(params GracePeriodJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Campaigns == nil {
		return nil, fmt.Errorf("campaign service required")
	}
	return &gracePeriodJob{logg: params.Logger, campaigns: params.Campaigns, metrics: params.Metrics}, nil
}

type gracePeriodJob struct {
	logg      *logger.Logger
	campaigns gracePeriodStarter
	metrics   *metrics.CronJobMetrics
}

func (j *gracePeriodJob) Name() string { return JobGracePeriod }

func (j *gracePeriodJob) Run(ctx context.Context) error {
	ids, err := j.campaigns.GracePeriodCandidates(ctx)
	if err != nil {
		return fmt.Errorf("list grace period candidates: %w", err)
	}
	return RunBatch(ctx, Batch[uuid.UUID]{
		Job:     JobGracePeriod,
		Logger:  j.logg,
		Metrics: j.metrics,
		Fields:  campaignFields,
		Process: func(ctx context.Context, id uuid.UUID) error {
			_, err := j.campaigns.StartGracePeriod(ctx, id)
			return err
		},
	}, ids).Err()
}

type CampaignEvaluationJobParams struct {
	Logger    *logger.Logger
	Campaigns campaignEvaluator
	Metrics   *metrics.CronJobMetrics
}

// NewCampaignEvaluationJob locks or cancels campaigns whose grace period has elapsed.
func NewCampaignEvaluationJob(params CampaignEvaluationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Campaigns == nil {
		return nil, fmt.Errorf("campaign service required")
	}
	return &campaignEvaluationJob{logg: params.Logger, campaigns: params.Campaigns, metrics: params.Metrics}, nil
}

type campaignEvaluationJob struct {
	logg      *logger.Logger
	campaigns campaignEvaluator
	metrics   *metrics.CronJobMetrics
}

func (j *campaignEvaluationJob) Name() string { return JobCampaignEvaluation }

func (j *campaignEvaluationJob) Run(ctx context.Context) error {
	ids, err := j.campaigns.EvaluationCandidates(ctx)
	if err != nil {
		return fmt.Errorf("list evaluation candidates: %w", err)
	}
	return RunBatch(ctx, Batch[uuid.UUID]{
		Job:     JobCampaignEvaluation,
		Logger:  j.logg,
		Metrics: j.metrics,
		Fields:  campaignFields,
		Process: func(ctx context.Context, id uuid.UUID) error {
			result, err := j.campaigns.Evaluate(ctx, id)
			if err != nil {
				return err
			}
			j.logg.Info(j.logg.WithFields(ctx, map[string]any{
				"outcome":            result.Outcome,
				"committed_quantity": result.CommittedQuantity,
				"minimum_quantity":   result.MinimumQuantity,
			}), "campaign evaluated")
			return nil
		},
	}, ids).Err()
}

func campaignFields(id uuid.UUID) map[string]any {
	return map[string]any{"campaign_id": id.String()}
}
