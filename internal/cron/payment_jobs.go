package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
)

const (
	JobPaymentReminder = "payment-reminder"
	JobPaymentFailed   = "payment-failed"
)

type paymentReminder interface {
	ReminderCandidates(ctx context.Context) ([]models.Invoice, error)
	SendReminder(ctx context.Context, invoice models.Invoice) error
}

type paymentFailureNotifier interface {
	FailureCandidates(ctx context.Context) ([]models.Invoice, error)
	NotifyFailure(ctx context.Context, invoice models.Invoice) error
}

type PaymentReminderJobParams struct {
	Logger   *logger.Logger
	Invoices paymentReminder
	Metrics  *metrics.CronJobMetrics
}

// NewPaymentReminderJob reminds buyers about invoices coming due.
func NewPaymentReminderJob(params PaymentReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	return &paymentReminderJob{logg: params.Logger, invoices: params.Invoices, metrics: params.Metrics}, nil
}

type paymentReminderJob struct {
	logg     *logger.Logger
	invoices paymentReminder
	metrics  *metrics.CronJobMetrics
}

func (j *paymentReminderJob) Name() string { return JobPaymentReminder }

func (j *paymentReminderJob) Run(ctx context.Context) error {
	invoices, err := j.invoices.ReminderCandidates(ctx)
	if err != nil {
		return fmt.Errorf("list reminder candidates: %w", err)
	}
	return RunBatch(ctx, Batch[models.Invoice]{
		Job:     JobPaymentReminder,
		Logger:  j.logg,
		Metrics: j.metrics,
		Fields:  invoiceFields,
		Process: j.invoices.SendReminder,
	}, invoices).Err()
}

type PaymentFailedJobParams struct {
	Logger   *logger.Logger
	Invoices paymentFailureNotifier
	Metrics  *metrics.CronJobMetrics
}

// NewPaymentFailedJob tells buyers once that their invoice payment failed.
func NewPaymentFailedJob(params PaymentFailedJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	return &paymentFailedJob{logg: params.Logger, invoices: params.Invoices, metrics: params.Metrics}, nil
}

type paymentFailedJob struct {
	logg     *logger.Logger
	invoices paymentFailureNotifier
	metrics  *metrics.CronJobMetrics
}

func (j *paymentFailedJob) Name() string { return JobPaymentFailed }

func (j *paymentFailedJob) Run(ctx context.Context) error {
	invoices, err := j.invoices.FailureCandidates(ctx)
	if err != nil {
		return fmt.Errorf("list payment failure candidates: %w", err)
	}
	return RunBatch(ctx, Batch[models.Invoice]{
		Job:     JobPaymentFailed,
		Logger:  j.logg,
		Metrics: j.metrics,
		Fields:  invoiceFields,
		Process: j.invoices.NotifyFailure,
	}, invoices).Err()
}

func invoiceFields(inv models.Invoice) map[string]any {
	return map[string]any{
		"invoice_id":  inv.ID.String(),
		"campaign_id": inv.CampaignID.String(),
	}
}
