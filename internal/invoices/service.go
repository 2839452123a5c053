package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/internal/notifications"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
)

const (
	DefaultReminderWindow  = 72 * time.Hour
	DefaultReminderBackoff = 24 * time.Hour
)

// Service drives the payment reminder and payment failed notices.
type Service interface {
	ReminderCandidates(ctx context.Context) ([]models.Invoice, error)
	SendReminder(ctx context.Context, invoice models.Invoice) error
	FailureCandidates(ctx context.Context) ([]models.Invoice, error)
	NotifyFailure(ctx context.Context, invoice models.Invoice) error
}

type service struct {
	repo    Repository
	sink    notifications.Sink
	window  time.Duration
	backoff time.Duration
	now     func() time.Time
}

// NewService builds the invoice notice service. Zero durations fall back to the defaults.
func NewService(repo Repository, sink notifications.Sink, window, backoff time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if sink == nil {
		return nil, fmt.Errorf("notification sink required")
	}
	if window <= 0 {
		window = DefaultReminderWindow
	}
	if backoff <= 0 {
		backoff = DefaultReminderBackoff
	}
	return &service{repo: repo, sink: sink, window: window, backoff: backoff, now: time.Now}, nil
}

func (s *service) ReminderCandidates(ctx context.Context) ([]models.Invoice, error) {
	now := s.now().UTC()
	rows, err := s.repo.ListReminderCandidates(ctx, now.Add(s.window), now.Add(-s.backoff))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reminder candidates")
	}
	return rows, nil
}

// SendReminder notifies the buyer first and records the reminder after, so a
// failed send is retried on the next run.
func (s *service) SendReminder(ctx context.Context, invoice models.Invoice) error {
	id := invoice.ID
	campaignID := invoice.CampaignID
	msg := notifications.Message{
		Type:       enums.NotificationTypePaymentReminder,
		Recipients: []uuid.UUID{invoice.BuyerOrganizationID},
		Title:      "Payment due",
		Body: fmt.Sprintf("Invoice for %s is due on %s.",
			invoice.AmountDue.StringFixed(2), invoice.DueDate.UTC().Format("2006-01-02")),
		Link:       invoiceLink(id),
		CampaignID: &campaignID,
		InvoiceID:  &id,
	}
	if err := s.sink.Send(ctx, msg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send payment reminder")
	}
	if _, err := s.repo.MarkReminded(ctx, id, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice reminded")
	}
	return nil
}

func (s *service) FailureCandidates(ctx context.Context) ([]models.Invoice, error) {
	rows, err := s.repo.ListFailureCandidates(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment failure candidates")
	}
	return rows, nil
}

func (s *service) NotifyFailure(ctx context.Context, invoice models.Invoice) error {
	id := invoice.ID
	campaignID := invoice.CampaignID
	msg := notifications.Message{
		Type:       enums.NotificationTypePaymentFailed,
		Recipients: []uuid.UUID{invoice.BuyerOrganizationID},
		Title:      "Payment failed",
		Body:       fmt.Sprintf("Payment of %s could not be processed. Update your payment method to keep your order.", invoice.AmountDue.StringFixed(2)),
		Link:       invoiceLink(id),
		CampaignID: &campaignID,
		InvoiceID:  &id,
	}
	if err := s.sink.Send(ctx, msg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send payment failed notice")
	}
	if _, err := s.repo.MarkFailureNotified(ctx, id, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice failure notified")
	}
	return nil
}

func invoiceLink(id uuid.UUID) *string {
	link := fmt.Sprintf("/invoices/%s", id)
	return &link
}
