package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/internal/repo"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
)

// Repository exposes persistence helpers for invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID, lock bool) (*models.Invoice, error)
	ListReminderCandidates(ctx context.Context, dueBy, remindedBefore time.Time) ([]models.Invoice, error)
	ListFailureCandidates(ctx context.Context) ([]models.Invoice, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	MarkFailureNotified(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (int64, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns an invoices repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: r.Bind(tx)}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID, lock bool) (*models.Invoice, error) {
	q := r.DB(ctx)
	if lock {
		q = repo.ForUpdate(q)
	}
	var invoice models.Invoice
	if err := q.Where("id = ?", id).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ListReminderCandidates returns PENDING invoices due by dueBy that were
// never reminded or last reminded before remindedBefore.
func (r *repositoryImpl) ListReminderCandidates(ctx context.Context, dueBy, remindedBefore time.Time) ([]models.Invoice, error) {
	var rows []models.Invoice
	err := r.DB(ctx).
		Where("status = ? AND due_date <= ?", enums.InvoiceStatusPending, dueBy).
		Where("last_reminder_at IS NULL OR last_reminder_at <= ?", remindedBefore).
		Order("due_date ASC").
		Find(&rows).Error
	return rows, err
}

// ListFailureCandidates returns PAYMENT_FAILED invoices whose buyer was not told yet.
func (r *repositoryImpl) ListFailureCandidates(ctx context.Context) ([]models.Invoice, error) {
	var rows []models.Invoice
	err := r.DB(ctx).
		Where("status = ? AND failure_notified_at IS NULL", enums.InvoiceStatusPaymentFailed).
		Order("updated_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, enums.InvoiceStatusPending).
		Update("last_reminder_at", at)
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) MarkFailureNotified(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status = ? AND failure_notified_at IS NULL", id, enums.InvoiceStatusPaymentFailed).
		Update("failure_notified_at", at)
	return res.RowsAffected, res.Error
}

// MarkPaid settles a PENDING or PAYMENT_FAILED invoice.
func (r *repositoryImpl) MarkPaid(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status IN ?", id, []enums.InvoiceStatus{enums.InvoiceStatusPending, enums.InvoiceStatusPaymentFailed}).
		Update("status", enums.InvoiceStatusPaid)
	return res.RowsAffected, res.Error
}
