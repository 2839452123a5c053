package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/internal/invoices"
	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
	"github.com/angelmondragon/groupbuy-backend/internal/repo"
	"github.com/angelmondragon/groupbuy-backend/pkg/auth"
	dbpkg "github.com/angelmondragon/groupbuy-backend/pkg/db"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
	"github.com/angelmondragon/groupbuy-backend/pkg/outbox"
)

const (
	uniquePaymentID = "ux_orders_payment_id"
	uniqueInvoiceID = "ux_orders_invoice_id"

	resultCreated  = "created"
	resultExisting = "existing"
)

var errDuplicateOrder = errors.New("order already exists for payment or invoice")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type committedQuantity interface {
	CommittedQuantity(ctx context.Context, tx *gorm.DB, campaignID uuid.UUID) (int, error)
}

// Payment is the provider-neutral payment the order hookpoint receives.
type Payment struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	Status    enums.PaymentStatus
	PaidAt    time.Time
}

// Result reports the order for a payment and whether this call created it.
type Result struct {
	Order   *models.Order
	Created bool
}

// Service materializes orders from successful payments and moves them through fulfillment.
type Service interface {
	CreateOrderFromPayment(ctx context.Context, payment Payment) (*Result, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, actor auth.Actor, to enums.OrderStatus) (*models.Order, error)
}

// ServiceParams collects the order materializer's collaborators.
type ServiceParams struct {
	Repo     Repository
	Invoices invoices.Repository
	Brackets *pricing.Repository
	Ledger   committedQuantity
	Tx       txRunner
	Outbox   outboxPublisher
	Metrics  *metrics.LifecycleMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	invoices invoices.Repository
	brackets *pricing.Repository
	ledger   committedQuantity
	tx       txRunner
	outbox   outboxPublisher
	metrics  *metrics.LifecycleMetrics
	logg     *logger.Logger
}

// NewService builds the order materializer with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if params.Brackets == nil {
		return nil, fmt.Errorf("brackets repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("pledge ledger required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     params.Repo,
		invoices: params.Invoices,
		brackets: params.Brackets,
		ledger:   params.Ledger,
		tx:       params.Tx,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// CreateOrderFromPayment creates exactly one order per payment id. Replays
// and racing duplicates return the existing order unchanged. The unit price
// comes from the campaign's final committed quantity, not the pledge-time tier.
func (s *service) CreateOrderFromPayment(ctx context.Context, payment Payment) (*Result, error) {
	if payment.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if payment.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	if payment.Status != enums.PaymentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment status %q does not create orders", payment.Status))
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		existing, err := r.FindByPaymentID(ctx, payment.ID)
		if err == nil {
			result = &Result{Order: existing}
			return nil
		}
		if !repo.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by payment")
		}

		invoice, err := s.invoices.WithTx(tx).FindByID(ctx, payment.InvoiceID, true)
		if err != nil {
			return lookupError(err, "invoice")
		}
		switch invoice.Status {
		case enums.InvoiceStatusVoid:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is void")
		case enums.InvoiceStatusPaid:
			// The invoice lock may have waited on the writer of this same payment.
			existing, err := r.FindByPaymentID(ctx, payment.ID)
			if err == nil {
				result = &Result{Order: existing}
				return nil
			}
			if !repo.IsNotFound(err) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by payment")
			}
			return invoiceSettled(invoice.ID)
		}

		campaign, err := r.FindCampaign(ctx, invoice.CampaignID)
		if err != nil {
			return lookupError(err, "campaign")
		}
		if campaign.Status != enums.CampaignStatusLocked && campaign.Status != enums.CampaignStatusDone {
			return pkgerrors.InvalidCampaignState(string(campaign.Status),
				string(enums.CampaignStatusLocked), string(enums.CampaignStatusDone))
		}

		pledge, err := r.FindPledge(ctx, invoice.PledgeID)
		if err != nil {
			return lookupError(err, "pledge")
		}
		if pledge.Status != enums.PledgeStatusCommitted {
			return pkgerrors.InvalidPledgeState(string(pledge.Status), string(enums.PledgeStatusCommitted))
		}

		committed, err := s.ledger.CommittedQuantity(ctx, tx, campaign.ID)
		if err != nil {
			return err
		}
		brackets, err := s.brackets.WithTx(tx).ListByCampaign(ctx, campaign.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount brackets")
		}
		quote := pricing.Resolve(brackets, committed)
		if !quote.Priced() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "campaign has no price for its committed quantity").
				WithDetails(map[string]any{"committed_quantity": committed})
		}

		unit := quote.UnitPrice()
		order := &models.Order{
			PaymentID:           payment.ID,
			InvoiceID:           invoice.ID,
			CampaignID:          campaign.ID,
			PledgeID:            pledge.ID,
			BuyerOrganizationID: pledge.BuyerOrganizationID,
			SupplierID:          campaign.SupplierID,
			ShippingAddressID:   invoice.ShippingAddressID,
			Quantity:            pledge.Quantity,
			UnitPrice:           unit,
			TotalAmount:         unit.Mul(decimal.NewFromInt(int64(pledge.Quantity))),
			Status:              enums.OrderStatusPending,
		}
		if err := r.Create(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, uniquePaymentID, "orders.payment_id", uniqueInvoiceID, "orders.invoice_id") {
				return errDuplicateOrder
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		settled, err := s.invoices.WithTx(tx).MarkPaid(ctx, invoice.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice paid")
		}
		if settled == 0 {
			return invoiceSettled(invoice.ID)
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: outbox.OrderCreatedEvent{
				OrderID:             order.ID,
				PaymentID:           payment.ID,
				CampaignID:          campaign.ID,
				BuyerOrganizationID: order.BuyerOrganizationID,
				SupplierID:          order.SupplierID,
				Quantity:            order.Quantity,
				UnitPrice:           order.UnitPrice,
				TotalAmount:         order.TotalAmount,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order event")
		}

		if !payment.Amount.IsZero() && !payment.Amount.Equal(order.TotalAmount) && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"payment_id":   payment.ID.String(),
				"paid_amount":  payment.Amount.String(),
				"order_amount": order.TotalAmount.String(),
			})
			s.logg.Warn(logCtx, "payment amount differs from order total")
		}
		result = &Result{Order: order, Created: true}
		return nil
	})
	if errors.Is(err, errDuplicateOrder) {
		existing, findErr := s.repo.FindByPaymentID(ctx, payment.ID)
		switch {
		case findErr == nil:
			result, err = &Result{Order: existing}, nil
		case repo.IsNotFound(findErr):
			return nil, invoiceSettled(payment.InvoiceID)
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload order after duplicate payment")
		}
	}
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.metrics.IncOrder(resultCreated)
	} else {
		s.metrics.IncOrder(resultExisting)
	}
	if s.logg != nil {
		logCtx := s.logg.WithCampaignID(ctx, result.Order.CampaignID.String())
		logCtx = s.logg.WithOrderID(logCtx, result.Order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"payment_id": payment.ID.String(),
			"created":    result.Created,
		})
		s.logg.Info(logCtx, "order materialized")
	}
	return result, nil
}

// UpdateStatus applies a fulfillment transition. Only the supplier may move its orders.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, actor auth.Actor, to enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", to))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r := s.repo.WithTx(tx)
		order, err := r.FindByID(ctx, orderID, true)
		if err != nil {
			return lookupError(err, "order")
		}
		if !actor.Owns(order.SupplierID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "actor does not belong to the order supplier")
		}
		from := order.Status
		if !from.CanTransitionTo(to) {
			return pkgerrors.InvalidTransition(string(from), string(to))
		}
		affected, err := r.UpdateStatus(ctx, order.ID, from, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		order.Status = to

		orgID := actor.OrganizationID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, OrganizationID: &orgID},
			Data:          outbox.OrderStatusChangedEvent{OrderID: order.ID, From: from, To: to},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order status event")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func lookupError(err error, subject string) error {
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, subject+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+subject)
}

// invoiceSettled rejects a payment for an invoice another payment already settled.
func invoiceSettled(invoiceID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice already settled by another payment").
		WithDetails(map[string]any{"invoice_id": invoiceID.String()})
}
