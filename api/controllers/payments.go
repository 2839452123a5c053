package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupbuy-backend/api/responses"
	"github.com/angelmondragon/groupbuy-backend/api/validators"
	"github.com/angelmondragon/groupbuy-backend/internal/orders"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/webhook"
)

// PaymentWebhookConsumer scopes idempotency claims for payment deliveries.
const PaymentWebhookConsumer = "payment-webhook"

// DeliveryGuard claims a delivery key so concurrent retries are processed once.
type DeliveryGuard interface {
	Claim(ctx context.Context, consumer, key string) (bool, error)
	Release(ctx context.Context, consumer, key string) error
}

// SignatureVerifier authenticates a raw webhook body against its signature header.
type SignatureVerifier interface {
	Verify(payload []byte, header string) error
}

type paymentWebhookRequest struct {
	PaymentID string          `json:"payment_id" validate:"required,uuid"`
	InvoiceID string          `json:"invoice_id" validate:"required,uuid"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status" validate:"required"`
	PaidAt    *time.Time      `json:"paid_at"`
}

type paymentWebhookResponse struct {
	Status  string         `json:"status"`
	Created bool           `json:"created"`
	Order   *orderResponse `json:"order,omitempty"`
}

// PaymentWebhook turns a successful, signed payment delivery into exactly one
// order. Unsigned bodies are rejected before decoding. Non-successful payments
// are acknowledged without side effects.
func PaymentWebhook(svc orders.Service, verifier SignatureVerifier, guard DeliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment signature verifier unavailable"))
			return
		}

		payload, err := validators.ReadBody(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := verifier.Verify(payload, r.Header.Get(webhook.SignatureHeader)); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid payment signature"))
			return
		}

		var req paymentWebhookRequest
		if err := validators.DecodeJSON(payload, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParsePaymentStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"payment_id":     req.PaymentID,
				"invoice_id":     req.InvoiceID,
				"payment_status": status,
			})
		}

		if status != enums.PaymentStatusSucceeded {
			if logg != nil {
				logg.Info(ctx, "payment.webhook.ignored")
			}
			responses.WriteSuccess(w, paymentWebhookResponse{Status: "ignored"})
			return
		}

		claimed := false
		if guard != nil {
			ok, err := guard.Claim(ctx, PaymentWebhookConsumer, req.PaymentID)
			switch {
			case err != nil:
				// orders stay unique per payment id without the guard
				if logg != nil {
					logg.Warn(ctx, "payment.webhook.guard_unavailable")
				}
			case !ok:
				if logg != nil {
					logg.Info(ctx, "payment.webhook.duplicate")
				}
				responses.WriteSuccess(w, paymentWebhookResponse{Status: "duplicate"})
				return
			default:
				claimed = true
			}
		}

		payment := orders.Payment{
			ID:        uuid.MustParse(req.PaymentID),
			InvoiceID: uuid.MustParse(req.InvoiceID),
			Amount:    req.Amount,
			Status:    status,
			PaidAt:    time.Now().UTC(),
		}
		if req.PaidAt != nil {
			payment.PaidAt = req.PaidAt.UTC()
		}

		result, err := svc.CreateOrderFromPayment(ctx, payment)
		if err != nil {
			if claimed {
				if relErr := guard.Release(context.WithoutCancel(ctx), PaymentWebhookConsumer, req.PaymentID); relErr != nil && logg != nil {
					logg.Error(ctx, "payment.webhook.release_failed", relErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order := toOrderResponse(result.Order)
		resp := paymentWebhookResponse{Status: "processed", Created: result.Created, Order: &order}
		if result.Created {
			responses.WriteSuccessStatus(w, http.StatusCreated, resp)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
