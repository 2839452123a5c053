package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupbuy-backend/internal/orders"
	"github.com/angelmondragon/groupbuy-backend/pkg/auth"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/webhook"
)

type testGuard struct {
	claimed  map[string]bool
	claimErr error
	released []string
}

func (g *testGuard) Claim(_ context.Context, consumer, key string) (bool, error) {
	if g.claimErr != nil {
		return false, g.claimErr
	}
	if g.claimed == nil {
		g.claimed = map[string]bool{}
	}
	k := consumer + ":" + key
	if g.claimed[k] {
		return false, nil
	}
	g.claimed[k] = true
	return true, nil
}

func (g *testGuard) Release(_ context.Context, consumer, key string) error {
	k := consumer + ":" + key
	delete(g.claimed, k)
	g.released = append(g.released, k)
	return nil
}

func paymentBody(status enums.PaymentStatus) map[string]any {
	return map[string]any{
		"payment_id": uuid.NewString(),
		"invoice_id": uuid.NewString(),
		"amount":     "4800.00",
		"status":     string(status),
	}
}

func createdOrder(payment orders.Payment) *orders.Result {
	return &orders.Result{
		Created: true,
		Order: &models.Order{
			ID:          uuid.New(),
			PaymentID:   payment.ID,
			InvoiceID:   payment.InvoiceID,
			Quantity:    60,
			UnitPrice:   decimal.NewFromInt(80),
			TotalAmount: decimal.NewFromInt(4800),
			Status:      enums.OrderStatusPending,
		},
	}
}

const testWebhookSecret = "whsec_test"

func testVerifier(t *testing.T) *webhook.Verifier {
	t.Helper()
	v, err := webhook.NewVerifier(testWebhookSecret, 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func postPayment(handler http.HandlerFunc, body map[string]any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	return postSignedPayment(handler, raw, webhook.Sign(testWebhookSecret, raw, time.Now()))
}

func postSignedPayment(handler http.HandlerFunc, raw []byte, signature string) *httptest.ResponseRecorder {
	req := newRequest(http.MethodPost, "/api/v1/webhooks/payments", nil, auth.Actor{}, nil)
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	resp := httptest.NewRecorder()
	handler(resp, req)
	return resp
}

func TestPaymentWebhookCreatesOrder(t *testing.T) {
	body := paymentBody(enums.PaymentStatusSucceeded)
	svc := &testOrderService{createFn: func(_ context.Context, payment orders.Payment) (*orders.Result, error) {
		if payment.ID.String() != body["payment_id"] || payment.Status != enums.PaymentStatusSucceeded {
			t.Fatalf("unexpected payment %+v", payment)
		}
		if !payment.Amount.Equal(decimal.NewFromInt(4800)) {
			t.Fatalf("unexpected amount %s", payment.Amount)
		}
		return createdOrder(payment), nil
	}}

	resp := postPayment(PaymentWebhook(svc, testVerifier(t), &testGuard{}, testLogger()), body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var out paymentWebhookResponse
	if err := json.Unmarshal(decodeEnvelope(t, resp).Data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Created || out.Order == nil || !out.Order.TotalAmount.Equal(decimal.NewFromInt(4800)) {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestPaymentWebhookDuplicateDeliveryIsAcknowledged(t *testing.T) {
	body := paymentBody(enums.PaymentStatusSucceeded)
	svc := &testOrderService{createFn: func(_ context.Context, payment orders.Payment) (*orders.Result, error) {
		return createdOrder(payment), nil
	}}
	guard := &testGuard{}
	handler := PaymentWebhook(svc, testVerifier(t), guard, testLogger())

	if resp := postPayment(handler, body); resp.Code != http.StatusCreated {
		t.Fatalf("first delivery: expected 201 got %d", resp.Code)
	}
	resp := postPayment(handler, body)
	if resp.Code != http.StatusOK {
		t.Fatalf("replay: expected 200 got %d", resp.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("expected one order attempt, got %d", svc.calls)
	}
}

func TestPaymentWebhookReleasesClaimOnFailure(t *testing.T) {
	body := paymentBody(enums.PaymentStatusSucceeded)
	svc := &testOrderService{createFn: func(context.Context, orders.Payment) (*orders.Result, error) {
		return nil, pkgerrors.InvalidCampaignState(string(enums.CampaignStatusGracePeriod),
			string(enums.CampaignStatusLocked), string(enums.CampaignStatusDone))
	}}
	guard := &testGuard{}

	resp := postPayment(PaymentWebhook(svc, testVerifier(t), guard, testLogger()), body)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if len(guard.released) != 1 || guard.released[0] != PaymentWebhookConsumer+":"+body["payment_id"].(string) {
		t.Fatalf("expected claim released, got %v", guard.released)
	}
}

func TestPaymentWebhookProceedsWhenGuardUnavailable(t *testing.T) {
	svc := &testOrderService{createFn: func(_ context.Context, payment orders.Payment) (*orders.Result, error) {
		res := createdOrder(payment)
		res.Created = false
		return res, nil
	}}
	resp := postPayment(PaymentWebhook(svc, testVerifier(t), &testGuard{claimErr: errors.New("redis down")}, testLogger()), paymentBody(enums.PaymentStatusSucceeded))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("expected order service called once, got %d", svc.calls)
	}
}

func TestPaymentWebhookIgnoresFailedPayments(t *testing.T) {
	svc := &testOrderService{createFn: func(context.Context, orders.Payment) (*orders.Result, error) {
		t.Fatal("failed payments must not create orders")
		return nil, nil
	}}
	resp := postPayment(PaymentWebhook(svc, testVerifier(t), &testGuard{}, testLogger()), paymentBody(enums.PaymentStatusFailed))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPaymentWebhookValidatesPayload(t *testing.T) {
	svc := &testOrderService{}
	for name, body := range map[string]map[string]any{
		"missing payment id": {"invoice_id": uuid.NewString(), "status": "SUCCEEDED"},
		"unknown status":     {"payment_id": uuid.NewString(), "invoice_id": uuid.NewString(), "status": "REFUNDED"},
	} {
		t.Run(name, func(t *testing.T) {
			resp := postPayment(PaymentWebhook(svc, testVerifier(t), &testGuard{}, testLogger()), body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
		})
	}
}

func TestPaymentWebhookRejectsUnsignedDeliveries(t *testing.T) {
	svc := &testOrderService{createFn: func(context.Context, orders.Payment) (*orders.Result, error) {
		t.Fatal("unsigned deliveries must not reach the order service")
		return nil, nil
	}}
	raw, _ := json.Marshal(paymentBody(enums.PaymentStatusSucceeded))
	tampered, _ := json.Marshal(paymentBody(enums.PaymentStatusSucceeded))

	cases := map[string]string{
		"missing signature": "",
		"wrong secret":      webhook.Sign("whsec_other", raw, time.Now()),
		"other body":        webhook.Sign(testWebhookSecret, tampered, time.Now()),
		"stale timestamp":   webhook.Sign(testWebhookSecret, raw, time.Now().Add(-time.Hour)),
		"malformed header":  "sha256=deadbeef",
	}
	for name, signature := range cases {
		t.Run(name, func(t *testing.T) {
			guard := &testGuard{}
			resp := postSignedPayment(PaymentWebhook(svc, testVerifier(t), guard, testLogger()), raw, signature)
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 got %d: %s", resp.Code, resp.Body.String())
			}
			if env := decodeEnvelope(t, resp); env.Error == nil || env.Error.Code != string(pkgerrors.CodeUnauthorized) {
				t.Fatalf("unexpected envelope %s", resp.Body.String())
			}
			if len(guard.claimed) != 0 {
				t.Fatal("unsigned delivery must not claim an idempotency key")
			}
		})
	}
}

func TestPaymentWebhookRequiresVerifier(t *testing.T) {
	resp := postPayment(PaymentWebhook(&testOrderService{}, nil, &testGuard{}, testLogger()), paymentBody(enums.PaymentStatusSucceeded))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
