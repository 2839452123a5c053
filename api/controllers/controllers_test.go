package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/api/middleware"
	"github.com/angelmondragon/groupbuy-backend/internal/campaigns"
	"github.com/angelmondragon/groupbuy-backend/internal/notifications"
	"github.com/angelmondragon/groupbuy-backend/internal/orders"
	"github.com/angelmondragon/groupbuy-backend/internal/pledges"
	"github.com/angelmondragon/groupbuy-backend/pkg/auth"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), OrganizationID: uuid.New()}
}

// newRequest builds a request carrying actor (when valid) and chi URL params.
func newRequest(method, target string, body any, actor auth.Actor, params map[string]string) *http.Request {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if actor.Valid() {
		ctx = middleware.WithActor(ctx, actor)
	}
	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	return req.WithContext(ctx)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", resp.Body.String(), err)
	}
	return env
}

type testPledgeService struct {
	createFn   func(ctx context.Context, input pledges.CreateInput) (*models.Pledge, error)
	updateFn   func(ctx context.Context, id uuid.UUID, actor auth.Actor, qty int) (*models.Pledge, error)
	commitFn   func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Pledge, error)
	withdrawFn func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Pledge, error)
}

func (s *testPledgeService) Create(ctx context.Context, input pledges.CreateInput) (*models.Pledge, error) {
	return s.createFn(ctx, input)
}

func (s *testPledgeService) UpdateQuantity(ctx context.Context, id uuid.UUID, actor auth.Actor, qty int) (*models.Pledge, error) {
	return s.updateFn(ctx, id, actor, qty)
}

func (s *testPledgeService) Commit(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Pledge, error) {
	return s.commitFn(ctx, id, actor)
}

func (s *testPledgeService) Withdraw(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Pledge, error) {
	return s.withdrawFn(ctx, id, actor)
}

func (s *testPledgeService) WithdrawAllPending(context.Context, *gorm.DB, uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *testPledgeService) CommittedQuantity(context.Context, *gorm.DB, uuid.UUID) (int, error) {
	return 0, nil
}

func (s *testPledgeService) ListByCampaign(context.Context, *gorm.DB, uuid.UUID, *enums.PledgeStatus) ([]models.Pledge, error) {
	return nil, nil
}

type testCampaignService struct {
	publishFn  func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Campaign, error)
	completeFn func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Campaign, error)
}

func (s *testCampaignService) Publish(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Campaign, error) {
	return s.publishFn(ctx, id, actor)
}

func (s *testCampaignService) StartGracePeriod(context.Context, uuid.UUID) (*models.Campaign, error) {
	return nil, nil
}

func (s *testCampaignService) Evaluate(context.Context, uuid.UUID) (*campaigns.EvaluationResult, error) {
	return nil, nil
}

func (s *testCampaignService) Complete(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Campaign, error) {
	return s.completeFn(ctx, id, actor)
}

func (s *testCampaignService) GracePeriodCandidates(context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *testCampaignService) EvaluationCandidates(context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

type testOrderService struct {
	createFn func(ctx context.Context, payment orders.Payment) (*orders.Result, error)
	updateFn func(ctx context.Context, id uuid.UUID, actor auth.Actor, to enums.OrderStatus) (*models.Order, error)
	calls    int
}

func (s *testOrderService) CreateOrderFromPayment(ctx context.Context, payment orders.Payment) (*orders.Result, error) {
	s.calls++
	return s.createFn(ctx, payment)
}

func (s *testOrderService) UpdateStatus(ctx context.Context, id uuid.UUID, actor auth.Actor, to enums.OrderStatus) (*models.Order, error) {
	return s.updateFn(ctx, id, actor, to)
}

type testNotificationsService struct {
	listFn     func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
	markReadFn func(ctx context.Context, orgID, id uuid.UUID) error
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return s.listFn(ctx, params)
}

func (s *testNotificationsService) MarkRead(ctx context.Context, orgID, id uuid.UUID) error {
	return s.markReadFn(ctx, orgID, id)
}
