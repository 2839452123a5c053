package campaigns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupbuy-backend/internal/notifications"
	"github.com/angelmondragon/groupbuy-backend/internal/pledges"
	"github.com/angelmondragon/groupbuy-backend/pkg/auth"
	dbpkg "github.com/angelmondragon/groupbuy-backend/pkg/db"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/dbtest"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
	"github.com/angelmondragon/groupbuy-backend/pkg/outbox"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type recordingSink struct {
	err  error
	sent []notifications.Message
}

func (r *recordingSink) Send(_ context.Context, msg notifications.Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

type lifecycleFixture struct {
	db     *gorm.DB
	svc    *service
	sink   *recordingSink
	outbox *outbox.Repository
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, opts ...func(*ServiceParams)) lifecycleFixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := dbpkg.NewFromConn(conn)
	ledger, err := pledges.NewService(pledges.NewRepository(conn), client)
	require.NoError(t, err)

	outboxRepo := outbox.NewRepository(conn)
	sink := &recordingSink{}
	reg := prometheus.NewRegistry()
	params := ServiceParams{
		Repo:     NewRepository(conn),
		Ledger:   ledger,
		Tx:       client,
		Outbox:   outbox.NewService(outboxRepo, nil),
		Notifier: sink,
		Metrics:  metrics.NewLifecycleMetrics(reg),
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = func() time.Time { return fixedNow }
	return lifecycleFixture{db: conn, svc: impl, sink: sink, outbox: outboxRepo, reg: reg}
}

func (f lifecycleFixture) campaign(t *testing.T, status enums.CampaignStatus, endIn time.Duration) models.Campaign {
	t.Helper()
	c := models.Campaign{
		SupplierID:     uuid.New(),
		Title:          "bulk nitrile gloves",
		StartDate:      fixedNow.Add(-7 * 24 * time.Hour),
		EndDate:        fixedNow.Add(endIn),
		TargetQuantity: 100,
		Status:         status,
	}
	require.NoError(t, f.db.Create(&c).Error)
	f.brackets(t, c.ID, standardTable(c.ID))
	return c
}

func (f lifecycleFixture) brackets(t *testing.T, campaignID uuid.UUID, rows []models.DiscountBracket) {
	t.Helper()
	require.NoError(t, f.db.Where("campaign_id = ?", campaignID).Delete(&models.DiscountBracket{}).Error)
	if len(rows) > 0 {
		require.NoError(t, f.db.Create(&rows).Error)
	}
}

func (f lifecycleFixture) pledge(t *testing.T, campaignID uuid.UUID, qty int, status enums.PledgeStatus) models.Pledge {
	t.Helper()
	p := models.Pledge{
		CampaignID:          campaignID,
		BuyerOrganizationID: uuid.New(),
		Quantity:            qty,
		Status:              status,
	}
	if status == enums.PledgeStatusCommitted {
		at := fixedNow.Add(-time.Hour)
		p.CommittedAt = &at
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f lifecycleFixture) reload(t *testing.T, id uuid.UUID) models.Campaign {
	t.Helper()
	var c models.Campaign
	require.NoError(t, f.db.First(&c, "id = ?", id).Error)
	return c
}

func (f lifecycleFixture) pledgeStatus(t *testing.T, id uuid.UUID) enums.PledgeStatus {
	t.Helper()
	var p models.Pledge
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return p.Status
}

func (f lifecycleFixture) events(t *testing.T, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows, err := f.outbox.ListByAggregate(nil, aggregateID)
	require.NoError(t, err)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func standardTable(campaignID uuid.UUID) []models.DiscountBracket {
	return []models.DiscountBracket{
		{CampaignID: campaignID, BracketOrder: 0, MinQuantity: 0, MaxQuantity: intPtr(49), UnitPrice: decimal.NewFromInt(100)},
		{CampaignID: campaignID, BracketOrder: 1, MinQuantity: 50, MaxQuantity: intPtr(99), UnitPrice: decimal.NewFromInt(90)},
		{CampaignID: campaignID, BracketOrder: 2, MinQuantity: 100, UnitPrice: decimal.NewFromInt(80)},
	}
}

func intPtr(v int) *int { return &v }

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error: %v", err)
	return typed
}

func TestPublishActivatesDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, enums.CampaignStatusDraft, 10*24*time.Hour)

	_, err := f.svc.Publish(ctx, c.ID, auth.Actor{UserID: uuid.New(), OrganizationID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeForbidden)

	owner := auth.Actor{UserID: uuid.New(), OrganizationID: c.SupplierID}
	published, err := f.svc.Publish(ctx, c.ID, owner)
	require.NoError(t, err)
	require.Equal(t, enums.CampaignStatusActive, published.Status)
	require.NotNil(t, published.PublishedAt)

	stored := f.reload(t, c.ID)
	require.Equal(t, enums.CampaignStatusActive, stored.Status)
	require.Equal(t, []enums.OutboxEventType{enums.EventCampaignPublished}, f.events(t, c.ID))

	_, err = f.svc.Publish(ctx, c.ID, owner)
	typed := requireCode(t, err, pkgerrors.CodeInvalidStateTransition)
	require.Equal(t, pkgerrors.TransitionDetails{From: "ACTIVE", To: "ACTIVE"}, typed.Details())
}

func TestPublishRejectsBrokenPriceTable(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, enums.CampaignStatusDraft, 10*24*time.Hour)
	f.brackets(t, c.ID, []models.DiscountBracket{
		{CampaignID: c.ID, BracketOrder: 0, MinQuantity: 0, MaxQuantity: intPtr(49), UnitPrice: decimal.NewFromInt(90)},
		{CampaignID: c.ID, BracketOrder: 1, MinQuantity: 50, UnitPrice: decimal.NewFromInt(100)},
	})

	_, err := f.svc.Publish(context.Background(), c.ID, auth.Actor{UserID: uuid.New(), OrganizationID: c.SupplierID})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Equal(t, enums.CampaignStatusDraft, f.reload(t, c.ID).Status)
	require.Empty(t, f.events(t, c.ID))
}

func TestPublishUnknownCampaign(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Publish(context.Background(), uuid.New(), auth.Actor{UserID: uuid.New(), OrganizationID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestStartGracePeriodComputesEndDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	far := f.campaign(t, enums.CampaignStatusActive, 72*time.Hour)
	pending := f.pledge(t, far.ID, 10, enums.PledgeStatusPending)
	f.pledge(t, far.ID, 5, enums.PledgeStatusWithdrawn)

	updated, err := f.svc.StartGracePeriod(ctx, far.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CampaignStatusGracePeriod, updated.Status)
	require.NotNil(t, updated.GracePeriodEndDate)
	require.True(t, updated.GracePeriodEndDate.Equal(fixedNow.Add(24*time.Hour)))

	stored := f.reload(t, far.ID)
	require.Equal(t, enums.CampaignStatusGracePeriod, stored.Status)
	require.True(t, stored.GracePeriodEndDate.Equal(fixedNow.Add(24*time.Hour)))
	require.Equal(t, []enums.OutboxEventType{enums.EventCampaignGraceStarted}, f.events(t, far.ID))

	require.Len(t, f.sink.sent, 1)
	msg := f.sink.sent[0]
	require.Equal(t, enums.NotificationTypeGracePeriodStarted, msg.Type)
	require.ElementsMatch(t, []uuid.UUID{far.SupplierID, pending.BuyerOrganizationID}, msg.Recipients)

	near := f.campaign(t, enums.CampaignStatusActive, 10*time.Hour)
	updated, err = f.svc.StartGracePeriod(ctx, near.ID)
	require.NoError(t, err)
	require.True(t, updated.GracePeriodEndDate.Equal(fixedNow))
}

func TestStartGracePeriodOnDraftFails(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, enums.CampaignStatusDraft, 72*time.Hour)

	_, err := f.svc.StartGracePeriod(context.Background(), c.ID)
	typed := requireCode(t, err, pkgerrors.CodeInvalidStateTransition)
	require.Equal(t, pkgerrors.TransitionDetails{From: "DRAFT", To: "GRACE_PERIOD"}, typed.Details())

	stored := f.reload(t, c.ID)
	require.Equal(t, enums.CampaignStatusDraft, stored.Status)
	require.Nil(t, stored.GracePeriodEndDate)
}

func TestStartGracePeriodTwiceFailsLoudly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, enums.CampaignStatusActive, 72*time.Hour)

	_, err := f.svc.StartGracePeriod(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.svc.StartGracePeriod(ctx, c.ID)
	typed := requireCode(t, err, pkgerrors.CodeInvalidStateTransition)
	require.Equal(t, pkgerrors.TransitionDetails{From: "GRACE_PERIOD", To: "GRACE_PERIOD"}, typed.Details())
	require.Len(t, f.events(t, c.ID), 1)
}

func TestEvaluateLocksWhenMinimumMet(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, enums.CampaignStatusGracePeriod, time.Hour)
	first := f.pledge(t, c.ID, 60, enums.PledgeStatusCommitted)
	second := f.pledge(t, c.ID, 50, enums.PledgeStatusCommitted)
	straggler := f.pledge(t, c.ID, 10, enums.PledgeStatusPending)

	result, err := f.svc.Evaluate(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CampaignStatusLocked, result.Outcome)
	require.Equal(t, 110, result.CommittedQuantity)
	require.Equal(t, 100, result.MinimumQuantity)
	require.Equal(t, "target", result.Policy)
	require.Zero(t, result.Withdrawn)
	require.True(t, result.Quote.Priced())
	require.True(t, result.Quote.UnitPrice().Equal(decimal.NewFromInt(80)))

	stored := f.reload(t, c.ID)
	require.Equal(t, enums.CampaignStatusLocked, stored.Status)
	require.NotNil(t, stored.LockedAt)
	require.Equal(t, enums.PledgeStatusCommitted, f.pledgeStatus(t, first.ID))
	require.Equal(t, enums.PledgeStatusCommitted, f.pledgeStatus(t, second.ID))
	require.Equal(t, enums.PledgeStatusPending, f.pledgeStatus(t, straggler.ID))
	require.Equal(t, []enums.OutboxEventType{enums.EventCampaignLocked}, f.events(t, c.ID))

	require.Len(t, f.sink.sent, 1)
	require.Equal(t, enums.NotificationTypeCampaignLocked, f.sink.sent[0].Type)
	require.ElementsMatch(t, []uuid.UUID{c.SupplierID, first.BuyerOrganizationID, second.BuyerOrganizationID}, f.sink.sent[0].Recipients)
}

func TestEvaluateCancelsAndWithdrawsPending(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, enums.CampaignStatusGracePeriod, time.Hour)
	committed := f.pledge(t, c.ID, 30, enums.PledgeStatusCommitted)
	pendingA := f.pledge(t, c.ID, 20, enums.PledgeStatusPending)
	pendingB := f.pledge(t, c.ID, 15, enums.PledgeStatusPending)

	result, err := f.svc.Evaluate(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CampaignStatusCancelled, result.Outcome)
	require.Equal(t, 30, result.CommittedQuantity)
	require.Equal(t, int64(2), result.Withdrawn)
	require.Equal(t, 1, result.RefundsRequested)

	stored := f.reload(t, c.ID)
	require.Equal(t, enums.CampaignStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
	require.Equal(t, enums.PledgeStatusCommitted, f.pledgeStatus(t, committed.ID))
	require.Equal(t, enums.PledgeStatusWithdrawn, f.pledgeStatus(t, pendingA.ID))
	require.Equal(t, enums.PledgeStatusWithdrawn, f.pledgeStatus(t, pendingB.ID))

	require.Equal(t, []enums.OutboxEventType{enums.EventCampaignCancelled}, f.events(t, c.ID))
	require.Equal(t, []enums.OutboxEventType{enums.EventPledgeRefundRequested}, f.events(t, committed.ID))

	require.Len(t, f.sink.sent, 1)
	require.Equal(t, enums.NotificationTypeCampaignCancelled, f.sink.sent[0].Type)
	require.Len(t, f.sink.sent[0].Recipients, 4)
}

func TestEvaluateWithLowestBracketPolicy(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) { p.Policy = LowestBracketPolicy{} })
	c := f.campaign(t, enums.CampaignStatusGracePeriod, time.Hour)
	f.pledge(t, c.ID, 3, enums.PledgeStatusCommitted)

	result, err := f.svc.Evaluate(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CampaignStatusLocked, result.Outcome)
	require.Equal(t, 1, result.MinimumQuantity)
	require.True(t, result.Quote.UnitPrice().Equal(decimal.NewFromInt(100)))
}

func TestEvaluateRequiresGracePeriod(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, enums.CampaignStatusActive, 72*time.Hour)

	_, err := f.svc.Evaluate(context.Background(), c.ID)
	typed := requireCode(t, err, pkgerrors.CodeInvalidCampaignState)
	require.Equal(t, pkgerrors.StateDetails{Required: []string{"GRACE_PERIOD"}, Actual: "ACTIVE"}, typed.Details())
}

type failingRefunds struct{}

func (failingRefunds) RequestRefunds(context.Context, *gorm.DB, models.Campaign, []models.Pledge) (int, error) {
	return 0, errors.New("refund queue unavailable")
}

func TestEvaluateRollsBackEverythingOnFailure(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) { p.Refunds = failingRefunds{} })
	c := f.campaign(t, enums.CampaignStatusGracePeriod, time.Hour)
	committed := f.pledge(t, c.ID, 30, enums.PledgeStatusCommitted)
	pending := f.pledge(t, c.ID, 20, enums.PledgeStatusPending)

	_, err := f.svc.Evaluate(context.Background(), c.ID)
	requireCode(t, err, pkgerrors.CodeDependency)

	stored := f.reload(t, c.ID)
	require.Equal(t, enums.CampaignStatusGracePeriod, stored.Status)
	require.Nil(t, stored.CancelledAt)
	require.Equal(t, enums.PledgeStatusCommitted, f.pledgeStatus(t, committed.ID))
	require.Equal(t, enums.PledgeStatusPending, f.pledgeStatus(t, pending.ID))
	require.Empty(t, f.events(t, c.ID))
	require.Empty(t, f.sink.sent)
}

func TestNotificationFailureDoesNotUndoTransition(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("sink down")
	c := f.campaign(t, enums.CampaignStatusGracePeriod, time.Hour)
	f.pledge(t, c.ID, 120, enums.PledgeStatusCommitted)

	result, err := f.svc.Evaluate(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CampaignStatusLocked, result.Outcome)
	require.Equal(t, enums.CampaignStatusLocked, f.reload(t, c.ID).Status)
	require.Len(t, f.sink.sent, 1)
}

func TestCommitAfterEvaluationIsRejected(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, enums.CampaignStatusGracePeriod, time.Hour)
	f.pledge(t, c.ID, 100, enums.PledgeStatusCommitted)
	late := f.pledge(t, c.ID, 10, enums.PledgeStatusPending)

	_, err := f.svc.Evaluate(context.Background(), c.ID)
	require.NoError(t, err)

	ledger, err := pledges.NewService(pledges.NewRepository(f.db), dbpkg.NewFromConn(f.db))
	require.NoError(t, err)
	_, err = ledger.Commit(context.Background(), late.ID, auth.Actor{UserID: uuid.New(), OrganizationID: late.BuyerOrganizationID})
	typed := requireCode(t, err, pkgerrors.CodeInvalidCampaignState)
	require.Equal(t, pkgerrors.StateDetails{Required: []string{"GRACE_PERIOD"}, Actual: "LOCKED"}, typed.Details())
}

func TestCompleteRetiresTerminalCampaigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, status := range []enums.CampaignStatus{enums.CampaignStatusLocked, enums.CampaignStatusCancelled} {
		c := f.campaign(t, status, -time.Hour)
		_, err := f.svc.Complete(ctx, c.ID, auth.Actor{UserID: uuid.New(), OrganizationID: uuid.New()})
		requireCode(t, err, pkgerrors.CodeForbidden)

		done, err := f.svc.Complete(ctx, c.ID, auth.Actor{UserID: uuid.New(), OrganizationID: c.SupplierID})
		require.NoError(t, err)
		require.Equal(t, enums.CampaignStatusDone, done.Status)
		require.NotNil(t, f.reload(t, c.ID).CompletedAt)
	}

	active := f.campaign(t, enums.CampaignStatusActive, 72*time.Hour)
	_, err := f.svc.Complete(ctx, active.ID, auth.Actor{UserID: uuid.New(), OrganizationID: active.SupplierID})
	typed := requireCode(t, err, pkgerrors.CodeInvalidStateTransition)
	require.Equal(t, pkgerrors.TransitionDetails{From: "ACTIVE", To: "DONE"}, typed.Details())
}

func TestCandidateSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	endingSoon := f.campaign(t, enums.CampaignStatusActive, 47*time.Hour)
	atThreshold := f.campaign(t, enums.CampaignStatusActive, 48*time.Hour)
	f.campaign(t, enums.CampaignStatusActive, 49*time.Hour)
	f.campaign(t, enums.CampaignStatusDraft, time.Hour)

	graceIDs, err := f.svc.GracePeriodCandidates(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{endingSoon.ID, atThreshold.ID}, graceIDs)

	elapsed := f.campaign(t, enums.CampaignStatusGracePeriod, time.Hour)
	pastEnd := fixedNow.Add(-time.Minute)
	require.NoError(t, f.db.Model(&models.Campaign{}).Where("id = ?", elapsed.ID).Update("grace_period_end_date", pastEnd).Error)
	running := f.campaign(t, enums.CampaignStatusGracePeriod, 30*time.Hour)
	futureEnd := fixedNow.Add(6 * time.Hour)
	require.NoError(t, f.db.Model(&models.Campaign{}).Where("id = ?", running.ID).Update("grace_period_end_date", futureEnd).Error)

	evalIDs, err := f.svc.EvaluationCandidates(ctx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{elapsed.ID}, evalIDs)
}

func TestTransitionsAreCounted(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, enums.CampaignStatusActive, 72*time.Hour)
	_, err := f.svc.StartGracePeriod(context.Background(), c.ID)
	require.NoError(t, err)

	families, err := f.reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "groupbuy_campaign_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["from"] == "ACTIVE" && labels["to"] == "GRACE_PERIOD" {
				assert.Equal(t, float64(1), m.GetCounter().GetValue())
				found = true
			}
		}
	}
	require.True(t, found, "transition counter not exported")
}

func TestGracePeriodEnd(t *testing.T) {
	end := fixedNow.Add(72 * time.Hour)
	require.True(t, GracePeriodEnd(end, 48*time.Hour, fixedNow).Equal(fixedNow.Add(24*time.Hour)))
	require.True(t, GracePeriodEnd(fixedNow.Add(time.Hour), 48*time.Hour, fixedNow).Equal(fixedNow))
	require.True(t, GracePeriodEnd(fixedNow.Add(48*time.Hour), 48*time.Hour, fixedNow).Equal(fixedNow))
}
