package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/internal/pledges"
	"github.com/angelmondragon/groupbuy-backend/pkg/auth"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	"github.com/angelmondragon/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
)

func TestCreatePledgeUsesActorOrganization(t *testing.T) {
	actor := newActor()
	campaignID := uuid.New()
	svc := &testPledgeService{
		createFn: func(_ context.Context, input pledges.CreateInput) (*models.Pledge, error) {
			if input.CampaignID != campaignID {
				t.Fatalf("unexpected campaign %s", input.CampaignID)
			}
			if input.BuyerOrganizationID != actor.OrganizationID || input.Actor != actor {
				t.Fatalf("pledge must be opened for the caller organization")
			}
			return &models.Pledge{
				ID:                  uuid.New(),
				CampaignID:          input.CampaignID,
				BuyerOrganizationID: input.BuyerOrganizationID,
				Quantity:            input.Quantity,
				Status:              enums.PledgeStatusPending,
			}, nil
		},
	}

	req := newRequest(http.MethodPost, "/api/v1/campaigns/"+campaignID.String()+"/pledges",
		map[string]int{"quantity": 30}, actor, map[string]string{"campaignId": campaignID.String()})
	resp := httptest.NewRecorder()
	CreatePledge(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var body pledgeResponse
	if err := json.Unmarshal(decodeEnvelope(t, resp).Data, &body); err != nil {
		t.Fatalf("decode pledge: %v", err)
	}
	if body.Quantity != 30 || body.Status != enums.PledgeStatusPending {
		t.Fatalf("unexpected pledge %+v", body)
	}
}

func TestCreatePledgeRequiresAuthentication(t *testing.T) {
	campaignID := uuid.New().String()
	req := newRequest(http.MethodPost, "/", map[string]int{"quantity": 1}, auth.Actor{}, map[string]string{"campaignId": campaignID})
	resp := httptest.NewRecorder()
	CreatePledge(&testPledgeService{}, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCreatePledgeValidatesBody(t *testing.T) {
	campaignID := uuid.New().String()
	for name, body := range map[string]any{
		"zero quantity": map[string]int{"quantity": 0},
		"unknown field": map[string]any{"quantity": 5, "price": 10},
	} {
		t.Run(name, func(t *testing.T) {
			req := newRequest(http.MethodPost, "/", body, newActor(), map[string]string{"campaignId": campaignID})
			resp := httptest.NewRecorder()
			CreatePledge(&testPledgeService{}, testLogger())(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
		})
	}
}

func TestCommitPledgeSurfacesStateDetails(t *testing.T) {
	pledgeID := uuid.New()
	svc := &testPledgeService{
		commitFn: func(_ context.Context, id uuid.UUID, _ auth.Actor) (*models.Pledge, error) {
			if id != pledgeID {
				t.Fatalf("unexpected pledge %s", id)
			}
			return nil, pkgerrors.InvalidCampaignState(string(enums.CampaignStatusActive), string(enums.CampaignStatusGracePeriod))
		},
	}

	req := newRequest(http.MethodPost, "/", nil, newActor(), map[string]string{"pledgeId": pledgeID.String()})
	resp := httptest.NewRecorder()
	CommitPledge(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	env := decodeEnvelope(t, resp)
	if env.Error == nil || env.Error.Code != string(pkgerrors.CodeInvalidCampaignState) {
		t.Fatalf("unexpected error %+v", env.Error)
	}
	if env.Error.Details["actual"] != string(enums.CampaignStatusActive) {
		t.Fatalf("expected actual state in details, got %v", env.Error.Details)
	}
}

func TestWithdrawPledgeRejectsMalformedID(t *testing.T) {
	req := newRequest(http.MethodPost, "/", nil, newActor(), map[string]string{"pledgeId": "not-a-uuid"})
	resp := httptest.NewRecorder()
	WithdrawPledge(&testPledgeService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUpdatePledgeForwardsQuantity(t *testing.T) {
	actor := newActor()
	pledgeID := uuid.New()
	svc := &testPledgeService{
		updateFn: func(_ context.Context, id uuid.UUID, got auth.Actor, qty int) (*models.Pledge, error) {
			if got != actor || qty != 45 {
				t.Fatalf("unexpected update actor=%v qty=%d", got, qty)
			}
			return &models.Pledge{ID: id, Quantity: qty, Status: enums.PledgeStatusPending}, nil
		},
	}
	req := newRequest(http.MethodPatch, "/", map[string]int{"quantity": 45}, actor, map[string]string{"pledgeId": pledgeID.String()})
	resp := httptest.NewRecorder()
	UpdatePledge(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}
