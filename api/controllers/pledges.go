package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/api/responses"
	"github.com/angelmondragon/groupbuy-backend/api/validators"
	"github.com/angelmondragon/groupbuy-backend/internal/pledges"
	"github.com/angelmondragon/groupbuy-backend/pkg/auth"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
)

type createPledgeRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type updatePledgeRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// CreatePledge opens a pledge for the caller's organization.
func CreatePledge(svc pledges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pledge service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		campaignID, err := uuidParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createPledgeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pledge, err := svc.Create(r.Context(), pledges.CreateInput{
			CampaignID:          campaignID,
			BuyerOrganizationID: actor.OrganizationID,
			Actor:               actor,
			Quantity:            req.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPledgeResponse(pledge))
	}
}

// UpdatePledge changes the quantity of an ACTIVE-campaign pledge.
func UpdatePledge(svc pledges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pledge service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pledgeID, err := uuidParam(r, "pledgeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updatePledgeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pledge, err := svc.UpdateQuantity(r.Context(), pledgeID, actor, req.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPledgeResponse(pledge))
	}
}

// CommitPledge confirms a pending pledge during the grace period.
func CommitPledge(svc pledges.Service, logg *logger.Logger) http.HandlerFunc {
	return pledgeAction(svc, logg, func(s pledges.Service) pledgeTransition { return s.Commit })
}

// WithdrawPledge withdraws a pending pledge while the campaign is ACTIVE.
func WithdrawPledge(svc pledges.Service, logg *logger.Logger) http.HandlerFunc {
	return pledgeAction(svc, logg, func(s pledges.Service) pledgeTransition { return s.Withdraw })
}

type pledgeTransition func(ctx context.Context, pledgeID uuid.UUID, actor auth.Actor) (*models.Pledge, error)

func pledgeAction(svc pledges.Service, logg *logger.Logger, pick func(pledges.Service) pledgeTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pledge service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pledgeID, err := uuidParam(r, "pledgeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pledge, err := pick(svc)(r.Context(), pledgeID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPledgeResponse(pledge))
	}
}
