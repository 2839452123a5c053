package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/api/responses"
	"github.com/angelmondragon/groupbuy-backend/api/validators"
	"github.com/angelmondragon/groupbuy-backend/internal/campaigns"
	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
	"github.com/angelmondragon/groupbuy-backend/pkg/auth"
	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
)

const maxQuoteQuantity = 1_000_000

// Quoter prices a quantity against a campaign's bracket table.
type Quoter interface {
	Quote(ctx context.Context, campaignID uuid.UUID, qty int) (pricing.Quote, error)
}

type campaignTransition func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Campaign, error)

// PublishCampaign moves a DRAFT campaign owned by the caller to ACTIVE.
func PublishCampaign(svc campaigns.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return campaignAction(nil, logg)
	}
	return campaignAction(svc.Publish, logg)
}

// CompleteCampaign retires a LOCKED or CANCELLED campaign owned by the caller.
func CompleteCampaign(svc campaigns.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return campaignAction(nil, logg)
	}
	return campaignAction(svc.Complete, logg)
}

func campaignAction(apply campaignTransition, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if apply == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "campaign service unavailable"))
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

		campaign, err := apply(r.Context(), campaignID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCampaignResponse(campaign))
	}
}

// CampaignPricing quotes ?quantity= against the campaign's current brackets.
func CampaignPricing(svc Quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}
		campaignID, err := uuidParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qty, err := validators.ParseQueryInt(r, "quantity", 0, 0, maxQuoteQuantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), campaignID, qty)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toQuoteResponse(quote))
	}
}
