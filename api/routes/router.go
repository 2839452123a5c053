package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/groupbuy-backend/api/controllers"
	"github.com/angelmondragon/groupbuy-backend/api/middleware"
	"github.com/angelmondragon/groupbuy-backend/internal/campaigns"
	"github.com/angelmondragon/groupbuy-backend/internal/notifications"
	"github.com/angelmondragon/groupbuy-backend/internal/orders"
	"github.com/angelmondragon/groupbuy-backend/internal/pledges"
	"github.com/angelmondragon/groupbuy-backend/pkg/config"
	"github.com/angelmondragon/groupbuy-backend/pkg/db"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/redis"
)

// Dependencies are the services the HTTP surface dispatches to.
type Dependencies struct {
	DB            db.Pinger
	Redis         redis.Pinger
	Campaigns     campaigns.Service
	Pricing       controllers.Quoter
	Pledges       pledges.Service
	Orders        orders.Service
	Notifications notifications.Service
	PaymentGuard  controllers.DeliveryGuard
	// PaymentVerifier authenticates webhook deliveries; without it the webhook refuses every request.
	PaymentVerifier controllers.SignatureVerifier
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", controllers.PaymentWebhook(deps.Orders, deps.PaymentVerifier, deps.PaymentGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/campaigns/{campaignId}", func(r chi.Router) {
			r.Post("/publish", controllers.PublishCampaign(deps.Campaigns, logg))
			r.Post("/complete", controllers.CompleteCampaign(deps.Campaigns, logg))
			r.Get("/pricing", controllers.CampaignPricing(deps.Pricing, logg))
			r.Post("/pledges", controllers.CreatePledge(deps.Pledges, logg))
		})

		r.Route("/pledges/{pledgeId}", func(r chi.Router) {
			r.Patch("/", controllers.UpdatePledge(deps.Pledges, logg))
			r.Post("/commit", controllers.CommitPledge(deps.Pledges, logg))
			r.Post("/withdraw", controllers.WithdrawPledge(deps.Pledges, logg))
		})

		r.Patch("/orders/{orderId}/status", controllers.UpdateOrderStatus(deps.Orders, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}
