package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/groupbuy-backend/api"
	"github.com/angelmondragon/groupbuy-backend/api/routes"
	"github.com/angelmondragon/groupbuy-backend/internal/campaigns"
	"github.com/angelmondragon/groupbuy-backend/internal/invoices"
	"github.com/angelmondragon/groupbuy-backend/internal/notifications"
	"github.com/angelmondragon/groupbuy-backend/internal/orders"
	"github.com/angelmondragon/groupbuy-backend/internal/pledges"
	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
	"github.com/angelmondragon/groupbuy-backend/pkg/config"
	"github.com/angelmondragon/groupbuy-backend/pkg/db"
	"github.com/angelmondragon/groupbuy-backend/pkg/idempotency"
	"github.com/angelmondragon/groupbuy-backend/pkg/instance"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
	"github.com/angelmondragon/groupbuy-backend/pkg/migrate"
	"github.com/angelmondragon/groupbuy-backend/pkg/outbox"
	"github.com/angelmondragon/groupbuy-backend/pkg/redis"
	"github.com/angelmondragon/groupbuy-backend/pkg/webhook"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	conn := dbClient.DB()
	lifecycleMetrics := metrics.NewLifecycleMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	pledgeService, err := pledges.NewService(pledges.NewRepository(conn), dbClient)
	requireService(logg, "pledges", err)

	policy, err := campaigns.PolicyFromConfig(cfg.Lifecycle.MinimumPolicy)
	requireService(logg, "minimum quantity policy", err)

	notificationsRepo := notifications.NewRepository(conn)
	inboxSink, err := notifications.NewStoreSink(notificationsRepo)
	requireService(logg, "notification sink", err)

	campaignService, err := campaigns.NewService(campaigns.ServiceParams{
		Repo:        campaigns.NewRepository(conn),
		Ledger:      pledgeService,
		Tx:          dbClient,
		Outbox:      outboxService,
		Policy:      policy,
		Notifier:    inboxSink,
		Metrics:     lifecycleMetrics,
		Logger:      logg,
		GraceWindow: cfg.Lifecycle.GraceWindow,
	})
	requireService(logg, "campaigns", err)

	pricingService, err := pricing.NewService(pricing.NewRepository(conn))
	requireService(logg, "pricing", err)

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(conn),
		Invoices: invoices.NewRepository(conn),
		Brackets: pricing.NewRepository(conn),
		Ledger:   pledgeService,
		Tx:       dbClient,
		Outbox:   outboxService,
		Metrics:  lifecycleMetrics,
		Logger:   logg,
	})
	requireService(logg, "orders", err)

	notificationService, err := notifications.NewService(notificationsRepo)
	requireService(logg, "notifications", err)

	paymentGuard, err := idempotency.NewGuard(redisClient, cfg.Eventing.PaymentIdempotencyTTL)
	requireService(logg, "payment idempotency guard", err)

	paymentVerifier, err := webhook.NewVerifier(cfg.Payments.WebhookSecret, cfg.Payments.WebhookTolerance)
	requireService(logg, "payment webhook verifier", err)

	router := routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:              dbClient,
		Redis:           redisClient,
		Campaigns:       campaignService,
		Pricing:         pricingService,
		Pledges:         pledgeService,
		Orders:          orderService,
		Notifications:   notificationService,
		PaymentGuard:    paymentGuard,
		PaymentVerifier: paymentVerifier,
	})
	server := api.NewServer(cfg, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name+" service", err)
	os.Exit(1)
}
