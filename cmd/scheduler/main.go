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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/groupbuy-backend/internal/campaigns"
	"github.com/angelmondragon/groupbuy-backend/internal/cron"
	"github.com/angelmondragon/groupbuy-backend/internal/invoices"
	"github.com/angelmondragon/groupbuy-backend/internal/pledges"
	"github.com/angelmondragon/groupbuy-backend/pkg/config"
	"github.com/angelmondragon/groupbuy-backend/pkg/db"
	"github.com/angelmondragon/groupbuy-backend/pkg/instance"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
	"github.com/angelmondragon/groupbuy-backend/pkg/migrate"
	"github.com/angelmondragon/groupbuy-backend/pkg/outbox"
	"github.com/angelmondragon/groupbuy-backend/pkg/pubsub"
	"github.com/angelmondragon/groupbuy-backend/pkg/redis"
)

const metricsShutdownTimeout = 5 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "scheduler"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "scheduler"

	logg = logger.New(logger.Options{
		ServiceName: "scheduler",
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

	var pubsubClient *pubsub.Client
	if cfg.GCP.Enabled() {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "gcp project not configured; outbox relay and pubsub notifications disabled")
	}

	conn := dbClient.DB()
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lifecycleMetrics := metrics.NewLifecycleMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(conn)
	outboxService := outbox.NewService(outboxRepo, logg)

	sink, err := notificationSink(conn, pubsubClient, logg)
	requireResource(logg, "notification sink", err)

	pledgeService, err := pledges.NewService(pledges.NewRepository(conn), dbClient)
	requireResource(logg, "pledge ledger", err)

	policy, err := campaigns.PolicyFromConfig(cfg.Lifecycle.MinimumPolicy)
	requireResource(logg, "minimum quantity policy", err)

	campaignService, err := campaigns.NewService(campaigns.ServiceParams{
		Repo:        campaigns.NewRepository(conn),
		Ledger:      pledgeService,
		Tx:          dbClient,
		Outbox:      outboxService,
		Policy:      policy,
		Notifier:    sink,
		Metrics:     lifecycleMetrics,
		Logger:      logg,
		GraceWindow: cfg.Lifecycle.GraceWindow,
	})
	requireResource(logg, "campaign lifecycle", err)

	invoiceService, err := invoices.NewService(invoices.NewRepository(conn), sink, cfg.Lifecycle.ReminderWindow, cfg.Lifecycle.ReminderBackoff)
	requireResource(logg, "invoice notices", err)

	registry := cron.NewRegistry()

	graceJob, err := cron.NewGracePeriodJob(cron.GracePeriodJobParams{Logger: logg, Campaigns: campaignService, Metrics: cronMetrics})
	requireResource(logg, "grace period job", err)
	registry.Register(graceJob, cfg.Scheduler.GracePeriodInterval)

	evaluationJob, err := cron.NewCampaignEvaluationJob(cron.CampaignEvaluationJobParams{Logger: logg, Campaigns: campaignService, Metrics: cronMetrics})
	requireResource(logg, "campaign evaluation job", err)
	registry.Register(evaluationJob, cfg.Scheduler.EvaluationInterval)

	reminderJob, err := cron.NewPaymentReminderJob(cron.PaymentReminderJobParams{Logger: logg, Invoices: invoiceService, Metrics: cronMetrics})
	requireResource(logg, "payment reminder job", err)
	registry.Register(reminderJob, cfg.Scheduler.PaymentReminderInterval)

	failedJob, err := cron.NewPaymentFailedJob(cron.PaymentFailedJobParams{Logger: logg, Invoices: invoiceService, Metrics: cronMetrics})
	requireResource(logg, "payment failed job", err)
	registry.Register(failedJob, cfg.Scheduler.PaymentFailedInterval)

	if pubsubClient != nil {
		router, err := outbox.NewTopicRouter(cfg.PubSub.DomainTopic)
		requireResource(logg, "outbox topic router", err)
		relayJob, err := cron.NewOutboxRelayJob(cron.OutboxRelayJobParams{
			Logger:     logg,
			DB:         dbClient,
			Repository: outboxRepo,
			Router:     router,
			Publishers: func(topic string) pubsub.Publisher {
				return pubsub.Wrap(pubsubClient.Publisher(topic))
			},
			Metrics:     cronMetrics,
			BatchSize:   cfg.Outbox.BatchSize,
			MaxAttempts: cfg.Outbox.MaxAttempts,
		})
		requireResource(logg, "outbox relay job", err)
		registry.Register(relayJob, cfg.Scheduler.OutboxRelayInterval)
	}

	locks, err := cron.NewRedisLocks(redisClient, cfg.Scheduler.LockTTL)
	requireResource(logg, "scheduler locks", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locks:    locks,
		Metrics:  cronMetrics,
	})
	requireResource(logg, "scheduler", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting scheduler")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "scheduler stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "scheduler shutting down gracefully")
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+resource, err)
	os.Exit(1)
}
