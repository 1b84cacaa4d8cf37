package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/placaexpress/vehicle-report-backend/internal/consumers"
	"github.com/placaexpress/vehicle-report-backend/internal/consumers/analytics"
	"github.com/placaexpress/vehicle-report-backend/internal/conversions"
	"github.com/placaexpress/vehicle-report-backend/pkg/bigquery"
	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	"github.com/placaexpress/vehicle-report-backend/pkg/instance"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/metacapi"
	"github.com/placaexpress/vehicle-report-backend/pkg/metrics"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox/idempotency"
	"github.com/placaexpress/vehicle-report-backend/pkg/pubsub"
	"github.com/placaexpress/vehicle-report-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	runners := map[string]runner{}

	analyticsSub := pubsubClient.AnalyticsSubscription()
	if analyticsSub == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}
	analyticsConsumer, err := analytics.NewConsumer(bqClient, cfg.BigQuery.SalesEventsTable, manager, logg)
	requireResource(ctx, logg, "analytics consumer", err)
	analyticsRunner, err := consumers.NewRunner("analytics", analyticsSub, analyticsConsumer, logg)
	requireResource(ctx, logg, "analytics runner", err)
	runners["analytics"] = analyticsRunner

	if cfg.Conversions.Enabled() {
		upstream := metrics.NewUpstreamMetrics(prometheus.DefaultRegisterer)
		capi, err := metacapi.NewClient(cfg.Conversions, logg, metacapi.WithMetrics(upstream))
		requireResource(ctx, logg, "meta conversions client", err)

		conversionsSub := pubsubClient.ConversionsSubscription()
		if conversionsSub == nil {
			requireResource(ctx, logg, "conversions subscription", errors.New("subscription not configured"))
		}
		relay, err := conversions.NewRelay(capi, manager, logg)
		requireResource(ctx, logg, "conversions relay", err)
		conversionsRunner, err := consumers.NewRunner("conversions", conversionsSub, relay, logg)
		requireResource(ctx, logg, "conversions runner", err)
		runners["conversions"] = conversionsRunner
	} else {
		logg.Warn(ctx, "meta conversions disabled: pixel id or access token missing")
	}

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		BigQuery: bqClient,
		Runners:  runners,
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
