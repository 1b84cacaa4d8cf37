// Package bootstrap assembles the domain services shared by the api and the
// cron worker from already-open infrastructure clients.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/placaexpress/vehicle-report-backend/internal/access"
	"github.com/placaexpress/vehicle-report-backend/internal/auth"
	"github.com/placaexpress/vehicle-report-backend/internal/customers"
	"github.com/placaexpress/vehicle-report-backend/internal/enrichment"
	"github.com/placaexpress/vehicle-report-backend/internal/legacyreports"
	"github.com/placaexpress/vehicle-report-backend/internal/orders"
	"github.com/placaexpress/vehicle-report-backend/internal/platequery"
	asaaswebhook "github.com/placaexpress/vehicle-report-backend/internal/webhooks/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/asaas"
	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	"github.com/placaexpress/vehicle-report-backend/pkg/db"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/metrics"
	"github.com/placaexpress/vehicle-report-backend/pkg/outbox"
	"github.com/placaexpress/vehicle-report-backend/pkg/redis"
	"github.com/placaexpress/vehicle-report-backend/pkg/vehicledata"
)

const webhookScope = "asaas"

// Services is the wired domain layer. Legacy is nil when the legacy
// checkout flag is off.
type Services struct {
	Asaas      *asaas.Client
	Provider   *vehicledata.Client
	Outbox     *outbox.Service
	Plates     *platequery.Service
	Orders     *orders.Service
	Enrichment *enrichment.Service
	Reports    *access.Service
	Legacy     *legacyreports.Service
	Customers  *customers.Service
	Webhook    *asaaswebhook.Service
	AdminAuth  auth.Service
}

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

func NewServices(ctx context.Context, params Params) (*Services, error) {
	cfg, logg := params.Config, params.Logger
	if cfg == nil || logg == nil || params.DB == nil || params.Redis == nil {
		return nil, fmt.Errorf("bootstrap: config, logger, db and redis are required")
	}
	reg := params.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	upstream := metrics.NewUpstreamMetrics(reg)
	gdb := params.DB.DB()

	gateway, err := asaas.NewClient(ctx, cfg.Asaas, logg, asaas.WithMetrics(upstream))
	if err != nil {
		return nil, fmt.Errorf("asaas client: %w", err)
	}
	provider, err := vehicledata.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.Username,
		cfg.Provider.Password,
		vehicledata.WithLogger(logg),
		vehicledata.WithMetrics(upstream),
		vehicledata.WithTimeout(cfg.Provider.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("vehicle data client: %w", err)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)
	plateRepo := platequery.NewRepository(gdb)
	orderRepo := orders.NewRepository(gdb)
	enrichmentRepo := enrichment.NewRepository(gdb)
	customerRepo := customers.NewRepository(gdb)

	var cache platequery.HotCache
	if cfg.FeatureFlags.PlateRedisCache {
		cache = params.Redis
	}
	plates, err := platequery.NewService(platequery.ServiceParams{
		Repo:            plateRepo,
		Provider:        provider,
		Cache:           cache,
		Logger:          logg,
		Metrics:         upstream,
		TTL:             cfg.Checkout.PlateCacheTTL,
		LookupCostCents: cfg.Pricing.LookupCostCents,
	})
	if err != nil {
		return nil, fmt.Errorf("plate query service: %w", err)
	}

	enricher, err := enrichment.NewService(enrichment.ServiceParams{
		Repo:             enrichmentRepo,
		Orders:           orderRepo,
		PlateQueries:     plateRepo,
		Tx:               params.DB,
		Provider:         provider,
		Locker:           params.Redis,
		Outbox:           outboxSvc,
		Logger:           logg,
		Metrics:          upstream,
		FipeCostCents:    cfg.Pricing.FipeCostCents,
		RenainfCostCents: cfg.Pricing.RenainfCostCents,
		LockTTL:          cfg.Enrichment.LockTTL,
		WaitAttempts:     cfg.Enrichment.WaitAttempts,
		WaitInterval:     cfg.Enrichment.WaitInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("enrichment service: %w", err)
	}

	recorder, err := customers.NewRecorder(customerRepo, logg)
	if err != nil {
		return nil, fmt.Errorf("customer recorder: %w", err)
	}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:         orderRepo,
		PlateQueries: plateRepo,
		Tx:           params.DB,
		Gateway:      gateway,
		Outbox:       outboxSvc,
		Recorder:     recorder,
		Enricher:     enricher,
		Logger:       logg,
		PriceCents:   cfg.Pricing.ReportPriceCents,
		DueDays:      cfg.Checkout.OrderDueDays,
		Description:  cfg.Checkout.ReportDescription,
		QRAttempts:   cfg.Checkout.QRCodeMaxAttempts,
		QRDelay:      cfg.Checkout.QRCodeRetryDelay,
		AsyncEnrich:  cfg.FeatureFlags.AsyncEnrichment,
		AsyncTimeout: cfg.Enrichment.AsyncTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	reports, err := access.NewService(orderRepo, plateRepo, enrichmentRepo, enricher, logg)
	if err != nil {
		return nil, fmt.Errorf("report access service: %w", err)
	}

	customerSvc, err := customers.NewService(customerRepo, gateway, logg)
	if err != nil {
		return nil, fmt.Errorf("customers service: %w", err)
	}

	var legacy *legacyreports.Service
	if cfg.FeatureFlags.LegacyCheckout {
		legacy, err = legacyreports.NewService(legacyreports.ServiceParams{
			Repo:        legacyreports.NewRepository(gdb),
			Tx:          params.DB,
			Gateway:     gateway,
			QRCodes:     orderSvc,
			Provider:    provider,
			Outbox:      outboxSvc,
			Logger:      logg,
			PriceCents:  cfg.Pricing.LegacyReportPriceCents,
			DueDays:     cfg.Checkout.LegacyDueDays,
			Description: cfg.Checkout.ReportDescription,
			PollMinAge:  cfg.Enrichment.LegacyPollWait,
		})
		if err != nil {
			return nil, fmt.Errorf("legacy reports service: %w", err)
		}
	}

	guard, err := asaaswebhook.NewIdempotencyGuard(params.Redis, cfg.Eventing.WebhookIdempotencyTTL, webhookScope)
	if err != nil {
		return nil, fmt.Errorf("webhook idempotency guard: %w", err)
	}
	webhookParams := asaaswebhook.ServiceParams{
		Orders: orderSvc,
		Guard:  guard,
		Logger: logg,
	}
	if legacy != nil {
		webhookParams.Legacy = legacy
	}
	webhook, err := asaaswebhook.NewService(webhookParams)
	if err != nil {
		return nil, fmt.Errorf("asaas webhook service: %w", err)
	}

	adminAuth, err := auth.NewService(auth.ServiceParams{
		Admin:  cfg.Admin,
		JWT:    cfg.JWT,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("admin auth service: %w", err)
	}

	return &Services{
		Asaas:      gateway,
		Provider:   provider,
		Outbox:     outboxSvc,
		Plates:     plates,
		Orders:     orderSvc,
		Enrichment: enricher,
		Reports:    reports,
		Legacy:     legacy,
		Customers:  customerSvc,
		Webhook:    webhook,
		AdminAuth:  adminAuth,
	}, nil
}
