package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/placaexpress/vehicle-report-backend/api/controllers"
	webhookcontrollers "github.com/placaexpress/vehicle-report-backend/api/controllers/webhooks"
	"github.com/placaexpress/vehicle-report-backend/api/middleware"
	"github.com/placaexpress/vehicle-report-backend/internal/auth"
	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/metrics"
	"github.com/placaexpress/vehicle-report-backend/pkg/redis"
)

// redisStore is the slice of the Redis client the HTTP layer touches.
type redisStore interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type asaasVerifier interface {
	VerifyWebhookToken(r *http.Request) bool
}

// Dependencies carries everything the router hands to controllers. Legacy
// and Webhook may be nil; their routes are then not mounted.
type Dependencies struct {
	DB            controllers.Pinger
	Redis         redisStore
	Plates        controllers.PlateSearcher
	Orders        controllers.OrderService
	Enrichment    controllers.ReportEnricher
	Reports       controllers.ReportReader
	Legacy        controllers.LegacyReportService
	Webhook       webhookcontrollers.AsaasWebhookService
	AsaasVerifier asaasVerifier
	AdminAuth     auth.Service
	Customers     controllers.CustomerAdmin
	Registry      *prometheus.Registry
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	var httpMetrics *metrics.HTTPMetrics
	if deps.Registry != nil {
		httpMetrics = metrics.NewHTTPMetrics(deps.Registry)
	}

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	platePolicy := middleware.NewRateLimitPolicy(
		"plate-search",
		cfg.RateLimit.PlateSearchWindow,
		cfg.RateLimit.PlateSearchLimit,
		0,
	)
	orderPolicy := middleware.NewRateLimitPolicy(
		"pix-order",
		cfg.RateLimit.OrderWindow,
		0,
		cfg.RateLimit.OrderEmailLimit,
	)
	loginPolicy := middleware.NewRateLimitPolicy(
		"admin-login",
		cfg.RateLimit.AdminLoginWindow,
		cfg.RateLimit.AdminLoginLimit,
		cfg.RateLimit.AdminLoginLimit,
	)

	var limiter redisStore
	var idem redis.IdempotencyStore
	if deps.Redis != nil {
		limiter = deps.Redis
		idem = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readyChecks(deps), logg))
	})
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idem, logg))

		r.With(middleware.RateLimit(platePolicy, rateLimiter(limiter), logg)).
			Post("/search-plate-preview", controllers.SearchPlatePreview(deps.Plates, logg))
		r.With(middleware.RateLimit(orderPolicy, rateLimiter(limiter), logg)).
			Post("/create-pix-order", controllers.CreatePixOrder(deps.Orders, logg))
		r.Post("/confirm-order-payment", controllers.ConfirmOrderPayment(deps.Orders, logg))
		r.Post("/enrich-paid-report", controllers.EnrichPaidReport(deps.Enrichment, logg))
		r.Post("/get-report", controllers.GetReport(deps.Reports, logg))

		if cfg.FeatureFlags.LegacyCheckout && deps.Legacy != nil {
			r.Post("/create-payment", controllers.CreatePayment(deps.Legacy, logg))
			r.Post("/check-payment", controllers.CheckPayment(deps.Legacy, logg))
		}

		if cfg.FeatureFlags.AsaasWebhookOpen && deps.Webhook != nil && deps.AsaasVerifier != nil {
			r.Post("/webhooks/asaas", webhookcontrollers.AsaasWebhook(deps.Webhook, deps.AsaasVerifier, logg))
		}
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(loginPolicy, rateLimiter(limiter), logg)).
			Post("/auth/login", controllers.AdminAuthLogin(deps.AdminAuth, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idem, logg))
			r.Get("/customers", controllers.AdminListCustomers(deps.Customers, logg))
			r.Post("/customers/backfill", controllers.AdminBackfillCustomers(deps.Customers, logg))
			r.Get("/sales/summary", controllers.AdminSalesSummary(deps.Customers, logg))
		})
	})

	return r
}

func readyChecks(deps Dependencies) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	return checks
}

// rateLimiter keeps a nil store a true nil so RateLimit passes traffic through.
func rateLimiter(store redisStore) middleware.RateLimiterStore {
	if store == nil {
		return nil
	}
	return store
}
