package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Provider     ProviderConfig
	Asaas        AsaasConfig
	Pricing      PricingConfig
	Checkout     CheckoutConfig
	Enrichment   EnrichmentConfig
	Conversions  ConversionsConfig
	Admin        AdminConfig
	Password     PasswordConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PLACA_APP_ENV" required:"true"`
	Port         string `envconfig:"PLACA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PLACA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PLACA_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"PLACA_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

type ServiceConfig struct {
	Kind string `envconfig:"PLACA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PLACA_DB_DSN"`
	Driver string `envconfig:"PLACA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PLACA_DB_HOST"`
	LegacyPort     int    `envconfig:"PLACA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PLACA_DB_USER"`
	LegacyPassword string `envconfig:"PLACA_DB_PASSWORD"`
	LegacyName     string `envconfig:"PLACA_DB_NAME"`
	LegacySSLMode  string `envconfig:"PLACA_DB_SSLMODE" default:"require"`

	MaxOpenConns    int           `envconfig:"PLACA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PLACA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PLACA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PLACA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"PLACA_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PLACA_REDIS_URL"`
	Address      string        `envconfig:"PLACA_REDIS_ADDR"`
	Password     string        `envconfig:"PLACA_REDIS_PASSWORD"`
	DB           int           `envconfig:"PLACA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PLACA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PLACA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PLACA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PLACA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PLACA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ProviderConfig points at the vehicle-data API (Basic Auth).
type ProviderConfig struct {
	BaseURL  string        `envconfig:"PLACA_PROVIDER_BASE_URL" required:"true"`
	Username string        `envconfig:"PLACA_PROVIDER_USERNAME" required:"true"`
	Password string        `envconfig:"PLACA_PROVIDER_PASSWORD" required:"true"`
	Timeout  time.Duration `envconfig:"PLACA_PROVIDER_TIMEOUT" default:"20s"`
}

type AsaasConfig struct {
	APIKey       string        `envconfig:"PLACA_ASAAS_API_KEY" required:"true"`
	Env          string        `envconfig:"PLACA_ASAAS_ENV" default:"sandbox"`
	BaseURL      string        `envconfig:"PLACA_ASAAS_BASE_URL"`
	WebhookToken string        `envconfig:"PLACA_ASAAS_WEBHOOK_TOKEN"`
	Timeout      time.Duration `envconfig:"PLACA_ASAAS_TIMEOUT" default:"15s"`
}

// Environment returns the normalized Asaas environment (sandbox/production).
func (a AsaasConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(a.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// PricingConfig holds the sale price and the per-call provider costs, all in cents.
type PricingConfig struct {
	ReportPriceCents       int64 `envconfig:"PLACA_REPORT_PRICE_CENTS" default:"2990"`
	LegacyReportPriceCents int64 `envconfig:"PLACA_LEGACY_REPORT_PRICE_CENTS" default:"2990"`
	LookupCostCents        int64 `envconfig:"PLACA_LOOKUP_COST_CENTS" default:"40"`
	FipeCostCents          int64 `envconfig:"PLACA_FIPE_COST_CENTS" default:"30"`
	RenainfCostCents       int64 `envconfig:"PLACA_RENAINF_COST_CENTS" default:"60"`
}

func (p PricingConfig) validate() error {
	if p.ReportPriceCents <= 0 || p.LegacyReportPriceCents <= 0 {
		return fmt.Errorf("report prices must be positive")
	}
	if p.LookupCostCents < 0 || p.FipeCostCents < 0 || p.RenainfCostCents < 0 {
		return fmt.Errorf("provider costs cannot be negative")
	}
	return nil
}

type CheckoutConfig struct {
	PlateCacheTTL      time.Duration `envconfig:"PLACA_PLATE_CACHE_TTL" default:"24h"`
	OrderDueDays       int           `envconfig:"PLACA_ORDER_DUE_DAYS" default:"1"`
	LegacyDueDays      int           `envconfig:"PLACA_LEGACY_DUE_DAYS" default:"3"`
	QRCodeMaxAttempts  int           `envconfig:"PLACA_QRCODE_MAX_ATTEMPTS" default:"10"`
	QRCodeRetryDelay   time.Duration `envconfig:"PLACA_QRCODE_RETRY_DELAY" default:"2s"`
	ReportDescription  string        `envconfig:"PLACA_REPORT_DESCRIPTION" default:"Relatório veicular completo"`
	PublicReportURLFmt string        `envconfig:"PLACA_PUBLIC_REPORT_URL_FMT" default:"https://placaexpress.com.br/relatorio/%s"`
}

type EnrichmentConfig struct {
	LockTTL        time.Duration `envconfig:"PLACA_ENRICHMENT_LOCK_TTL" default:"60s"`
	WaitAttempts   int           `envconfig:"PLACA_ENRICHMENT_WAIT_ATTEMPTS" default:"10"`
	WaitInterval   time.Duration `envconfig:"PLACA_ENRICHMENT_WAIT_INTERVAL" default:"500ms"`
	AsyncTimeout   time.Duration `envconfig:"PLACA_ENRICHMENT_ASYNC_TIMEOUT" default:"45s"`
	LegacyPollWait time.Duration `envconfig:"PLACA_LEGACY_POLL_MIN_AGE" default:"30s"`
}

// ConversionsConfig configures the Meta Conversions API relay.
type ConversionsConfig struct {
	PixelID     string        `envconfig:"PLACA_META_PIXEL_ID"`
	AccessToken string        `envconfig:"PLACA_META_ACCESS_TOKEN"`
	APIVersion  string        `envconfig:"PLACA_META_API_VERSION" default:"v19.0"`
	TestCode    string        `envconfig:"PLACA_META_TEST_EVENT_CODE"`
	Timeout     time.Duration `envconfig:"PLACA_META_TIMEOUT" default:"10s"`
}

// Enabled reports whether the relay has the credentials it needs.
func (c ConversionsConfig) Enabled() bool {
	return strings.TrimSpace(c.PixelID) != "" && strings.TrimSpace(c.AccessToken) != ""
}

type AdminConfig struct {
	Email        string `envconfig:"PLACA_ADMIN_EMAIL"`
	PasswordHash string `envconfig:"PLACA_ADMIN_PASSWORD_HASH"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PLACA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PLACA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PLACA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PLACA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PLACA_ARGON_KEY_LEN" default:"32"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PLACA_JWT_SECRET"`
	Issuer            string `envconfig:"PLACA_JWT_ISSUER" default:"placaexpress"`
	ExpirationMinutes int    `envconfig:"PLACA_JWT_EXPIRATION_MINUTES" default:"120"`
}

type RateLimitConfig struct {
	PlateSearchWindow time.Duration `envconfig:"PLACA_RATE_LIMIT_PLATE_WINDOW" default:"1m"`
	PlateSearchLimit  int           `envconfig:"PLACA_RATE_LIMIT_PLATE_LIMIT" default:"20"`
	AdminLoginWindow  time.Duration `envconfig:"PLACA_RATE_LIMIT_ADMIN_LOGIN_WINDOW" default:"5m"`
	AdminLoginLimit   int           `envconfig:"PLACA_RATE_LIMIT_ADMIN_LOGIN_LIMIT" default:"5"`
	// OrderEmailLimit caps PIX charges per buyer e-mail within OrderWindow.
	OrderWindow     time.Duration `envconfig:"PLACA_RATE_LIMIT_ORDER_WINDOW" default:"10m"`
	OrderEmailLimit int           `envconfig:"PLACA_RATE_LIMIT_ORDER_EMAIL_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"PLACA_AUTO_MIGRATE" default:"false"`
	LegacyCheckout   bool `envconfig:"PLACA_FEATURE_LEGACY_CHECKOUT" default:"true"`
	AsyncEnrichment  bool `envconfig:"PLACA_FEATURE_ASYNC_ENRICHMENT" default:"true"`
	PlateRedisCache  bool `envconfig:"PLACA_FEATURE_PLATE_REDIS_CACHE" default:"true"`
	AsaasWebhookOpen bool `envconfig:"PLACA_FEATURE_ASAAS_WEBHOOK" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"PLACA_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"PLACA_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PLACA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PLACA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PLACA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic             string `envconfig:"PLACA_PUBSUB_ORDERS_TOPIC" default:"placa-order-events"`
	ConversionsSubscription string `envconfig:"PLACA_PUBSUB_CONVERSIONS_SUBSCRIPTION" default:"placa-conversions"`
	AnalyticsSubscription   string `envconfig:"PLACA_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"placa-analytics"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"PLACA_BIGQUERY_DATASET" default:"placaexpress"`
	SalesEventsTable string `envconfig:"PLACA_BIGQUERY_SALES_TABLE" default:"sales_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PLACA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PLACA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PLACA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig sets the cron worker tick and per-job cadence.
type CronConfig struct {
	Tick               time.Duration `envconfig:"PLACA_CRON_TICK" default:"30s"`
	LockTTL            time.Duration `envconfig:"PLACA_CRON_LOCK_TTL" default:"15m"`
	BackfillEvery      time.Duration `envconfig:"PLACA_CRON_BACKFILL_EVERY" default:"1h"`
	LegacyPollEvery    time.Duration `envconfig:"PLACA_CRON_LEGACY_POLL_EVERY" default:"1m"`
	LegacyPollBatch    int           `envconfig:"PLACA_CRON_LEGACY_POLL_BATCH" default:"50"`
	OutboxRetention    time.Duration `envconfig:"PLACA_CRON_OUTBOX_RETENTION" default:"720h"`
	OutboxCleanupEvery time.Duration `envconfig:"PLACA_CRON_OUTBOX_CLEANUP_EVERY" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
