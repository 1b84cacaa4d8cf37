package config

// EnvPrefix is handed to envconfig; every key below is also accepted unprefixed.
const EnvPrefix = "PLACA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "PLACA_APP_ENV"
	EnvPort     = "PLACA_APP_PORT"
	EnvLogLevel = "PLACA_LOG_LEVEL"

	EnvDBDSN  = "PLACA_DB_DSN"
	EnvDBHost = "PLACA_DB_HOST"
	EnvDBUser = "PLACA_DB_USER"
	EnvDBName = "PLACA_DB_NAME"

	EnvRedisURL = "PLACA_REDIS_URL"

	EnvProviderBaseURL  = "PLACA_PROVIDER_BASE_URL"
	EnvProviderUsername = "PLACA_PROVIDER_USERNAME"
	EnvProviderPassword = "PLACA_PROVIDER_PASSWORD"

	EnvAsaasAPIKey       = "PLACA_ASAAS_API_KEY"
	EnvAsaasEnv          = "PLACA_ASAAS_ENV"
	EnvAsaasWebhookToken = "PLACA_ASAAS_WEBHOOK_TOKEN"

	EnvReportPriceCents = "PLACA_REPORT_PRICE_CENTS"
	EnvOrderDueDays     = "PLACA_ORDER_DUE_DAYS"

	EnvJWTSecret  = "PLACA_JWT_SECRET"
	EnvGCPProject = "PLACA_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
