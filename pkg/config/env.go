package config

const EnvPrefix = "ALPHACUT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const StripeEnvLive = "live"

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv         = "ALPHACUT_APP_ENV"
	EnvPort           = "ALPHACUT_APP_PORT"
	EnvDBDSN          = "ALPHACUT_DB_DSN"
	EnvDBHost         = "ALPHACUT_DB_HOST"
	EnvDBUser         = "ALPHACUT_DB_USER"
	EnvDBName         = "ALPHACUT_DB_NAME"
	EnvDBDriver       = "ALPHACUT_DB_DRIVER"
	EnvRedisURL       = "ALPHACUT_REDIS_URL"
	EnvJWTSecret      = "ALPHACUT_JWT_SECRET"
	EnvStripeAPIKey   = "ALPHACUT_STRIPE_API_KEY"
	EnvStripeSecret   = "ALPHACUT_STRIPE_SECRET"
	EnvStripeEnv      = "ALPHACUT_STRIPE_ENV"
	EnvMonthlyLink    = "ALPHACUT_STRIPE_PAYMENT_LINK_MONTHLY"
	EnvAnnualLink     = "ALPHACUT_STRIPE_PAYMENT_LINK_ANNUAL"
	EnvCORSOrigins    = "ALPHACUT_CORS_ALLOWED_ORIGINS"
	EnvMonthlyPrice   = "ALPHACUT_PLANS_MONTHLY_PRICE"
	EnvMonthlyPriceID = "ALPHACUT_STRIPE_MONTHLY_PRICE_ID"
	EnvAnnualPriceID  = "ALPHACUT_STRIPE_ANNUAL_PRICE_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
