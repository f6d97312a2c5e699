package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Stripe        StripeConfig
	Plans         PlansConfig
	CORS          CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && cfg.Stripe.Environment() != StripeEnvLive {
		return nil, fmt.Errorf("%s must be %q when %s is %q", EnvStripeEnv, StripeEnvLive, EnvAppEnv, cfg.App.Env)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ALPHACUT_APP_ENV" required:"true"`
	Port         string `envconfig:"ALPHACUT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ALPHACUT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"ALPHACUT_LOG_FORMAT"`
	LogWarnStack bool   `envconfig:"ALPHACUT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN        string `envconfig:"ALPHACUT_DB_DSN"`
	Driver     string `envconfig:"ALPHACUT_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"ALPHACUT_DB_SQLITE_PATH" default:"alphacut.db"`

	LegacyHost     string `envconfig:"ALPHACUT_DB_HOST"`
	LegacyPort     int    `envconfig:"ALPHACUT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ALPHACUT_DB_USER"`
	LegacyPassword string `envconfig:"ALPHACUT_DB_PASSWORD"`
	LegacyName     string `envconfig:"ALPHACUT_DB_NAME"`
	LegacySSLMode  string `envconfig:"ALPHACUT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ALPHACUT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ALPHACUT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ALPHACUT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ALPHACUT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ALPHACUT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ALPHACUT_REDIS_ADDR"`
	Password     string        `envconfig:"ALPHACUT_REDIS_PASSWORD"`
	DB           int           `envconfig:"ALPHACUT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ALPHACUT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ALPHACUT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ALPHACUT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ALPHACUT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ALPHACUT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ALPHACUT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ALPHACUT_JWT_ISSUER" default:"alphacut"`
	ExpirationMinutes int    `envconfig:"ALPHACUT_JWT_EXPIRATION_MINUTES" default:"43200"`
}

// TokenTTL returns the session token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"ALPHACUT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"ALPHACUT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"ALPHACUT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	CheckoutWindow  time.Duration `envconfig:"ALPHACUT_AUTH_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit int           `envconfig:"ALPHACUT_AUTH_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ALPHACUT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"ALPHACUT_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

type StripeConfig struct {
	APIKey             string `envconfig:"ALPHACUT_STRIPE_API_KEY"`
	Secret             string `envconfig:"ALPHACUT_STRIPE_SECRET"`
	Env                string `envconfig:"ALPHACUT_STRIPE_ENV" default:"test"`
	MonthlyPriceID     string `envconfig:"ALPHACUT_STRIPE_MONTHLY_PRICE_ID" default:"price_1SoZB3APD5yL4G6BRJop7DTO"`
	AnnualPriceID      string `envconfig:"ALPHACUT_STRIPE_ANNUAL_PRICE_ID" default:"price_1SoZC2APD5yL4G6BP1G2rS4K"`
	MonthlyPaymentLink string `envconfig:"ALPHACUT_STRIPE_PAYMENT_LINK_MONTHLY"`
	AnnualPaymentLink  string `envconfig:"ALPHACUT_STRIPE_PAYMENT_LINK_ANNUAL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PlansConfig struct {
	Currency     string `envconfig:"ALPHACUT_PLANS_CURRENCY" default:"BRL"`
	MonthlyPrice string `envconfig:"ALPHACUT_PLANS_MONTHLY_PRICE" default:"19.90"`
	AnnualPrice  string `envconfig:"ALPHACUT_PLANS_ANNUAL_PRICE" default:"149.00"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"ALPHACUT_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

// UsesSQLite reports whether the local single-file driver is selected.
func (db DBConfig) UsesSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" || db.UsesSQLite() {
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
