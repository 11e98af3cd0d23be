package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "RELUX_DB_DSN"
	EnvDBHost = "RELUX_DB_HOST"
	EnvDBUser = "RELUX_DB_USER"
	EnvDBName = "RELUX_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Fees         FeeConfig
	Payouts      PayoutConfig
	Refunds      RefundConfig
	PurchaseRate PurchaseRateLimitConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RELUX_APP_ENV" required:"true"`
	Port         string `envconfig:"RELUX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RELUX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RELUX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"RELUX_DB_DSN"`
	Driver string `envconfig:"RELUX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RELUX_DB_HOST"`
	LegacyPort     int    `envconfig:"RELUX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RELUX_DB_USER"`
	LegacyPassword string `envconfig:"RELUX_DB_PASSWORD"`
	LegacyName     string `envconfig:"RELUX_DB_NAME"`
	LegacySSLMode  string `envconfig:"RELUX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RELUX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RELUX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RELUX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RELUX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RELUX_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RELUX_REDIS_ADDR"`
	Password     string        `envconfig:"RELUX_REDIS_PASSWORD"`
	DB           int           `envconfig:"RELUX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RELUX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RELUX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RELUX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RELUX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RELUX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RELUX_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RELUX_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RELUX_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey      string        `envconfig:"RELUX_STRIPE_API_KEY" required:"true"`
	Env         string        `envconfig:"RELUX_STRIPE_ENV" default:"test"`
	CallTimeout time.Duration `envconfig:"RELUX_STRIPE_CALL_TIMEOUT" default:"25s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// FeeConfig drives the buyer protection fee schedule.
type FeeConfig struct {
	BuyerFeeBasisPoints int64  `envconfig:"RELUX_FEE_BUYER_BASIS_POINTS" default:"500"`
	BuyerFeeFixedCents  int64  `envconfig:"RELUX_FEE_BUYER_FIXED_CENTS" default:"100"`
	Currency            string `envconfig:"RELUX_FEE_CURRENCY" default:"USD"`
}

// PayoutConfig configures seller settlement behavior.
type PayoutConfig struct {
	HoldPeriod   time.Duration `envconfig:"RELUX_PAYOUT_HOLD_PERIOD" default:"48h"`
	MaxBatchSize int           `envconfig:"RELUX_PAYOUT_MAX_BATCH_SIZE" default:"50"`
}

// RefundConfig configures the refund negotiation workflow.
type RefundConfig struct {
	MinReasonLength int `envconfig:"RELUX_REFUND_MIN_REASON_LENGTH" default:"10"`
}

// PurchaseRateLimitConfig throttles payment intent creation per buyer.
type PurchaseRateLimitConfig struct {
	Window time.Duration `envconfig:"RELUX_PURCHASE_RATE_LIMIT_WINDOW" default:"60s"`
	Limit  int           `envconfig:"RELUX_PURCHASE_RATE_LIMIT" default:"5"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RELUX_AUTO_MIGRATE" default:"false"`
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
