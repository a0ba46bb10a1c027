package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	Payment      PaymentConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	if _, err := cfg.Checkout.FreightAmount(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MALL_APP_ENV" required:"true"`
	Port         string `envconfig:"MALL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MALL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MALL_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"MALL_CORS_ORIGINS" default:"http://localhost:8080,http://127.0.0.1:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MALL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MALL_DB_DSN"`
	Driver string `envconfig:"MALL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MALL_DB_HOST"`
	LegacyPort     int    `envconfig:"MALL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MALL_DB_USER"`
	LegacyPassword string `envconfig:"MALL_DB_PASSWORD"`
	LegacyName     string `envconfig:"MALL_DB_NAME"`
	LegacySSLMode  string `envconfig:"MALL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MALL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MALL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MALL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MALL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite dialector should be used.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MALL_REDIS_URL"`
	Address      string        `envconfig:"MALL_REDIS_ADDR"`
	Password     string        `envconfig:"MALL_REDIS_PASSWORD"`
	DB           int           `envconfig:"MALL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MALL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MALL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MALL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MALL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MALL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MALL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MALL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MALL_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// PaymentConfig holds the shared secret the payment callback relay signs
// request bodies with. An empty secret rejects every callback.
type PaymentConfig struct {
	CallbackSecret string `envconfig:"MALL_PAYMENT_CALLBACK_SECRET"`
}

// CartConfig drives the anonymous cart token.
type CartConfig struct {
	TokenSecret string        `envconfig:"MALL_CART_TOKEN_SECRET" required:"true"`
	TokenTTL    time.Duration `envconfig:"MALL_CART_TOKEN_TTL" default:"336h"`
	CookieName  string        `envconfig:"MALL_CART_COOKIE_NAME" default:"cart"`
	MaxEntries  int           `envconfig:"MALL_CART_MAX_ENTRIES" default:"100"`
}

type CheckoutConfig struct {
	Freight          string `envconfig:"MALL_CHECKOUT_FREIGHT" default:"10.00"`
	MaxStockAttempts int    `envconfig:"MALL_CHECKOUT_MAX_STOCK_ATTEMPTS" default:"16"`
	SalesRetries     int    `envconfig:"MALL_CHECKOUT_SALES_RETRIES" default:"3"`
}

// FreightAmount parses the configured freight into a decimal.
func (c CheckoutConfig) FreightAmount() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Freight)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", EnvCheckoutFreight, c.Freight, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvCheckoutFreight)
	}
	return amount, nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MALL_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MALL_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"MALL_PUBSUB_ORDERS_TOPIC" default:"mall-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MALL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MALL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MALL_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"MALL_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"MALL_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
