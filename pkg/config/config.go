package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	Service    ServiceConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Store      StoreConfig
	Square     SquareConfig
	Geocoding  GeocodingConfig
	Sendgrid   SendgridConfig
	Accounting AccountingConfig
	Cron       CronConfig
	RateLimit  RateLimitConfig
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
	Env          string `envconfig:"PLATTERLY_APP_ENV" required:"true"`
	Port         string `envconfig:"PLATTERLY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PLATTERLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PLATTERLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PLATTERLY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PLATTERLY_DB_DSN"`
	Driver string `envconfig:"PLATTERLY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PLATTERLY_DB_HOST"`
	LegacyPort     int    `envconfig:"PLATTERLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PLATTERLY_DB_USER"`
	LegacyPassword string `envconfig:"PLATTERLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"PLATTERLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"PLATTERLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PLATTERLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PLATTERLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PLATTERLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PLATTERLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"PLATTERLY_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PLATTERLY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PLATTERLY_REDIS_ADDR"`
	Password     string        `envconfig:"PLATTERLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"PLATTERLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PLATTERLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PLATTERLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PLATTERLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PLATTERLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PLATTERLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PLATTERLY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PLATTERLY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PLATTERLY_JWT_EXPIRATION_MINUTES" default:"60"`
}

// StoreConfig carries storefront policy: order minimums, the delivery
// service area, and the sales tax rate applied at checkout.
type StoreConfig struct {
	MinOrderQty     int      `envconfig:"PLATTERLY_STORE_MIN_ORDER_QTY" default:"10"`
	ServiceAreaZips []string `envconfig:"PLATTERLY_STORE_SERVICE_AREA_ZIPS"`
	TaxRatePercent  string   `envconfig:"PLATTERLY_STORE_TAX_RATE_PERCENT" default:"0"`
	DepotLat        float64  `envconfig:"PLATTERLY_STORE_DEPOT_LAT" default:"33.4942"`
	DepotLng        float64  `envconfig:"PLATTERLY_STORE_DEPOT_LNG" default:"-111.9261"`
}

type SquareConfig struct {
	AccessToken     string `envconfig:"PLATTERLY_SQUARE_ACCESS_TOKEN"`
	Env             string `envconfig:"PLATTERLY_SQUARE_ENV" default:"sandbox"`
	LocationID      string `envconfig:"PLATTERLY_SQUARE_LOCATION_ID"`
	WebhookSecret   string `envconfig:"PLATTERLY_SQUARE_WEBHOOK_SECRET"`
	NotificationURL string `envconfig:"PLATTERLY_SQUARE_NOTIFICATION_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GeocodingConfig struct {
	APIKey  string        `envconfig:"PLATTERLY_GEOCODING_API_KEY"`
	BaseURL string        `envconfig:"PLATTERLY_GEOCODING_BASE_URL"`
	Timeout time.Duration `envconfig:"PLATTERLY_GEOCODING_TIMEOUT" default:"10s"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"PLATTERLY_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"PLATTERLY_SENDGRID_FROM_EMAIL"`
}

type AccountingConfig struct {
	BaseURL string `envconfig:"PLATTERLY_ACCOUNTING_BASE_URL"`
	APIKey  string `envconfig:"PLATTERLY_ACCOUNTING_API_KEY"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"PLATTERLY_CRON_INTERVAL" default:"15m"`
	PendingOrderTTL time.Duration `envconfig:"PLATTERLY_CRON_PENDING_ORDER_TTL" default:"240h"`
}

// RateLimitConfig throttles the unauthenticated checkout and webhook
// surfaces. A zero window or limit disables the matching policy.
type RateLimitConfig struct {
	CheckoutWindow  time.Duration `envconfig:"PLATTERLY_RATELIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit int           `envconfig:"PLATTERLY_RATELIMIT_CHECKOUT_IP_LIMIT" default:"30"`
	WebhookWindow   time.Duration `envconfig:"PLATTERLY_RATELIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookIPLimit  int           `envconfig:"PLATTERLY_RATELIMIT_WEBHOOK_IP_LIMIT" default:"120"`
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
