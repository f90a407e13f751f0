package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SUBCYCLE"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv   = "SUBCYCLE_APP_ENV"
	EnvPort     = "SUBCYCLE_APP_PORT"
	EnvDBDSN    = "SUBCYCLE_DB_DSN"
	EnvDBHost   = "SUBCYCLE_DB_HOST"
	EnvDBUser   = "SUBCYCLE_DB_USER"
	EnvDBName   = "SUBCYCLE_DB_NAME"
	EnvRedisURL = "SUBCYCLE_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Gateway      GatewayConfig
	Billing      BillingConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"SUBCYCLE_APP_ENV" required:"true"`
	Port         string `envconfig:"SUBCYCLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SUBCYCLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SUBCYCLE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SUBCYCLE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SUBCYCLE_DB_DSN"`
	Driver string `envconfig:"SUBCYCLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SUBCYCLE_DB_HOST"`
	LegacyPort     int    `envconfig:"SUBCYCLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SUBCYCLE_DB_USER"`
	LegacyPassword string `envconfig:"SUBCYCLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SUBCYCLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SUBCYCLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SUBCYCLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SUBCYCLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SUBCYCLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SUBCYCLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SUBCYCLE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SUBCYCLE_REDIS_ADDR"`
	Password     string        `envconfig:"SUBCYCLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SUBCYCLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SUBCYCLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SUBCYCLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SUBCYCLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SUBCYCLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SUBCYCLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GatewayConfig holds the payment gateway credentials and transport settings.
type GatewayConfig struct {
	BaseURL     string        `envconfig:"SUBCYCLE_GATEWAY_BASE_URL" required:"true"`
	APIKey      string        `envconfig:"SUBCYCLE_GATEWAY_API_KEY" required:"true"`
	APISecret   string        `envconfig:"SUBCYCLE_GATEWAY_API_SECRET" required:"true"`
	Timeout     time.Duration `envconfig:"SUBCYCLE_GATEWAY_TIMEOUT" default:"30s"`
	DisplayName string        `envconfig:"SUBCYCLE_GATEWAY_DISPLAY_NAME" default:"subcycle subscription"`
}

// BillingConfig controls the daily scan cadence and money defaults.
type BillingConfig struct {
	Timezone string `envconfig:"SUBCYCLE_BILLING_TIMEZONE" default:"Asia/Seoul"`
	ScanHour int    `envconfig:"SUBCYCLE_BILLING_SCAN_HOUR" default:"6"`
	Currency string `envconfig:"SUBCYCLE_BILLING_CURRENCY" default:"KRW"`
}

// Location resolves the configured billing timezone.
func (b BillingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid billing timezone %q: %w", b.Timezone, err)
	}
	return loc, nil
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SUBCYCLE_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SUBCYCLE_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SUBCYCLE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SUBCYCLE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SUBCYCLE_AUTO_MIGRATE" default:"false"`
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
