package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "fulfill"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "FULFILL_DB_DSN"
	EnvDBHost = "FULFILL_DB_HOST"
	EnvDBUser = "FULFILL_DB_USER"
	EnvDBName = "FULFILL_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	MoMo    MoMoConfig
	Orders  OrdersConfig
	Cron    CronConfig
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
	Env          string `envconfig:"FULFILL_APP_ENV" required:"true"`
	Port         string `envconfig:"FULFILL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FULFILL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FULFILL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FULFILL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FULFILL_DB_DSN"`
	Driver string `envconfig:"FULFILL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FULFILL_DB_HOST"`
	LegacyPort     int    `envconfig:"FULFILL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FULFILL_DB_USER"`
	LegacyPassword string `envconfig:"FULFILL_DB_PASSWORD"`
	LegacyName     string `envconfig:"FULFILL_DB_NAME"`
	LegacySSLMode  string `envconfig:"FULFILL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FULFILL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FULFILL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FULFILL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FULFILL_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"FULFILL_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FULFILL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FULFILL_REDIS_ADDR"`
	Password     string        `envconfig:"FULFILL_REDIS_PASSWORD"`
	DB           int           `envconfig:"FULFILL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FULFILL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FULFILL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FULFILL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FULFILL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FULFILL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// MoMoConfig carries the credentials and endpoints of the MoMo wallet
// gateway. RequestTimeout bounds every outbound call; a timed-out call is
// treated as failed, never as pending.
type MoMoConfig struct {
	PartnerCode    string        `envconfig:"FULFILL_MOMO_PARTNER_CODE" required:"true"`
	AccessKey      string        `envconfig:"FULFILL_MOMO_ACCESS_KEY" required:"true"`
	SecretKey      string        `envconfig:"FULFILL_MOMO_SECRET_KEY" required:"true"`
	Endpoint       string        `envconfig:"FULFILL_MOMO_ENDPOINT" default:"https://test-payment.momo.vn"`
	RedirectURL    string        `envconfig:"FULFILL_MOMO_REDIRECT_URL" required:"true"`
	IPNURL         string        `envconfig:"FULFILL_MOMO_IPN_URL" required:"true"`
	RequestTimeout time.Duration `envconfig:"FULFILL_MOMO_REQUEST_TIMEOUT" default:"10s"`
}

// OrdersConfig tunes the lifecycle orchestrator.
type OrdersConfig struct {
	// ReturnWindow bounds how long after delivery a return stays permitted.
	ReturnWindow time.Duration `envconfig:"FULFILL_ORDERS_RETURN_WINDOW" default:"168h"`
}

// CronConfig tunes the scheduled workers.
type CronConfig struct {
	Interval time.Duration `envconfig:"FULFILL_CRON_INTERVAL" default:"1m"`
	// PaymentPollAge is the minimum age of a pending gateway payment
	// before the poll job asks the provider about it.
	PaymentPollAge   time.Duration `envconfig:"FULFILL_CRON_PAYMENT_POLL_AGE" default:"5m"`
	PaymentPollBatch int           `envconfig:"FULFILL_CRON_PAYMENT_POLL_BATCH" default:"50"`
	LockTTL          time.Duration `envconfig:"FULFILL_CRON_LOCK_TTL" default:"2m"`
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
