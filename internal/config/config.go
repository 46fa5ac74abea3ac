package config

import (
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/warp/savings-engine/pkg/logger"
)

var config *Config

// Config holds every setting the service reads. Only this struct may be
// used to read configuration; no package looks at the environment directly.
type Config struct {
	AppEnv   string `env:"APP_ENV,default=dev"`
	AppName  string `env:"APP_NAME,default=savings-engine"`
	LogLevel string `env:"LOG_LEVEL"`

	HttpListenAddr         string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpServerReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	HttpServerWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=15s"`
	CorsAllowedOrigins     string        `env:"CORS_ALLOWED_ORIGINS,default=*"`

	StoreDriver string `env:"STORE_DRIVER,default=sqlite"`
	SqlitePath  string `env:"SQLITE_PATH,default=./data/savings.db"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	PostgresAutoMigrate bool `env:"POSTGRES_AUTO_MIGRATE,default=false"`
	PostgresDebug       bool `env:"POSTGRES_DEBUG,default=false"`

	LockBackend     string        `env:"LOCK_BACKEND,default=memory"`
	RedisAddr       string        `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername   string        `env:"REDIS_USER"`
	RedisPassword   string        `env:"REDIS_PASS"`
	RedisDatabase   int           `env:"REDIS_DATABASE,default=0"`
	RedisKeyPrefix  string        `env:"REDIS_KEY_PREFIX,default=savings:"`
	LockTTL         time.Duration `env:"LOCK_TTL,default=10s"`
	LockWaitTimeout time.Duration `env:"LOCK_WAIT_TIMEOUT,default=5s"`

	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL,default=1h"`
	ReconcileAutoRepair bool          `env:"RECONCILE_AUTO_REPAIR,default=false"`

	GoalsAllowTargetBelowBalance bool `env:"GOALS_ALLOW_TARGET_BELOW_BALANCE,default=false"`
	UrgencyWarningDays           int  `env:"URGENCY_WARNING_DAYS,default=30"`
	UrgencyCriticalDays          int  `env:"URGENCY_CRITICAL_DAYS,default=7"`

	PromNamespace string `env:"PROM_NAMESPACE,default=savings_engine"`
}

func Load(path string) error {
	c, err := load(path)
	if err != nil {
		return err
	}
	config = c
	return nil
}

func load(path string) (*Config, error) {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return nil, errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return nil, errors.Wrap(err, "failed to map env variables to Configuration object")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Validate rejects settings that cannot start the service.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresWriteHost == "" {
			return errors.New("POSTGRES_WRITE_HOST is required when STORE_DRIVER=postgres")
		}
	default:
		return errors.Errorf("unknown STORE_DRIVER %q (want memory, sqlite or postgres)", c.StoreDriver)
	}

	switch c.LockBackend {
	case "memory", "redis":
	default:
		return errors.Errorf("unknown LOCK_BACKEND %q (want memory or redis)", c.LockBackend)
	}

	if c.UrgencyCriticalDays > c.UrgencyWarningDays {
		return errors.Errorf("URGENCY_CRITICAL_DAYS (%d) must not exceed URGENCY_WARNING_DAYS (%d)",
			c.UrgencyCriticalDays, c.UrgencyWarningDays)
	}
	return nil
}

// CorsOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) CorsOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CorsAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// PostgresRead falls back to the write endpoint when no replica is set.
func (c *Config) PostgresRead() (host, port, user, password, database string) {
	if c.PostgresReadHost == "" {
		return c.PostgresWriteHost, c.PostgresWritePort, c.PostgresWriteUser, c.PostgresWritePassword, c.PostgresWriteDatabase
	}
	return c.PostgresReadHost, c.PostgresReadPort, c.PostgresReadUser, c.PostgresReadPassword, c.PostgresReadDatabase
}
