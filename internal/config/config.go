package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	ConsumerEnabled     bool `env:"CONSUMER_ENABLED" envDefault:"true"`
	ConsumerMaxInFlight int  `env:"CONSUMER_MAX_IN_FLIGHT" envDefault:"8"`

	SchedulerEnabled  bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
	SchedulerLockTTL  time.Duration `env:"SCHEDULER_LOCK_TTL" envDefault:"55s"`

	DBMaxOpenConns      int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns      int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime   time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime   time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`
	DBConnectAttempts   int           `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
	DBConnectRetryDelay time.Duration `env:"DB_CONNECT_RETRY_DELAY" envDefault:"2s"`
}

// Load reads an optional .env file, then the process environment. Variables
// already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: dotenv: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.ConsumerMaxInFlight < 1 {
		return nil, fmt.Errorf("config.Load: CONSUMER_MAX_IN_FLIGHT must be at least 1, got %d", cfg.ConsumerMaxInFlight)
	}
	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("config.Load: SCHEDULER_INTERVAL must be positive, got %s", cfg.SchedulerInterval)
	}
	return &cfg, nil
}
