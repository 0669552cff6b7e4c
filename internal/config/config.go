// Package config loads service configuration from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Run modes
const (
	RunModeAPI     = "api"
	RunModeMigrate = "migrate"
	RunModeToken   = "token"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var dotenvLoaded sync.Once

// Config holds every setting the service reads at startup
type Config struct {
	RunMode string `env:"RUN_MODE" envDefault:"api"`
	Host    string `env:"HOST" envDefault:"0.0.0.0"`
	Port    int    `env:"PORT" envDefault:"8080"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`

	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	RedisURL string `env:"REDIS_URL"`

	ReplaceLockEnabled bool          `env:"REPLACE_LOCK_ENABLED" envDefault:"true"`
	ReplaceLockTTL     time.Duration `env:"REPLACE_LOCK_TTL" envDefault:"30s"`

	APITokenSecret string `env:"API_TOKEN_SECRET"`

	// Used by token mode only
	TokenSubject string        `env:"TOKEN_SUBJECT"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads .env (once per process), parses the environment and validates the result
func Load() (*Config, error) {
	dotenvLoaded.Do(func() {
		// Ignore errors - the .env file might not exist and that's ok
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected mode and backend have what they need
func (c *Config) Validate() error {
	var errs []error

	switch c.RunMode {
	case RunModeAPI:
		if c.APITokenSecret == "" {
			errs = append(errs, errors.New("API_TOKEN_SECRET is required in api mode"))
		}
	case RunModeMigrate:
		if c.StoreBackend != BackendPostgres {
			errs = append(errs, fmt.Errorf("migrate mode requires STORE_BACKEND=%s", BackendPostgres))
		}
	case RunModeToken:
		if c.APITokenSecret == "" {
			errs = append(errs, errors.New("API_TOKEN_SECRET is required in token mode"))
		}
		if c.TokenSubject == "" {
			errs = append(errs, errors.New("TOKEN_SUBJECT is required in token mode"))
		}
		if c.TokenTTL < 0 {
			errs = append(errs, errors.New("TOKEN_TTL must not be negative"))
		}
		// Minting a token touches no backend
		return joinInvalid(errs)
	default:
		errs = append(errs, fmt.Errorf("unknown RUN_MODE %q", c.RunMode))
	}

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.ReplaceLockEnabled && c.ReplaceLockTTL <= 0 {
		errs = append(errs, errors.New("REPLACE_LOCK_TTL must be positive"))
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	return joinInvalid(errs)
}

func joinInvalid(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
}
