package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Port            int    `envconfig:"PORT" default:"8080"`
		DefaultCurrency string `envconfig:"DEFAULT_CURRENCY" default:"eur"`
	}

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
	}

	Store struct {
		Driver string `envconfig:"STORE_DRIVER" default:"sqlite"`
		Path   string `envconfig:"DB_PATH" default:"./data/groupledger.db"`
	}

	Auth struct {
		Secret   string        `envconfig:"JWT_SECRET"`
		TokenTTL time.Duration `envconfig:"JWT_TTL" default:"24h"`
	}

	Server struct {
		Timeout          time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		OperationTimeout time.Duration `envconfig:"OPERATION_TIMEOUT" default:"5s"`
		RateLimit        string        `envconfig:"RATE_LIMIT" default:"300-M"`
		CORSOrigins      []string      `envconfig:"CORS_ORIGINS"`
	}

	Invitations struct {
		// TTL of zero keeps invitations open until answered.
		TTL time.Duration `envconfig:"INVITATION_TTL" default:"0"`
	}
}

// Load reads the configuration from the environment. Values from a .env file
// in the working directory fill in variables that are not already set.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be sqlite or memory, got %q", c.Store.Driver))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Server.OperationTimeout < 0 || c.Invitations.TTL < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}
