package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server  ServerConfig  `envconfig:"SERVER"`
	Redis   RedisConfig   `envconfig:"REDIS"`
	JWT     JWTConfig     `envconfig:"JWT"`
	Gateway GatewayConfig `envconfig:"GATEWAY"`
	Lending LendingConfig `envconfig:"LENDING"`
	Admin   AdminConfig   `envconfig:"ADMIN"`
	CORS    CORSConfig    `envconfig:"CORS"`
	Log     LogConfig     `envconfig:"LOG"`
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8000"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
}

type RedisConfig struct {
	Address     string        `envconfig:"ADDRESS" default:"localhost:6379"`
	Password    string        `envconfig:"PASSWORD" default:""`
	Database    int           `envconfig:"DATABASE" default:"0"`
	MaxRetries  int           `envconfig:"MAX_RETRIES" default:"3"`
	PoolSize    int           `envconfig:"POOL_SIZE" default:"100"`
	PoolTimeout time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
}

type JWTConfig struct {
	Secret     string        `envconfig:"SECRET" default:"change-me-in-production"`
	Issuer     string        `envconfig:"ISSUER" default:"shelfwise-gateway"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	CookieName string        `envconfig:"COOKIE_NAME" default:"shelfwise_session"`
}

// GatewayConfig configures the client side: where the lending gateway lives
// and how long a single call may take.
type GatewayConfig struct {
	BaseURL string        `envconfig:"BASE_URL" default:"http://localhost:8000"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

// LendingConfig carries the lending policy knobs. The loan period and the
// ephemeral credential lifetimes are deliberate choices, not derived values.
type LendingConfig struct {
	LoanPeriodDays int           `envconfig:"LOAN_PERIOD_DAYS" default:"14"`
	OTPTTL         time.Duration `envconfig:"OTP_TTL" default:"5m"`
	ResetTokenTTL  time.Duration `envconfig:"RESET_TOKEN_TTL" default:"10m"`
}

// AdminConfig seeds the initial administrator account on gateway startup.
// Admin registration itself requires an admin session, so the first one has
// to come from outside the API.
type AdminConfig struct {
	Email    string `envconfig:"EMAIL" default:"admin@shelfwise.local"`
	Username string `envconfig:"USERNAME" default:"admin"`
	Password string `envconfig:"PASSWORD" default:""`
}

type CORSConfig struct {
	AllowOrigins string `envconfig:"ALLOW_ORIGINS" default:"*"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	// Validate required fields
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	// Validate port
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", cfg.Server.Port)
	}

	if cfg.Lending.LoanPeriodDays < 1 {
		return fmt.Errorf("invalid loan period: %d days", cfg.Lending.LoanPeriodDays)
	}

	if cfg.Lending.ResetTokenTTL <= 0 {
		return fmt.Errorf("invalid reset token TTL: %s", cfg.Lending.ResetTokenTTL)
	}

	return nil
}
