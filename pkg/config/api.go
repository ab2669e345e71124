package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string        `env:"APP_ENV"                   envDefault:"development"`
	Addr               string        `env:"API_ADDR"                  envDefault:":4000"`
	DatabaseDriver     string        `env:"DATABASE_DRIVER"           envDefault:"postgres"`
	DatabaseURL        string        `env:"DATABASE_URL"              envDefault:"postgres://taskboard:taskboard@db:5432/taskboard?sslmode=disable"`
	JWTSecret          string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL           time.Duration `env:"TOKEN_TTL"                 envDefault:"24h"`
	BcryptCost         int           `env:"BCRYPT_COST"               envDefault:"10"`
	LogLevel           string        `env:"LOG_LEVEL"                 envDefault:"info"`
	RateLimitRedisAddr string        `env:"RATE_LIMIT_REDIS_ADDR"`
	RateLimitRedisPass string        `env:"RATE_LIMIT_REDIS_PASSWORD"`
	RateLimitRedisDB   int           `env:"RATE_LIMIT_REDIS_DB"       envDefault:"0"`
	WSAllowedOrigins   []string      `env:"WS_ALLOWED_ORIGINS"        envSeparator:","`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT"          envDefault:"10s"`
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return APIConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return APIConfig{}, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return APIConfig{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// CLIConfig holds defaults for the taskboard command line client.
type CLIConfig struct {
	APIBaseURL string        `env:"TASKBOARD_API"     envDefault:"http://localhost:4000"`
	Timeout    time.Duration `env:"TASKBOARD_TIMEOUT" envDefault:"15s"`
}

// LoadCLIConfig reads CLI settings, falling back to defaults on parse errors.
func LoadCLIConfig() CLIConfig {
	var cfg CLIConfig
	if err := env.Parse(&cfg); err != nil {
		return CLIConfig{APIBaseURL: "http://localhost:4000", Timeout: 15 * time.Second}
	}
	return cfg
}
