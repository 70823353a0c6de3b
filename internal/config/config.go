// Package config loads the application configuration from the environment.
//
// Values come from environment variables (optionally from a `.env` file),
// are decoded into typed structs with koanf, start from defaults, and are
// validated so the process fails fast on missing input.
//
// Naming:
//   - prefix TASKAPI_
//   - "__" separates nesting levels: TASKAPI_SERVER__PORT -> server.port
//   - DATABASE_URL is honored as database.url
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deppfellow/go-taskapi/internal/errs"
	"github.com/go-playground/validator/v10"
	// Side-effect import: loads `.env` into the process environment, if present.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix of every application variable.
	EnvPrefix = "TASKAPI_"

	// DatabaseURLEnv is the conventional connection string variable.
	DatabaseURLEnv = "DATABASE_URL"

	// ServiceName is reported to logs and APM.
	ServiceName = "taskapi"
)

// Config is the root configuration object.
//
// `koanf` tags say where values come from, `validate` tags are enforced by
// go-playground/validator after decoding.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Redis         RedisConfig          `koanf:"redis"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds the runtime environment name (local, development, production).
type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig groups the HTTP server settings. Timeouts are in seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required,min=1"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required,min=1"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required,min=1"`
	ShutdownTimeout    int      `koanf:"shutdown_timeout" validate:"required,min=1"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`

	// MaxInFlight bounds concurrently processed API requests. 0 = unbounded.
	MaxInFlight int64 `koanf:"max_in_flight" validate:"min=0"`

	// RateLimit is the allowed requests per second per client IP. 0 disables it.
	RateLimit      float64 `koanf:"rate_limit" validate:"min=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"min=0"`
}

// DatabaseConfig contains the PostgreSQL connection settings.
//
// Either URL or the Host/Port/User/Name group must be set.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	Host     string `koanf:"host" validate:"required_without=URL"`
	Port     int    `koanf:"port" validate:"required_without=URL"`
	User     string `koanf:"user" validate:"required_without=URL"`
	Password string `koanf:"password"`
	Name     string `koanf:"name" validate:"required_without=URL"`
	SSLMode  string `koanf:"ssl_mode"`

	// Mode selects the backend behind the shared handle:
	//   - "pool":   pgxpool, up to MaxOpenConns requests use the database at once
	//   - "single": one connection, requests take turns
	Mode string `koanf:"mode" validate:"oneof=pool single"`

	MaxOpenConns    int `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime int `koanf:"conn_max_lifetime" validate:"min=0"`
	ConnMaxIdleTime int `koanf:"conn_max_idle_time" validate:"min=0"`
}

// DSN returns URL when set, otherwise a postgres:// URL built from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	hostPort := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))

	// The password may contain URL delimiters.
	encodedPassword := url.QueryEscape(d.Password)

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		d.User,
		encodedPassword,
		hostPort,
		d.Name,
		sslMode,
	)
}

// RedisConfig configures the optional task cache. An empty Address disables Redis.
type RedisConfig struct {
	Address  string        `koanf:"address"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// Default returns the configuration used before the environment is applied.
// Only the database location has no default.
func Default() *Config {
	return &Config{
		Primary: Primary{Env: "development"},
		Server: ServerConfig{
			Port:               "8080",
			ReadTimeout:        30,
			WriteTimeout:       30,
			IdleTimeout:        60,
			ShutdownTimeout:    30,
			CORSAllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			SSLMode:         "disable",
			Mode:            "pool",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 3600,
			ConnMaxIdleTime: 300,
		},
		Redis: RedisConfig{
			CacheTTL: 30 * time.Second,
		},
		Observability: DefaultObservabilityConfig(),
	}
}

// envKey maps TASKAPI_SERVER__READ_TIMEOUT to server.read_timeout.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// LoadConfig reads the environment into a validated Config.
//
// Every failure is a *errs.ConfigurationError; the caller is expected to
// report it and exit before serving.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	// DATABASE_URL first so TASKAPI_DATABASE__URL can override it.
	err := k.Load(env.Provider(DatabaseURLEnv, ".", func(s string) string {
		if s == DatabaseURLEnv {
			return "database.url"
		}
		return ""
	}), nil)
	if err != nil {
		return nil, errs.NewConfigurationError("could not load "+DatabaseURLEnv, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errs.NewConfigurationError("could not load environment variables", err)
	}

	// Decoding into a pre-filled struct keeps defaults for absent keys.
	mainConfig := Default()
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, errs.NewConfigurationError("could not decode configuration", err)
	}

	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}
	mainConfig.Observability.ServiceName = ServiceName
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	validate := validator.New()
	if err := validate.Struct(mainConfig); err != nil {
		return nil, errs.NewConfigurationError("invalid configuration", err)
	}

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, errs.NewConfigurationError("invalid observability configuration", err)
	}

	return mainConfig, nil
}
