package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Providers []ProviderSeed  `mapstructure:"providers" validate:"dive"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port" validate:"required"`
	Env            string   `mapstructure:"env"`
	AdminKeys      []string `mapstructure:"admin_keys"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type StoreConfig struct {
	Driver string      `mapstructure:"driver" validate:"oneof=sqlite redis memory"`
	DSN    string      `mapstructure:"dsn" validate:"required_if=Driver sqlite"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// BreakerConfig controls the optional per-provider circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Interval    time.Duration `mapstructure:"interval"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

type AnalyticsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// ProviderSeed adds credentials (and, if missing, the provider itself) on
// startup. Keys may use ENV:NAME indirection.
type ProviderSeed struct {
	ID      string   `mapstructure:"id" validate:"required"`
	Type    string   `mapstructure:"type"`
	Name    string   `mapstructure:"name"`
	BaseURL string   `mapstructure:"base_url" validate:"omitempty,url"`
	APIKeys []string `mapstructure:"api_keys"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Default Values
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.admin_keys", []string{})
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "file:aios.db?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("breaker.enabled", false)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("http.timeout", "60s")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "aios")
	v.SetDefault("analytics.enabled", true)
	v.SetDefault("analytics.buffer_size", 10000)
	v.SetDefault("analytics.batch_size", 50)
	v.SetDefault("analytics.flush_interval", "5s")

	// Environment Variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Resolve secrets
	for i, key := range cfg.Server.AdminKeys {
		cfg.Server.AdminKeys[i] = resolve(v, key)
	}
	cfg.Store.Redis.Password = resolve(v, cfg.Store.Redis.Password)
	for i, p := range cfg.Providers {
		keys := make([]string, 0, len(p.APIKeys))
		for _, k := range p.APIKeys {
			if k = resolve(v, k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.Providers[i].APIKeys = keys
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// resolve expands an ENV:NAME reference. Other values are returned unchanged.
func resolve(v *viper.Viper, value string) string {
	envVar, ok := strings.CutPrefix(value, "ENV:")
	if !ok {
		return value
	}
	// Check process environment first (explicit override)
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return v.GetString(envVar)
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
