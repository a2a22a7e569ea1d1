package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Query          QueryConfig          `mapstructure:"query"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	LogLevel        string        `mapstructure:"log_level"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GetRedisAddr prefers an explicit addr over host:port.
func (r RedisConfig) GetRedisAddr() string {
	if r.Addr != "" {
		return r.Addr
	}
	return r.Host + ":" + r.Port
}

// Policy describes one token bucket: Capacity tokens, refilled by
// RefillTokens every Interval.
type Policy struct {
	Capacity     int           `mapstructure:"capacity"`
	RefillTokens int           `mapstructure:"refill_tokens"`
	Interval     time.Duration `mapstructure:"interval"`
}

type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Store         string        `mapstructure:"store"` // "memory" or "redis"
	Default       Policy        `mapstructure:"default"`
	Strict        Policy        `mapstructure:"strict"`
	Query         Policy        `mapstructure:"query"`
	ExcludedPaths []string      `mapstructure:"excluded_paths"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	RoleCacheTTL    time.Duration `mapstructure:"role_cache_ttl"`
}

type QueryConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxLength         int           `mapstructure:"max_length"`
	RequireAuth       bool          `mapstructure:"require_auth"`
	LogBufferSize     int           `mapstructure:"log_buffer_size"`
	LogRetentionDays  int           `mapstructure:"log_retention_days"`
	LogFlushInterval  time.Duration `mapstructure:"log_flush_interval"`
	LogBatchSize      int           `mapstructure:"log_batch_size"`
	StoredQueryLength int           `mapstructure:"stored_query_length"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

var defaultExcludedPaths = []string{
	"/health", "/metrics", "/swagger", "/api-docs",
	".js", ".css", ".png", ".jpg", ".gif", ".ico",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=leetquery port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.store", "memory")
	v.SetDefault("rate_limit.default.capacity", 100)
	v.SetDefault("rate_limit.default.refill_tokens", 100)
	v.SetDefault("rate_limit.default.interval", time.Minute)
	v.SetDefault("rate_limit.strict.capacity", 10)
	v.SetDefault("rate_limit.strict.refill_tokens", 10)
	v.SetDefault("rate_limit.strict.interval", time.Minute)
	v.SetDefault("rate_limit.query.capacity", 50)
	v.SetDefault("rate_limit.query.refill_tokens", 50)
	v.SetDefault("rate_limit.query.interval", time.Minute)
	v.SetDefault("rate_limit.excluded_paths", defaultExcludedPaths)
	v.SetDefault("rate_limit.sweep_interval", 5*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", 24*time.Hour)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.role_cache_ttl", 30*time.Second)

	v.SetDefault("query.timeout", 15*time.Second)
	v.SetDefault("query.max_length", 50000)
	v.SetDefault("query.require_auth", false)
	v.SetDefault("query.log_buffer_size", 1000)
	v.SetDefault("query.log_retention_days", 30)
	v.SetDefault("query.log_flush_interval", 5*time.Second)
	v.SetDefault("query.log_batch_size", 100)
	v.SetDefault("query.stored_query_length", 2000)

	v.SetDefault("circuit_breaker.max_failures", 5)
	v.SetDefault("circuit_breaker.timeout", 30*time.Second)
}

// Load reads path (if it exists) and applies environment overrides on top.
// SERVER_PORT overrides server.port, AUTH_JWT_SECRET overrides
// auth.jwt_secret and so on.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Conventional names used by deployment tooling
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("database.dsn", "DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required (set JWT_SECRET)")
	}

	policies := map[string]Policy{
		"default": c.RateLimit.Default,
		"strict":  c.RateLimit.Strict,
		"query":   c.RateLimit.Query,
	}
	for name, p := range policies {
		if p.Capacity <= 0 || p.RefillTokens <= 0 || p.Interval <= 0 {
			return fmt.Errorf("rate_limit.%s: capacity, refill_tokens and interval must be positive", name)
		}
	}

	switch c.RateLimit.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate_limit.store: unknown store %q", c.RateLimit.Store)
	}

	if c.RateLimit.Store == "redis" && !c.Redis.Enabled {
		return errors.New("rate_limit.store is redis but redis.enabled is false")
	}

	if c.Query.MaxLength <= 0 {
		return errors.New("query.max_length must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
