// Package config loads service configuration from the environment so
// main stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr string `env:"VISITID_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"VISITID_DATABASE_URL"`

	Redis RedisConfig `envPrefix:"VISITID_REDIS_"`
	Kafka KafkaConfig `envPrefix:"VISITID_KAFKA_"`

	JWTSigningKey string `env:"VISITID_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"VISITID_JWT_ISSUER" envDefault:"visitid"`
	JWTAudience   string `env:"VISITID_JWT_AUDIENCE" envDefault:"api"`

	CookieSecure bool   `env:"VISITID_COOKIE_SECURE" envDefault:"false"`
	CookiePath   string `env:"VISITID_COOKIE_PATH" envDefault:"/"`

	RateLimit RateLimitConfig `envPrefix:"VISITID_RATELIMIT_"`

	AuditBuffer int `env:"VISITID_AUDIT_BUFFER" envDefault:"256"`

	ShutdownTimeout time.Duration `env:"VISITID_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// RedisConfig configures the optional Redis connection. An empty URL
// means Redis is not configured and in-memory fallbacks are used.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the optional audit event publisher. Empty
// brokers disable Kafka and audit events stay in-process.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS"`
	Topic   string   `env:"TOPIC" envDefault:"identity.audit"`
}

// RateLimitConfig throttles the bootstrap endpoints per client IP.
type RateLimitConfig struct {
	Disabled bool          `env:"DISABLED" envDefault:"false"`
	Limit    int           `env:"LIMIT" envDefault:"60"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
