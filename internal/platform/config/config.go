// Package config centralizes environment-driven configuration so main stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Server captures process-level configuration for the usage service.
// Infrastructure that is optional in a deployment (redis cache, kafka audit
// sink) is switched on by its address/broker variables being non-empty.
type Server struct {
	Addr        string `env:"CHALK_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"CHALK_METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"CHALK_LOG_LEVEL" envDefault:"info"`
	Environment string `env:"CHALK_ENV" envDefault:"production"`

	DatabaseDSN string `env:"DATABASE_URL"`

	RedisAddr    string        `env:"REDIS_ADDR"`
	TierCacheTTL time.Duration `env:"TIER_CACHE_TTL" envDefault:"60s"`

	KafkaBrokers    string `env:"KAFKA_BROKERS"`
	KafkaAuditTopic string `env:"KAFKA_AUDIT_TOPIC" envDefault:"chalk.usage.audit"`

	// SessionSecret verifies HS256 bearer tokens minted by the host app's
	// login flow. AdminTokenHash is a bcrypt hash; the plaintext token is
	// only ever present in X-Admin-Token headers.
	SessionSecret  string `env:"SESSION_SECRET" envDefault:"dev-secret-key-change-in-production"`
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`

	AuditBufferSize int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1024"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
