// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration. Every field has an environment
// default so a bare process starts with the in-memory store.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Audit    AuditConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `env:"SERVER_HOST,default=0.0.0.0"`
	Port int    `env:"SERVER_PORT,default=8080"`

	RateLimitPerSecond int `env:"SERVER_RATE_LIMIT,default=50"`
	RateLimitBurst     int `env:"SERVER_RATE_BURST,default=100"`

	CORSOrigins []string `env:"SERVER_CORS_ORIGINS,default=*"`
}

// DatabaseConfig selects the persistence backend. An empty DSN keeps
// everything in memory.
type DatabaseConfig struct {
	DSN           string `env:"DATABASE_URL,default="`
	MigrationsDir string `env:"DATABASE_MIGRATIONS,default=db/migrations"`
	MaxOpenConns  int    `env:"DATABASE_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns  int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
}

// RedisConfig enables the cross-instance broadcast bridge when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,default="`
	Password string `env:"REDIS_PASSWORD,default="`
	DB       int    `env:"REDIS_DB,default=0"`
}

// AuthConfig carries the token-signing secret.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET,default="`
}

// LoggingConfig mirrors the logger package options.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
	Output string `env:"LOG_OUTPUT,default=stdout"`
}

// AuditConfig controls the persistent audit trail.
type AuditConfig struct {
	FilePath string `env:"AUDIT_FILE,default="`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
