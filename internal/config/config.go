package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/kiranshivaraju/keyhub/internal/apperr"
)

// Config holds all configuration for the KeyHub server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"KEYHUB_PORT" default:"8080"`
	Env             string        `envconfig:"KEYHUB_ENV" default:"development"`
	ShutdownTimeout time.Duration `envconfig:"KEYHUB_SHUTDOWN_TIMEOUT" default:"15s"`
}

type DatabaseConfig struct {
	URL             string        `envconfig:"DATABASE_URL"`
	MaxOpenConns    int           `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"5m"`
	MigrationsDir   string        `envconfig:"MIGRATIONS_DIR" default:"migrations"`
}

type RedisConfig struct {
	URL string `envconfig:"REDIS_URL"`
}

// AuthConfig carries the session-token secret and hashing costs.
type AuthConfig struct {
	TokenSecret     string        `envconfig:"ACCESS_TOKEN_SECRET"`
	TokenTTL        time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
	Issuer          string        `envconfig:"TOKEN_ISSUER" default:"keyhub"`
	BcryptCost      int           `envconfig:"BCRYPT_COST" default:"10"`
	Argon2Time      uint32        `envconfig:"ARGON2_TIME" default:"3"`
	Argon2MemoryKiB uint32        `envconfig:"ARGON2_MEMORY_KIB" default:"65536"`
}

// KafkaConfig is optional. With no brokers, key events are only logged.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_KEY_EVENTS_TOPIC" default:"keyhub.api-key-events"`
}

type RateLimitConfig struct {
	SyncPerMinute int `envconfig:"SYNC_RATE_LIMIT_PER_MIN" default:"120"`
}

// Load reads configuration from the environment (and an optional .env file in
// the working directory) and returns a validated Config.
// A missing ACCESS_TOKEN_SECRET is reported as an apperr.Configuration error.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}
	sections := []struct {
		name string
		spec any
	}{
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"redis", &cfg.Redis},
		{"auth", &cfg.Auth},
		{"kafka", &cfg.Kafka},
		{"rate limit", &cfg.RateLimit},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.spec); err != nil {
			return nil, fmt.Errorf("%s config: %w", s.name, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("KEYHUB_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.TokenSecret == "" {
		return apperr.New(apperr.Configuration, "ACCESS_TOKEN_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}
	// bcrypt.MinCost and bcrypt.MaxCost.
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_KEY_EVENTS_TOPIC is required when KAFKA_BROKERS is set")
	}

	if c.RateLimit.SyncPerMinute < 1 {
		return fmt.Errorf("SYNC_RATE_LIMIT_PER_MIN must be positive, got %d", c.RateLimit.SyncPerMinute)
	}

	return nil
}
