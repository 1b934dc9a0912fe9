// Package config loads process configuration from environment variables,
// following the teacher's typed-struct pattern (apps/rag-loader/internal/config).
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the full set of environment-controlled knobs enumerated in
// spec §6, plus the ambient ones every service in the pack carries.
type Config struct {
	// Auth Gate (C2)
	JWTSecret      string        `env:"JWT_SECRET,required"`
	TokenTTLHours  int           `env:"TOKEN_TTL_HOURS" envDefault:"24"`
	RefreshTTLDays int           `env:"REFRESH_TTL_DAYS" envDefault:"30"`
	RateLimitN     int           `env:"AUTH_RATE_LIMIT_N" envDefault:"5"`
	RateLimitM     time.Duration `env:"AUTH_RATE_LIMIT_WINDOW" envDefault:"15m"`

	// Vector store (C3)
	VectorDSN string `env:"VECTOR_DSN,required"`

	// Graph store (C4)
	GraphURI      string `env:"GRAPH_URI,required"`
	GraphUser     string `env:"GRAPH_USER"`
	GraphPassword string `env:"GRAPH_PASSWORD"`

	// ESS adapter (C5)
	ESSBaseURL string        `env:"ESS_BASE_URL"`
	ESSAPIKey  string        `env:"ESS_API_KEY"`
	ESSTimeout time.Duration `env:"ESS_TIMEOUT" envDefault:"90s"`

	// Embedding / LLM collaborators (C6/C8)
	EmbedModel string `env:"EMBED_MODEL" envDefault:"default-embed"`
	EmbedDim   int    `env:"EMBED_DIM" envDefault:"768"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"default-llm"`

	// Ambient
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort          int    `env:"HTTP_PORT" envDefault:"8080"`
	DBMaxConnections  int    `env:"DB_MAX_CONNECTIONS" envDefault:"20"`
	RedisAddr         string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	EmbedBatchWorkers int    `env:"EMBED_BATCH_WORKERS" envDefault:"4"`
	MetricsEnabled    bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load parses Config from the process environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration that would make the process unable to
// serve requests correctly (exit code 1 per spec §6).
func (c *Config) Validate() error {
	if c.EmbedDim <= 0 {
		return fmt.Errorf("config: EMBED_DIM must be positive")
	}
	if c.TokenTTLHours <= 0 || c.RefreshTTLDays <= 0 {
		return fmt.Errorf("config: token TTLs must be positive")
	}
	if c.DBMaxConnections <= 0 {
		return fmt.Errorf("config: DB_MAX_CONNECTIONS must be positive")
	}
	return nil
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}
