// Package config loads ARCP's process configuration from environment
// variables, following the teacher's caarlos0/env struct-tag pattern.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/0x00K1/arcp/internal/arcperr"
)

// Config holds every environment-configurable knob named in the
// specification's external-interfaces section.
type Config struct {
	Host  string `env:"ARCP_HOST" envDefault:"0.0.0.0"`
	Port  int    `env:"ARCP_PORT" envDefault:"8001"`
	Debug bool   `env:"ARCP_DEBUG" envDefault:"false"`

	JWTSecret         string `env:"JWT_SECRET,required"`
	JWTAlgorithm      string `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTExpireMinutes  int    `env:"JWT_EXPIRE_MINUTES" envDefault:"60"`
	TempTokenMaxMins  int    `env:"JWT_TEMP_EXPIRE_MINUTES" envDefault:"15"`

	AdminUsername string `env:"ADMIN_USERNAME,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	AgentKeys        []string `env:"AGENT_KEYS" envSeparator:","`
	AllowedAgentTypes []string `env:"ALLOWED_AGENT_TYPES" envSeparator:","`

	AgentHeartbeatTimeout time.Duration `env:"AGENT_HEARTBEAT_TIMEOUT" envDefault:"30s"`
	AgentCleanupInterval  time.Duration `env:"AGENT_CLEANUP_INTERVAL" envDefault:"60s"`
	AgentCleanupMinThresh time.Duration `env:"AGENT_CLEANUP_MIN_THRESHOLD" envDefault:"60s"`

	RedisURL              string        `env:"REDIS_URL"`
	RedisHealthCheckInterval time.Duration `env:"REDIS_HEALTH_CHECK_INTERVAL" envDefault:"10s"`
	RedisReconnectInterval   time.Duration `env:"REDIS_RECONNECT_INTERVAL" envDefault:"10s"`

	AzureOpenAIEndpoint   string `env:"AZURE_OPENAI_ENDPOINT"`
	AzureOpenAIAPIKey     string `env:"AZURE_OPENAI_API_KEY"`
	AzureOpenAIAPIVersion string `env:"AZURE_OPENAI_API_VERSION" envDefault:"2024-02-01"`
	AzureEmbeddingDeploy  string `env:"AZURE_OPENAI_EMBEDDING_DEPLOYMENT"`

	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`

	WebsocketTimeout time.Duration `env:"WEBSOCKET_TIMEOUT" envDefault:"60s"`

	VectorSearchTopK    int     `env:"VECTOR_SEARCH_TOP_K" envDefault:"10"`
	VectorMinSimilarity float64 `env:"VECTOR_SEARCH_MIN_SIMILARITY" envDefault:"0.0"`

	SessionTimeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"30m"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// ListenAddr returns the host:port pair httpserver should bind to,
// mirroring the teacher's config.ListenAddr helper.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load parses the environment into a Config, failing fast with a
// ConfigurationError naming the missing or invalid key.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, arcperr.Wrap(arcperr.KindConfigurationError, "failed to load configuration", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, arcperr.New(arcperr.KindConfigurationError, "JWT_SECRET must not be blank")
	}
	if len(cfg.AgentKeys) == 0 {
		return nil, arcperr.New(arcperr.KindConfigurationError, "AGENT_KEYS must contain at least one pre-shared key")
	}
	if cfg.AgentHeartbeatTimeout < time.Second {
		cfg.AgentHeartbeatTimeout = time.Second
	}
	if cfg.AgentCleanupInterval < time.Second {
		cfg.AgentCleanupInterval = time.Second
	}
	if cfg.RedisReconnectInterval < cfg.RedisHealthCheckInterval {
		cfg.RedisReconnectInterval = cfg.RedisHealthCheckInterval
	}
	return cfg, nil
}
