// Package config provides configuration for the chat relay service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds the relay configuration.
type Config struct {
	// Server settings
	HTTPPort     int `env:"HTTP_PORT,default=8090"`     // Public WebSocket + support API port
	InternalPort int `env:"INTERNAL_PORT,default=8091"` // Internal HTTP port for /health, history, presence

	// Database
	DatabaseURL string `env:"DATABASE_URL,default=gigchat.db"`
	SeedDemo    bool   `env:"SEED_DEMO,default=false"`

	// WebSocket settings
	PingInterval   time.Duration `env:"WS_PING_INTERVAL,default=30s"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT,default=10s"`
	ReadTimeout    time.Duration `env:"WS_READ_TIMEOUT,default=60s"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE,default=65536"`
	SendBufferSize int           `env:"WS_SEND_BUFFER,default=256"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS"` // comma separated, empty allows all

	// Relay limits
	HistoryLimit    int `env:"HISTORY_LIMIT,default=200"`
	MaxMessageChars int `env:"MAX_MESSAGE_CHARS,default=4000"`

	// AI completion settings. An empty provider disables the AI path.
	AIProvider string        `env:"AI_PROVIDER"` // litellm, openai, mock
	AIBaseURL  string        `env:"AI_BASE_URL"`
	AIAPIKey   string        `env:"AI_API_KEY"`
	AIModel    string        `env:"AI_MODEL,default=gpt-4o-mini"`
	AITimeout  time.Duration `env:"AI_TIMEOUT,default=15s"`

	// Logging
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load loads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Origins returns the configured allowed origins.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) validate() error {
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.MaxMessageChars <= 0 {
		return fmt.Errorf("MAX_MESSAGE_CHARS must be positive, got %d", c.MaxMessageChars)
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.SendBufferSize)
	}
	switch c.AIProvider {
	case "", "litellm", "openai", "mock":
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}
	return nil
}
