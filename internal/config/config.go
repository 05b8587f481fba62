package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the relay server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Inference InferenceConfig
	Worker    WorkerConfig
	Stream    StreamConfig
	Models    ModelsConfig

	RateLimitPerMin int
	AllowClear      bool
}

type ServerConfig struct {
	Port int
	Env  string
}

// DatabaseConfig configures the Postgres job store. An empty URL selects the
// in-memory store (development mode).
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the result cache. An empty URL selects the in-memory
// cache (development mode).
type RedisConfig struct {
	URL string
}

type InferenceConfig struct {
	BaseURL      string
	APIToken     string
	MaxRetries   int
	BackoffBase  time.Duration
	TextTimeout  time.Duration
	ImageTimeout time.Duration
}

type WorkerConfig struct {
	PollInterval time.Duration
	CacheTTL     time.Duration
}

type StreamConfig struct {
	PollInterval time.Duration
}

// ModelsConfig maps client-facing quality tiers to provider model ids. The
// client only ever names a tier; model ids never cross the API boundary
// inbound, so a client cannot point the worker at an arbitrary remote model.
type ModelsConfig struct {
	Text  map[string]string
	Image map[string]string
}

const DefaultTier = "fast"

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any value is invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("RELAY_PORT", 8080),
			Env:  envString("RELAY_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Inference: InferenceConfig{
			BaseURL:      envString("HF_API_URL", "https://api-inference.huggingface.co"),
			APIToken:     os.Getenv("HF_API_TOKEN"),
			MaxRetries:   envInt("INFERENCE_MAX_RETRIES", 3),
			BackoffBase:  envDuration("INFERENCE_BACKOFF_BASE", 2*time.Second),
			TextTimeout:  envDuration("INFERENCE_TEXT_TIMEOUT", 30*time.Second),
			ImageTimeout: envDuration("INFERENCE_IMAGE_TIMEOUT", 60*time.Second),
		},
		Worker: WorkerConfig{
			PollInterval: envDuration("WORKER_POLL_INTERVAL", 2*time.Second),
			CacheTTL:     envDuration("RESULT_CACHE_TTL", time.Hour),
		},
		Stream: StreamConfig{
			PollInterval: envDuration("STREAM_POLL_INTERVAL", time.Second),
		},
		Models: ModelsConfig{
			Text: map[string]string{
				"fast":     envString("MODEL_TEXT_FAST", "distilgpt2"),
				"balanced": envString("MODEL_TEXT_BALANCED", "gpt2-large"),
				"quality":  envString("MODEL_TEXT_QUALITY", "mistralai/Mistral-7B-Instruct-v0.2"),
			},
			Image: map[string]string{
				"fast":     envString("MODEL_IMAGE_FAST", "stabilityai/sdxl-turbo"),
				"balanced": envString("MODEL_IMAGE_BALANCED", "runwayml/stable-diffusion-v1-5"),
				"quality":  envString("MODEL_IMAGE_QUALITY", "stabilityai/stable-diffusion-xl-base-1.0"),
			},
		},
		RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 30),
		AllowClear:      envBool("ALLOW_CLEAR", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("RELAY_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if !strings.HasPrefix(c.Inference.BaseURL, "http://") && !strings.HasPrefix(c.Inference.BaseURL, "https://") {
		return fmt.Errorf("HF_API_URL must start with http:// or https://, got %q", c.Inference.BaseURL)
	}
	if c.Inference.MaxRetries < 1 {
		return fmt.Errorf("INFERENCE_MAX_RETRIES must be at least 1, got %d", c.Inference.MaxRetries)
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive, got %s", c.Worker.PollInterval)
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("STREAM_POLL_INTERVAL must be positive, got %s", c.Stream.PollInterval)
	}

	for tier, model := range c.Models.Text {
		if model == "" {
			return fmt.Errorf("text model for tier %q must not be empty", tier)
		}
	}
	for tier, model := range c.Models.Image {
		if model == "" {
			return fmt.Errorf("image model for tier %q must not be empty", tier)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
