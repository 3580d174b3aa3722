// File path: internal/llm/config.go
package llm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIKey      string
	Endpoint    string
	ChatModel   string
	EmbedModel  string
	Temperature float64
	HTTPTimeout time.Duration

	// MaxRetries bounds the extra attempts after the first failed call.
	MaxRetries   int
	RetryBackoff time.Duration
	// RateLimit is the sustained calls per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

func LoadConfig() (Config, error) {
	cfg := Config{
		APIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Endpoint:   strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")),
		ChatModel:  strings.TrimSpace(os.Getenv("OPENAI_CHAT_MODEL")),
		EmbedModel: strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL")),
		MaxRetries: -1,
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse OPENAI_TEMPERATURE: %w", err)
		}
		cfg.Temperature = parsed
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse OPENAI_HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = parsed
	}
	if value := strings.TrimSpace(os.Getenv("LLM_MAX_RETRIES")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse LLM_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = parsed
	}
	if value := strings.TrimSpace(os.Getenv("LLM_RETRY_BACKOFF")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse LLM_RETRY_BACKOFF: %w", err)
		}
		cfg.RetryBackoff = parsed
	}
	if value := strings.TrimSpace(os.Getenv("LLM_RATE_LIMIT")); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse LLM_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = parsed
	}
	cfg.applyDefaults()
	return cfg, cfg.validate()
}

func (c *Config) applyDefaults() {
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o-mini"
	}
	if c.EmbedModel == "" {
		c.EmbedModel = "text-embedding-3-small"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 60 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
}

func (c Config) validate() error {
	if c.MaxRetries > maxRetryLimit {
		return fmt.Errorf("llm retries must not exceed %d", maxRetryLimit)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm temperature %.2f out of range", c.Temperature)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("llm rate limit must not be negative")
	}
	return nil
}
