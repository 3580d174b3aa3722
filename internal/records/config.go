// File path: internal/records/config.go
package records

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const DefaultPath = "data/vitaplan.db"

type Config struct {
	Path string `json:"path"`

	MaxOpenConns int `json:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns"`

	ConnMaxLifetime       time.Duration `json:"-"`
	ConnMaxLifetimeString string        `json:"conn_max_lifetime"`

	BusyTimeout       time.Duration `json:"-"`
	BusyTimeoutString string        `json:"busy_timeout"`
}

func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Path) != "" {
		result.Path = strings.TrimSpace(override.Path)
	}
	if override.MaxOpenConns > 0 {
		result.MaxOpenConns = override.MaxOpenConns
	}
	if override.MaxIdleConns > 0 {
		result.MaxIdleConns = override.MaxIdleConns
	}
	if override.ConnMaxLifetime > 0 {
		result.ConnMaxLifetime = override.ConnMaxLifetime
	}
	if strings.TrimSpace(override.ConnMaxLifetimeString) != "" {
		result.ConnMaxLifetimeString = strings.TrimSpace(override.ConnMaxLifetimeString)
	}
	if override.BusyTimeout > 0 {
		result.BusyTimeout = override.BusyTimeout
	}
	if strings.TrimSpace(override.BusyTimeoutString) != "" {
		result.BusyTimeoutString = strings.TrimSpace(override.BusyTimeoutString)
	}
	return result
}

// LoadConfig reads RECORDS_CONFIG_FILE (JSON) and then RECORDS_DB_* overrides.
func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("RECORDS_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadConfigEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = DefaultPath
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		if parsed, err := time.ParseDuration(c.ConnMaxLifetimeString); err == nil {
			c.ConnMaxLifetime = parsed
		}
		if c.ConnMaxLifetime <= 0 {
			c.ConnMaxLifetime = 15 * time.Minute
		}
	}
	if c.BusyTimeout <= 0 {
		if parsed, err := time.ParseDuration(c.BusyTimeoutString); err == nil {
			c.BusyTimeout = parsed
		}
		if c.BusyTimeout <= 0 {
			c.BusyTimeout = 5 * time.Second
		}
	}
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read records config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse records config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("RECORDS_DB_PATH")); path != "" {
		cfg.Path = path
	}
	if openConns := strings.TrimSpace(os.Getenv("RECORDS_DB_MAX_OPEN_CONNS")); openConns != "" {
		value, err := strconv.Atoi(openConns)
		if err != nil {
			return Config{}, fmt.Errorf("parse RECORDS_DB_MAX_OPEN_CONNS: %w", err)
		}
		cfg.MaxOpenConns = value
	}
	if busy := strings.TrimSpace(os.Getenv("RECORDS_DB_BUSY_TIMEOUT")); busy != "" {
		parsed, err := time.ParseDuration(busy)
		if err != nil {
			return Config{}, fmt.Errorf("parse RECORDS_DB_BUSY_TIMEOUT: %w", err)
		}
		cfg.BusyTimeout = parsed
	}
	return cfg, nil
}
