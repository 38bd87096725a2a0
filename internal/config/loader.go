// Package config provides centralized configuration management. Defaults are
// registered on the shared viper instance by the CLI layer; this package
// decodes whatever viper currently holds into typed structs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load decodes the current viper state into a Config.
func Load() (*Config, error) {
	var cfg Config

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := viper.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Scheduler = cfg.Scheduler.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "", "none", "libsql", "redis":
	default:
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}

	if c.Store.Driver == "redis" && c.Store.RedisAddr == "" {
		return fmt.Errorf("store.redis_addr is required for the redis driver")
	}

	return nil
}

// DefaultStorePath returns the default libsql database location under the
// user config directory.
func DefaultStorePath() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return filepath.Join(".", "quotaflow.db")
	}
	return filepath.Join(base, "quotaflow", "quotaflow.db")
}
