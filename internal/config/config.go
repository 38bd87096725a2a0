package config

import (
	"time"

	"github.com/quotaflow/quotaflow/internal/core"
)

// Config is the complete application configuration, layered from defaults,
// an optional YAML config file, and QUOTAFLOW_* environment variables.
type Config struct {
	Server    ServerConfig         `mapstructure:"server"`
	Scheduler core.SchedulerConfig `mapstructure:"scheduler"`
	Transport TransportConfig      `mapstructure:"transport"`
	Store     StoreConfig          `mapstructure:"store"`
	Logging   LoggingConfig        `mapstructure:"logging"`
}

// ServerConfig contains admin HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TransportConfig locates the execution-context registry.
type TransportConfig struct {
	ContextsFile string `mapstructure:"contexts_file"`
}

// StoreConfig selects and configures the rate-limit snapshot store.
// Driver is one of "libsql", "redis", or "none".
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// LoggingConfig controls log output.
// Level is one of trace, debug, info, warn, error.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}
