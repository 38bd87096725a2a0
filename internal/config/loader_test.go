package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDecodesViperState(t *testing.T) {
	resetViper(t)

	viper.Set("server.host", "0.0.0.0")
	viper.Set("server.port", 9090)
	viper.Set("scheduler.max_concurrent", 5)
	viper.Set("scheduler.min_cooldown", "90s")
	viper.Set("scheduler.base_retry_delay", "1s")
	viper.Set("transport.contexts_file", "/etc/quotaflow/contexts.yaml")
	viper.Set("store.driver", "libsql")
	viper.Set("store.path", ":memory:")
	viper.Set("logging.level", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 5, cfg.Scheduler.MaxConcurrent)
	require.Equal(t, 90*time.Second, cfg.Scheduler.MinCooldown)
	require.Equal(t, time.Second, cfg.Scheduler.BaseRetryDelay)
	require.Equal(t, "/etc/quotaflow/contexts.yaml", cfg.Transport.ContextsFile)
	require.Equal(t, "libsql", cfg.Store.Driver)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadNormalizesSchedulerDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Scheduler.MaxConcurrent)
	require.Equal(t, 10.0, cfg.Scheduler.CooldownThresholdPercent)
	require.Equal(t, time.Minute, cfg.Scheduler.MinCooldown)
	require.Equal(t, 2*time.Second, cfg.Scheduler.BaseRetryDelay)
	require.Equal(t, 30*time.Second, cfg.Scheduler.RequestTimeout)
}

func TestLoadRejectsBadPort(t *testing.T) {
	resetViper(t)

	viper.Set("server.port", 70000)
	_, err := Load()
	require.ErrorContains(t, err, "server.port out of range")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	resetViper(t)

	viper.Set("store.driver", "etcd")
	_, err := Load()
	require.ErrorContains(t, err, "unsupported store driver")
}

func TestLoadRedisDriverRequiresAddr(t *testing.T) {
	resetViper(t)

	viper.Set("store.driver", "redis")
	_, err := Load()
	require.ErrorContains(t, err, "redis_addr is required")

	viper.Set("store.redis_addr", "localhost:6379")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
}

func TestDefaultStorePath(t *testing.T) {
	require.Contains(t, DefaultStorePath(), "quotaflow")
}
