package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/observability"
)

const envPrefix = "QUOTAFLOW"

var (
	cfgFile string
	verbose bool

	// Version info set by main package.
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by the main package to record build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "quotaflow",
	Short: "Rate-limit-governed request scheduler for admin APIs",
	Long: `quotaflow coordinates callers of a rate-limited remote admin API through
a priority admission queue, a rate-limit tracker learning budgets from
response headers, and a cooldown controller that throttles dispatch before
the provider does.

Use the subcommands to perform specific operations.`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/quotaflow/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads the config file and QUOTAFLOW_* environment variables.
func initConfig() {
	observability.InitCLILogger(verbose)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if configDir, err := os.UserConfigDir(); err == nil && configDir != "" {
			viper.AddConfigPath(configDir + "/quotaflow")
		}
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			observability.CLILogger.Debug("using config file", zap.String("path", viper.ConfigFileUsed()))
		}
	} else if verbose {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			observability.CLILogger.Debug("no config file found, using defaults and environment variables")
		} else {
			observability.CLILogger.Warn("error reading config file", zap.Error(err))
		}
	}

	setDefaults()
}

// setDefaults registers default configuration values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	// Scheduler defaults
	viper.SetDefault("scheduler.max_concurrent", 3)
	viper.SetDefault("scheduler.cooldown_threshold_percent", 10)
	viper.SetDefault("scheduler.min_cooldown", "60s")
	viper.SetDefault("scheduler.base_retry_delay", "2s")
	viper.SetDefault("scheduler.max_retries", 3)
	viper.SetDefault("scheduler.request_timeout", "30s")
	viper.SetDefault("scheduler.tick_interval", "250ms")

	// Transport defaults
	viper.SetDefault("transport.contexts_file", "contexts.yaml")

	// Store defaults
	viper.SetDefault("store.driver", "libsql")
	viper.SetDefault("store.path", config.DefaultStorePath())
	viper.SetDefault("store.url", "")
	viper.SetDefault("store.auth_token", "")
	viper.SetDefault("store.redis_addr", "")
	viper.SetDefault("store.redis_db", 0)
	viper.SetDefault("store.redis_prefix", "")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
}

// serverBaseURL resolves the target server for client-side commands.
func serverBaseURL() string {
	host := viper.GetString("server.host")
	port := viper.GetInt("server.port")
	return fmt.Sprintf("http://%s:%d", host, port)
}
