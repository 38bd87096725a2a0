// Package observability wires the process loggers. CLI commands get a
// human-readable console logger; the server gets structured JSON on stderr.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CLILogger is used by CLI commands.
	CLILogger *zap.Logger

	// ServerLogger is used by the admin HTTP server and the scheduler.
	ServerLogger *zap.Logger
)

// InitCLILogger initializes the console logger for CLI commands.
func InitCLILogger(verbose bool) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	CLILogger = logger
}

// InitServerLogger initializes the structured JSON logger for server mode.
func InitServerLogger(serviceName string, logLevel string) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLogLevel(logLevel))
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.Fields(zap.String("service", serviceName)))
	if err != nil {
		logger = zap.NewNop()
	}
	ServerLogger = logger
}

// ParseLogLevel converts a config string to a zap level, defaulting to info.
func ParseLogLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
