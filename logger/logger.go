// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap, providing structured, high-performance logging
// throughout the application.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/sshbox/config"
)

// lumberjackScheme is the zap sink scheme registered for rotated log files.
const lumberjackScheme = "lumberjack"

func init() {
	if err := zap.RegisterSink(lumberjackScheme, newLumberjackSink); err != nil {
		panic(err)
	}
}

// NewFromConfig builds the logger described by cfg.Logging.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.File != "" {
		return NewWithFile(cfg.Logging.Mode, cfg.Logging.Level, cfg.Logging.File, cfg.Logging.MaxSizeMB)
	}
	return New(cfg.Logging.Mode, cfg.Logging.Level)
}

// New creates a new logger instance based on configuration
func New(mode, level string) (*zap.Logger, error) {
	cfg, err := buildConfig(mode, level)
	if err != nil {
		return nil, err
	}
	return cfg.Build()
}

// NewWithFile creates a logger that writes to a size-rotated file instead of stderr.
func NewWithFile(mode, level, path string, maxSizeMB int) (*zap.Logger, error) {
	cfg, err := buildFileConfig(mode, level, path, maxSizeMB)
	if err != nil {
		return nil, err
	}
	return cfg.Build()
}

// buildFileConfig routes log entries to one lumberjack sink. zap opens every
// output path separately, so the file must appear only once; its own internal
// errors stay on stderr.
func buildFileConfig(mode, level, path string, maxSizeMB int) (zap.Config, error) {
	cfg, err := buildConfig(mode, level)
	if err != nil {
		return zap.Config{}, err
	}

	cfg.OutputPaths = []string{fmt.Sprintf("%s:%s?max_size_mb=%d", lumberjackScheme, path, maxSizeMB)}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg, nil
}

func buildConfig(mode, level string) (zap.Config, error) {
	var cfg zap.Config

	switch mode {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return zap.Config{}, fmt.Errorf("invalid logging mode: %s, must be 'production' or 'development'", mode)
	}

	// Set the log level
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("invalid logging level: %s, must be one of 'debug', 'info', 'warn', 'error', 'dpanic', 'panic', 'fatal'", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	return cfg, nil
}
