// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap. Logs go to stderr by default, or to a size-rotated
// file (lumberjack) when logging.file is set, so that they never mix with
// the launcher's status lines on stdout.
//
// Usage:
//
//	logger, err := logger.NewFromConfig(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Info("sandbox created", zap.String("sandbox_id", id))
package logger
