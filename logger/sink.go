package logger

import (
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// lumberjackSink adapts a lumberjack.Logger to zap.Sink.
type lumberjackSink struct {
	*lumberjack.Logger
}

// Sync is a no-op; lumberjack writes straight to the file.
func (lumberjackSink) Sync() error {
	return nil
}

func newLumberjackSink(u *url.URL) (zap.Sink, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return nil, fmt.Errorf("lumberjack sink requires a file path")
	}

	maxSize := 10
	if raw := u.Query().Get("max_size_mb"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid max_size_mb %q: %w", raw, err)
		}
		maxSize = n
	}

	return lumberjackSink{Logger: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: 3,
		Compress:   true,
	}}, nil
}
