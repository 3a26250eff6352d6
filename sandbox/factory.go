package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/sshbox/config"
)

// NewPlatform creates the sandbox platform selected by platform.backend
func NewPlatform(logger *zap.Logger, cfg *config.Config) (Platform, error) {
	switch cfg.Platform.Backend {
	case "modal":
		return NewModalPlatform(logger, cfg)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Platform.Backend)
	}
}
