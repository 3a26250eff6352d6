package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			Backend: "modal",
			AppName: "sshbox",
		},
		SSH: SSHConfig{
			PublicKey:     "~/.ssh/id_rsa.pub",
			Port:          22,
			TunnelTimeout: time.Minute,
		},
		Image: ImageConfig{
			DefaultPython: "3.11",
			DefaultBase:   "python:%s-slim-bookworm",
		},
		Session: SessionConfig{
			PollInterval:     30 * time.Second,
			ProgressInterval: 10 * time.Minute,
			TerminateWait:    time.Minute,
		},
		Paths: PathsConfig{
			MountPrefix:  "/mounts",
			VolumePrefix: "/vol",
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			HTTPPort:  8080,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.validate())
	})

	tests := []struct {
		name     string
		mutate   func(*Config)
		contains string
	}{
		{"InvalidBackend", func(c *Config) { c.Platform.Backend = "docker" }, "invalid platform.backend"},
		{"EmptyAppName", func(c *Config) { c.Platform.AppName = "" }, "platform.app_name must not be empty"},
		{"EmptyPublicKey", func(c *Config) { c.SSH.PublicKey = "" }, "ssh.public_key must not be empty"},
		{"InvalidSSHPort", func(c *Config) { c.SSH.Port = 0 }, "ssh.port must be between"},
		{"InvalidTunnelTimeout", func(c *Config) { c.SSH.TunnelTimeout = 0 }, "ssh.tunnel_timeout must be positive"},
		{"BaseWithoutPlaceholder", func(c *Config) { c.Image.DefaultBase = "debian:bookworm-slim" }, "image.default_base must contain"},
		{"InvalidPollInterval", func(c *Config) { c.Session.PollInterval = 0 }, "session.poll_interval must be positive"},
		{"InvalidProgressInterval", func(c *Config) { c.Session.ProgressInterval = -time.Second }, "session.progress_interval must be positive"},
		{"InvalidTerminateWait", func(c *Config) { c.Session.TerminateWait = 0 }, "session.terminate_wait must be positive"},
		{"RelativeMountPrefix", func(c *Config) { c.Paths.MountPrefix = "mounts" }, "must be absolute"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "invalid_mode" }, "invalid logging.mode"},
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "invalid_level" }, "invalid logging.level"},
		{"InvalidLogFileSize", func(c *Config) { c.Logging.File = "/tmp/sshbox.log" }, "logging.max_size_mb must be positive"},
		{"InvalidMCPTransport", func(c *Config) { c.MCP.Transport = "grpc" }, "invalid mcp.transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("HOME", t.TempDir())

		cfg, err := New(viper.New())
		require.NoError(t, err)

		assert.Equal(t, "modal", cfg.Platform.Backend)
		assert.Equal(t, "sshbox", cfg.Platform.AppName)
		assert.Equal(t, "~/.ssh/id_rsa.pub", cfg.SSH.PublicKey)
		assert.Equal(t, 22, cfg.SSH.Port)
		assert.Equal(t, 30*time.Second, cfg.Session.PollInterval)
		assert.Equal(t, 10*time.Minute, cfg.Session.ProgressInterval)
		assert.Equal(t, "/mounts", cfg.Paths.MountPrefix)
		assert.Equal(t, "/vol", cfg.Paths.VolumePrefix)
		assert.Equal(t, "stdio", cfg.MCP.Transport)
	})

	t.Run("FromFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "sshbox.yaml")
		content := `
platform:
  app_name: gpu-dev
session:
  poll_interval: 5s
  progress_interval: 1m
logging:
  mode: production
  level: debug
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		v := viper.New()
		v.SetConfigFile(path)
		cfg, err := New(v)
		require.NoError(t, err)

		assert.Equal(t, "gpu-dev", cfg.Platform.AppName)
		assert.Equal(t, 5*time.Second, cfg.Session.PollInterval)
		assert.Equal(t, time.Minute, cfg.Session.ProgressInterval)
		assert.Equal(t, "production", cfg.Logging.Mode)
		assert.Equal(t, "debug", cfg.Logging.Level)
		// untouched keys keep their defaults
		assert.Equal(t, 60*time.Second, cfg.Session.TerminateWait)
	})

	t.Run("EnvOverride", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("HOME", t.TempDir())
		t.Setenv("SSHBOX_PLATFORM_APP_NAME", "from-env")
		t.Setenv("SSHBOX_SESSION_POLL_INTERVAL", "2s")

		cfg, err := New(viper.New())
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Platform.AppName)
		assert.Equal(t, 2*time.Second, cfg.Session.PollInterval)
	})

	t.Run("InvalidFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "sshbox.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mcp:\n  transport: carrier-pigeon\n"), 0o600))

		v := viper.New()
		v.SetConfigFile(path)
		_, err := New(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid mcp.transport")
	})
}

func TestDefaultBaseImage(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "python:3.11-slim-bookworm", cfg.DefaultBaseImage(""))
	assert.Equal(t, "python:3.12-slim-bookworm", cfg.DefaultBaseImage("3.12"))
}
