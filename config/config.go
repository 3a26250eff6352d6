package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Platform PlatformConfig `mapstructure:"platform" yaml:"platform"`
	SSH      SSHConfig      `mapstructure:"ssh" yaml:"ssh"`
	Image    ImageConfig    `mapstructure:"image" yaml:"image"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	MCP      MCPConfig      `mapstructure:"mcp" yaml:"mcp"`
}

// PlatformConfig selects and addresses the sandbox platform
type PlatformConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"`
	AppName     string `mapstructure:"app_name" yaml:"app_name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	Dotenv      string `mapstructure:"dotenv" yaml:"dotenv"`
}

// SSHConfig holds the SSH daemon and tunnel settings
type SSHConfig struct {
	PublicKey     string        `mapstructure:"public_key" yaml:"public_key"`
	Port          int           `mapstructure:"port" yaml:"port"`
	TunnelTimeout time.Duration `mapstructure:"tunnel_timeout" yaml:"tunnel_timeout"`
}

// ImageConfig holds the default base image settings
type ImageConfig struct {
	DefaultPython string `mapstructure:"default_python" yaml:"default_python"`
	DefaultBase   string `mapstructure:"default_base" yaml:"default_base"`
}

// SessionConfig holds the supervisory loop timings
type SessionConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	TerminateWait    time.Duration `mapstructure:"terminate_wait" yaml:"terminate_wait"`
}

// PathsConfig holds the remote path prefixes for mounts and volumes
type PathsConfig struct {
	MountPrefix  string `mapstructure:"mount_prefix" yaml:"mount_prefix"`
	VolumePrefix string `mapstructure:"volume_prefix" yaml:"volume_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode      string `mapstructure:"mode" yaml:"mode"`
	Level     string `mapstructure:"level" yaml:"level"`
	File      string `mapstructure:"file" yaml:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
}

// MCPConfig holds MCP server configuration
type MCPConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	HTTPPort  int    `mapstructure:"http_port" yaml:"http_port"`
}

// EnvPrefix is the prefix for environment variable overrides, e.g. SSHBOX_LOGGING_LEVEL.
const EnvPrefix = "SSHBOX"

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("platform.backend", "modal")
	v.SetDefault("platform.app_name", "sshbox")
	v.SetDefault("platform.environment", "")
	v.SetDefault("platform.dotenv", ".env")

	v.SetDefault("ssh.public_key", "~/.ssh/id_rsa.pub")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.tunnel_timeout", 60*time.Second)

	v.SetDefault("image.default_python", "3.11")
	v.SetDefault("image.default_base", "python:%s-slim-bookworm")

	v.SetDefault("session.poll_interval", 30*time.Second)
	v.SetDefault("session.progress_interval", 10*time.Minute)
	v.SetDefault("session.terminate_wait", 60*time.Second)

	v.SetDefault("paths.mount_prefix", "/mounts")
	v.SetDefault("paths.volume_prefix", "/vol")

	v.SetDefault("logging.mode", "development")
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)

	v.SetDefault("mcp.transport", "stdio")
	v.SetDefault("mcp.http_port", 8080)
}

// New loads and validates the application configuration from v.
// If v already has a config file set (for example from --config), only that file is read.
func New(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("sshbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/sshbox")
		v.AddConfigPath("/etc/sshbox")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	supportedBackends := map[string]bool{
		"modal": true,
	}
	if !supportedBackends[c.Platform.Backend] {
		return fmt.Errorf("invalid platform.backend: %s, must be 'modal'", c.Platform.Backend)
	}

	if c.Platform.AppName == "" {
		return fmt.Errorf("platform.app_name must not be empty")
	}

	if c.SSH.PublicKey == "" {
		return fmt.Errorf("ssh.public_key must not be empty")
	}

	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be between 1 and 65535, got: %d", c.SSH.Port)
	}

	if c.SSH.TunnelTimeout <= 0 {
		return fmt.Errorf("ssh.tunnel_timeout must be positive, got: %s", c.SSH.TunnelTimeout)
	}

	if !strings.Contains(c.Image.DefaultBase, "%s") {
		return fmt.Errorf("image.default_base must contain a %%s placeholder for the python version, got: %s", c.Image.DefaultBase)
	}

	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("session.poll_interval must be positive, got: %s", c.Session.PollInterval)
	}

	if c.Session.ProgressInterval <= 0 {
		return fmt.Errorf("session.progress_interval must be positive, got: %s", c.Session.ProgressInterval)
	}

	if c.Session.TerminateWait <= 0 {
		return fmt.Errorf("session.terminate_wait must be positive, got: %s", c.Session.TerminateWait)
	}

	if !strings.HasPrefix(c.Paths.MountPrefix, "/") || !strings.HasPrefix(c.Paths.VolumePrefix, "/") {
		return fmt.Errorf("paths.mount_prefix and paths.volume_prefix must be absolute")
	}

	if c.Logging.Mode != "development" && c.Logging.Mode != "production" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("logging.max_size_mb must be positive, got: %d", c.Logging.MaxSizeMB)
	}

	if c.MCP.Transport != "stdio" && c.MCP.Transport != "http" {
		return fmt.Errorf("invalid mcp.transport: %s, must be 'stdio' or 'http'", c.MCP.Transport)
	}

	return nil
}

// DefaultBaseImage returns the default registry tag for the given python version,
// falling back to image.default_python when version is empty.
func (c *Config) DefaultBaseImage(version string) string {
	if version == "" {
		version = c.Image.DefaultPython
	}
	return fmt.Sprintf(c.Image.DefaultBase, version)
}
