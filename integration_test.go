package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/sshbox/config"
	"github.com/isdmx/sshbox/launcher"
	"github.com/isdmx/sshbox/logger"
	"github.com/isdmx/sshbox/mcpserver"
	"github.com/isdmx/sshbox/sandbox/sandboxtest"
)

const testPublicKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl user@host"

// steppingClock moves forward by the requested duration on every After call
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_rsa.pub")
	require.NoError(t, os.WriteFile(keyPath, []byte(testPublicKey+"\n"), 0o600))

	configPath := filepath.Join(dir, "sshbox.yaml")
	content := "ssh:\n  public_key: " + keyPath + "\nlogging:\n  mode: development\n  level: debug\n" + extra
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(configPath)
	cfg, err := config.New(v)
	require.NoError(t, err)
	return cfg
}

// TestIntegrationConfigLoggerLauncher tests the integration between config, logger, and launcher packages
func TestIntegrationConfigLoggerLauncher(t *testing.T) {
	t.Run("ConfigAndLoggerIntegration", func(t *testing.T) {
		cfg := loadConfig(t, "")

		testLogger, err := logger.NewFromConfig(cfg)
		require.NoError(t, err)
		require.NotNil(t, testLogger)

		testLogger.Info("Integration test started")
		_ = testLogger.Sync()
	})

	t.Run("RotatedLogFile", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "sshbox.log")
		cfg := loadConfig(t, "")
		cfg.Logging.File = logPath

		testLogger, err := logger.NewFromConfig(cfg)
		require.NoError(t, err)
		testLogger.Info("written to file")
		_ = testLogger.Sync()

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to file")
	})

	t.Run("TimedSessionEndToEnd", func(t *testing.T) {
		cfg := loadConfig(t, "")
		clock := &steppingClock{now: time.Date(2026, 3, 4, 22, 15, 0, 0, time.UTC)}
		platform := &sandboxtest.Platform{
			NewSandbox: func(id string) *sandboxtest.Sandbox {
				sb := sandboxtest.NewSandbox(id)
				sb.Now = clock.Now
				return sb
			},
		}

		var out bytes.Buffer
		l := launcher.New(zaptest.NewLogger(t), cfg, platform,
			launcher.WithOutput(&out),
			launcher.WithClock(clock))

		session, err := l.Start(context.Background(), launcher.Options{
			GPU:     "H100",
			Volumes: []string{"data"},
			Timeout: 1,
		})
		require.NoError(t, err)

		req := platform.LastRequest()
		require.NotNil(t, req.GPU)
		assert.Equal(t, "H100", *req.GPU)
		require.NotNil(t, req.Timeout)
		assert.Equal(t, 3600*time.Second, *req.Timeout)
		require.Len(t, req.Volumes, 1)
		assert.Equal(t, "data", req.Volumes["/vol/data"].Name())

		start := clock.Now()
		outcome := session.Supervise(context.Background())
		assert.Equal(t, launcher.OutcomeTimeout, outcome)

		sb := platform.Sandboxes[0]
		events := sb.Snapshot()
		assert.Equal(t, 1, sb.Count("terminate"))
		assert.Equal(t, 1, sb.Count("wait"))
		assert.Equal(t, []string{"terminate", "wait"}, events[len(events)-2:])
		assert.GreaterOrEqual(t, sb.TerminatedAt.Sub(start), time.Hour)

		assert.Contains(t, out.String(), "SSH session started at: 2215")
		assert.Contains(t, out.String(), "SSH session (1h timeout)")
	})

	t.Run("MCPServerLifecycle", func(t *testing.T) {
		cfg := loadConfig(t, "session:\n  poll_interval: 10ms\n  terminate_wait: 1s\n")
		testLogger := zaptest.NewLogger(t)
		platform := &sandboxtest.Platform{}

		var out bytes.Buffer
		l := launcher.New(testLogger, cfg, platform, launcher.WithOutput(&syncWriter{w: &out}))
		server, err := mcpserver.New(cfg, testLogger, l)
		require.NoError(t, err)

		session, err := l.Start(context.Background(), launcher.Options{GPU: "T4"})
		require.NoError(t, err)
		assert.Equal(t, launcher.StateRunning, session.State())
		require.True(t, session.Teardown(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, server.Close(ctx))
		assert.Empty(t, server.List())
	})
}

// syncWriter serialises writes from supervising goroutines
type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
