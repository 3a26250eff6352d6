package launcher

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/sshbox/config"
	"github.com/isdmx/sshbox/sandbox/sandboxtest"
)

const testPublicKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl user@host"

// fakeClock advances its own time on every After call so the supervisory
// loop runs without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// recordingProgress records every update it receives
type recordingProgress struct {
	timeout time.Duration
	updates []time.Duration
	closed  int
}

func (p *recordingProgress) Update(elapsed time.Duration) {
	p.updates = append(p.updates, elapsed)
}

func (p *recordingProgress) Close() {
	p.closed++
}

type progressRecorder struct {
	created []*recordingProgress
}

func (r *progressRecorder) factory(_ io.Writer, timeout time.Duration) Progress {
	p := &recordingProgress{timeout: timeout}
	r.created = append(r.created, p)
	return p
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	keyPath := filepath.Join(t.TempDir(), "id_rsa.pub")
	require.NoError(t, os.WriteFile(keyPath, []byte(testPublicKey+"\n"), 0o600))

	return &config.Config{
		Platform: config.PlatformConfig{Backend: "modal", AppName: "sshbox"},
		SSH: config.SSHConfig{
			PublicKey:     keyPath,
			Port:          22,
			TunnelTimeout: time.Minute,
		},
		Image: config.ImageConfig{
			DefaultPython: "3.11",
			DefaultBase:   "python:%s-slim-bookworm",
		},
		Session: config.SessionConfig{
			PollInterval:     30 * time.Second,
			ProgressInterval: 10 * time.Minute,
			TerminateWait:    time.Minute,
		},
		Paths:   config.PathsConfig{MountPrefix: "/mounts", VolumePrefix: "/vol"},
		Logging: config.LoggingConfig{Mode: "development", Level: "warn"},
		MCP:     config.MCPConfig{Transport: "stdio", HTTPPort: 8080},
	}
}

type testEnv struct {
	launcher *Launcher
	platform *sandboxtest.Platform
	clock    *fakeClock
	progress *progressRecorder
	out      *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		platform: &sandboxtest.Platform{},
		clock:    newFakeClock(),
		progress: &progressRecorder{},
		out:      &bytes.Buffer{},
	}
	env.platform.NewSandbox = func(id string) *sandboxtest.Sandbox {
		sb := sandboxtest.NewSandbox(id)
		sb.Now = env.clock.Now
		return sb
	}
	env.launcher = New(zaptest.NewLogger(t), testConfig(t), env.platform,
		WithOutput(env.out),
		WithClock(env.clock),
		WithProgress(env.progress.factory))
	return env
}

func (e *testEnv) sandbox(t *testing.T) *sandboxtest.Sandbox {
	t.Helper()
	require.Len(t, e.platform.Sandboxes, 1)
	return e.platform.Sandboxes[0]
}
