package launcher

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/isdmx/sshbox/config"
	"github.com/isdmx/sshbox/sandbox"
)

// sshdCommand runs the daemon in the foreground with logs on stderr.
var sshdCommand = []string{"/usr/sbin/sshd", "-D", "-e"}

// Launcher provisions SSH sandboxes and supervises them
type Launcher struct {
	config      *config.Config
	logger      *zap.Logger
	platform    sandbox.Platform
	out         io.Writer
	clock       Clock
	newProgress ProgressFactory
	highlight   lipgloss.Style
}

// Option defines a functional option for Launcher
type Option func(*Launcher)

// WithOutput sets where status lines are written (default os.Stdout)
func WithOutput(w io.Writer) Option {
	return func(l *Launcher) {
		l.out = w
	}
}

// WithClock sets the time source of the supervisory loop
func WithClock(c Clock) Option {
	return func(l *Launcher) {
		l.clock = c
	}
}

// WithProgress sets the progress indicator factory
func WithProgress(f ProgressFactory) Option {
	return func(l *Launcher) {
		l.newProgress = f
	}
}

// New creates a Launcher with default implementations and optional overrides
func New(logger *zap.Logger, cfg *config.Config, platform sandbox.Platform, opts ...Option) *Launcher {
	l := &Launcher{
		config:      cfg,
		logger:      logger,
		platform:    platform,
		out:         os.Stdout,
		clock:       realClock{},
		newProgress: NewProgressBar,
	}

	for _, opt := range opts {
		opt(l)
	}

	l.highlight = lipgloss.NewRenderer(l.out).NewStyle().Bold(true)
	return l
}

func (l *Launcher) printf(format string, args ...any) {
	fmt.Fprintf(l.out, format, args...)
}

// Start provisions the sandbox, starts sshd and resolves the SSH tunnel.
// If anything fails after the sandbox was created, it is torn down before
// the error is returned.
func (l *Launcher) Start(ctx context.Context, opts Options) (*Session, error) {
	l.printf("SSH session started at: %s\n", l.clock.Now().Format("1504"))

	image, err := l.BuildImage(ctx, opts)
	if err != nil {
		return nil, err
	}

	mounts, err := ParseMounts(opts.Mounts, l.config.Paths.MountPrefix)
	if err != nil {
		return nil, err
	}

	volumes, err := l.ResolveVolumes(ctx, opts.Volumes)
	if err != nil {
		return nil, err
	}

	gpuLabel := opts.GPU
	if gpuLabel == "" {
		gpuLabel = "none"
	}
	l.printf("Starting SSH container with GPU: %s\n", gpuLabel)
	if len(volumes) > 0 {
		l.printf("Mounting %d volume(s)\n", len(volumes))
	}

	req := l.createRequest(opts, image, volumes, mounts)
	sb, err := l.platform.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	session := &Session{
		launcher: l,
		sandbox:  sb,
		options:  opts,
		state:    StateRunning,
	}
	log := l.logger.With(zap.String("sandbox_id", sb.ID()))
	gpu := ParseGPU(opts.GPU)
	log.Info("sandbox created",
		zap.String("gpu_type", gpu.Type),
		zap.Int("gpu_count", gpu.Count),
		zap.Int("volumes", len(volumes)),
		zap.Int("mounts", len(mounts)),
		zap.Duration("timeout", opts.TimeoutDuration()))

	if err := sb.Exec(ctx, sshdCommand); err != nil {
		session.Teardown(ctx)
		return nil, fmt.Errorf("failed to start sshd: %w", err)
	}

	endpoint, err := sb.Tunnel(ctx, l.config.SSH.Port)
	if err != nil {
		session.Teardown(ctx)
		return nil, fmt.Errorf("failed to resolve ssh tunnel: %w", err)
	}
	session.endpoint = endpoint
	log.Info("ssh tunnel ready", zap.String("endpoint", endpoint.String()))

	l.printf("SSH ready. Connect with:\n  %s\n", l.highlight.Render(session.SSHCommand()))
	return session, nil
}

// ResolveVolumes looks up each named volume, creating it if missing, and maps
// it to its mount path. Empty names are skipped and a repeated name keeps the
// last handle.
func (l *Launcher) ResolveVolumes(ctx context.Context, names []string) (map[string]sandbox.Volume, error) {
	volumes := make(map[string]sandbox.Volume)
	for _, name := range names {
		if name == "" {
			continue
		}

		vol, err := l.platform.Volume(ctx, name)
		if err != nil {
			return nil, err
		}

		mountPath := VolumePath(l.config.Paths.VolumePrefix, name)
		volumes[mountPath] = vol
		l.printf("Volume '%s' will be mounted at %s\n", name, mountPath)
	}
	return volumes, nil
}

// createRequest sets only the resources the caller asked for
func (l *Launcher) createRequest(opts Options, image sandbox.Image, volumes map[string]sandbox.Volume, mounts []sandbox.Mount) sandbox.CreateRequest {
	req := sandbox.CreateRequest{
		Image:            image,
		UnencryptedPorts: []int{l.config.SSH.Port},
	}

	if timeout := opts.TimeoutDuration(); timeout > 0 {
		req.Timeout = &timeout
	}
	if opts.GPU != "" {
		gpu := opts.GPU
		req.GPU = &gpu
	}
	if len(volumes) > 0 {
		req.Volumes = volumes
	}
	if opts.CPU > 0 {
		cpu := float64(opts.CPU)
		req.CPU = &cpu
	}
	if opts.Memory > 0 {
		memoryMiB := opts.Memory * 1024
		req.MemoryMiB = &memoryMiB
	}
	if len(mounts) > 0 {
		req.Mounts = mounts
	}

	return req
}
