// Package sandbox provides the remote sandbox platform abstraction.
//
// ModalPlatform runs sandboxes on Modal. Images are built from a registry
// base plus Dockerfile commands, volumes are looked up by name, and local
// directory mounts are packed, uploaded and unpacked after creation.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modal-labs/libmodal/modal-go"
	"go.uber.org/zap"

	"github.com/isdmx/sshbox/config"
)

// ModalPlatform implements Platform on top of the Modal Go SDK
type ModalPlatform struct {
	client *modal.Client
	config *config.Config
	logger *zap.Logger

	mu  sync.Mutex
	app *modal.App
}

// NewModalPlatform creates a Modal client using the credentials from the
// environment (MODAL_TOKEN_ID, MODAL_TOKEN_SECRET) or ~/.modal.toml.
func NewModalPlatform(logger *zap.Logger, cfg *config.Config) (*ModalPlatform, error) {
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create modal client: %w", err)
	}

	return &ModalPlatform{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// appHandle looks up the platform app once and caches it
func (p *ModalPlatform) appHandle(ctx context.Context) (*modal.App, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.app != nil {
		return p.app, nil
	}

	app, err := p.client.Apps.FromName(ctx, p.config.Platform.AppName, &modal.AppFromNameParams{
		Environment:     p.config.Platform.Environment,
		CreateIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up app %q: %w", p.config.Platform.AppName, err)
	}

	p.app = app
	return app, nil
}

// ResolveRegistryImage builds the bare registry image so that a bad reference
// is reported before any sandbox is requested.
func (p *ModalPlatform) ResolveRegistryImage(ctx context.Context, ref string) error {
	app, err := p.appHandle(ctx)
	if err != nil {
		return err
	}

	if _, err := p.client.Images.FromRegistry(ref, nil).Build(ctx, app); err != nil {
		return fmt.Errorf("failed to resolve registry image %q: %w", ref, err)
	}
	return nil
}

// Volume returns the named volume, creating it if missing
func (p *ModalPlatform) Volume(ctx context.Context, name string) (Volume, error) {
	vol, err := p.client.Volumes.FromName(ctx, name, &modal.VolumeFromNameParams{
		Environment:     p.config.Platform.Environment,
		CreateIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get volume %q: %w", name, err)
	}

	p.logger.Debug("volume resolved", zap.String("name", name), zap.String("volume_id", vol.VolumeID))
	return &modalVolume{name: name, volume: vol}, nil
}

// Create builds the image and starts a sandbox, then copies any mounts into it
func (p *ModalPlatform) Create(ctx context.Context, req CreateRequest) (Sandbox, error) {
	app, err := p.appHandle(ctx)
	if err != nil {
		return nil, err
	}

	baseRef := req.Image.Registry
	if baseRef == "" {
		baseRef = p.config.DefaultBaseImage(req.Image.PythonVersion)
	}

	image := p.client.Images.FromRegistry(baseRef, nil).
		DockerfileCommands(req.Image.DockerfileCommands(), nil)

	params, err := buildCreateParams(req)
	if err != nil {
		return nil, err
	}

	p.logger.Info("creating sandbox",
		zap.String("app", p.config.Platform.AppName),
		zap.String("base_image", baseRef),
		zap.Int("build_steps", len(req.Image.Steps())),
		zap.Ints("unencrypted_ports", params.UnencryptedPorts),
		zap.String("gpu", params.GPU),
		zap.Float64("cpu", params.CPU),
		zap.Int("memory_mib", params.MemoryMiB),
		zap.Duration("timeout", params.Timeout),
		zap.Int("volumes", len(params.Volumes)),
		zap.Int("mounts", len(req.Mounts)))

	sb, err := p.client.Sandboxes.Create(ctx, app, image, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	handle := &modalSandbox{sb: sb, tunnelTimeout: p.config.SSH.TunnelTimeout}

	if err := p.applyMounts(ctx, sb, req.Mounts); err != nil {
		if termErr := sb.Terminate(context.WithoutCancel(ctx)); termErr != nil {
			p.logger.Warn("failed to terminate sandbox after mount failure",
				zap.String("sandbox_id", sb.SandboxID), zap.Error(termErr))
		}
		return nil, err
	}

	return handle, nil
}

// Close releases the client connection
func (p *ModalPlatform) Close() error {
	p.client.Close()
	return nil
}

// buildCreateParams maps a CreateRequest onto the SDK parameters.
// Fields left nil in req stay at their zero value, which the SDK treats as unset.
func buildCreateParams(req CreateRequest) (*modal.SandboxCreateParams, error) {
	params := &modal.SandboxCreateParams{
		UnencryptedPorts: req.UnencryptedPorts,
	}

	if req.Timeout != nil {
		params.Timeout = *req.Timeout
	}
	if req.GPU != nil {
		params.GPU = *req.GPU
	}
	if req.CPU != nil {
		params.CPU = *req.CPU
	}
	if req.MemoryMiB != nil {
		params.MemoryMiB = *req.MemoryMiB
	}
	if req.Volumes != nil {
		params.Volumes = make(map[string]*modal.Volume, len(req.Volumes))
		for mountPath, vol := range req.Volumes {
			mv, ok := vol.(*modalVolume)
			if !ok {
				return nil, fmt.Errorf("volume %q at %s was not created by the modal platform", vol.Name(), mountPath)
			}
			params.Volumes[mountPath] = mv.volume
		}
	}

	return params, nil
}

// applyMounts packs each local directory, uploads it and unpacks it at its remote path
func (p *ModalPlatform) applyMounts(ctx context.Context, sb *modal.Sandbox, mounts []Mount) error {
	for i, m := range mounts {
		archive, err := CreateTarFromDir(m.Local)
		if err != nil {
			return fmt.Errorf("failed to pack mount %s: %w", m.Local, err)
		}

		staging := fmt.Sprintf("/tmp/sshbox-mount-%d.tar.gz", i)
		f, err := sb.Open(ctx, staging, "w")
		if err != nil {
			return fmt.Errorf("failed to open %s in sandbox: %w", staging, err)
		}
		if _, err := f.Write(archive); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to upload mount %s: %w", m.Local, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to upload mount %s: %w", m.Local, err)
		}

		script := fmt.Sprintf("mkdir -p %[1]s && tar -xzf %[2]s -C %[1]s && rm -f %[2]s",
			ShellQuote(m.Remote), ShellQuote(staging))
		proc, err := sb.Exec(ctx, []string{"sh", "-c", script}, nil)
		if err != nil {
			return fmt.Errorf("failed to unpack mount %s: %w", m.Local, err)
		}
		exitCode, err := proc.Wait(ctx)
		if err != nil {
			return fmt.Errorf("failed to unpack mount %s: %w", m.Local, err)
		}
		if exitCode != 0 {
			return fmt.Errorf("unpacking mount %s into %s exited with code %d", m.Local, m.Remote, exitCode)
		}

		p.logger.Info("mount copied",
			zap.String("local", m.Local),
			zap.String("remote", m.Remote),
			zap.Int("bytes", len(archive)))
	}
	return nil
}

type modalVolume struct {
	name   string
	volume *modal.Volume
}

func (v *modalVolume) Name() string {
	return v.name
}

var (
	_ Platform = (*ModalPlatform)(nil)
	_ Sandbox  = (*modalSandbox)(nil)
	_ Volume   = (*modalVolume)(nil)
)

// errDetached is returned by every call on a handle after Detach
var errDetached = errors.New("sandbox handle is detached")

// modalSandbox wraps the SDK handle. The SDK keeps no per-sandbox client
// state, so detaching only stops this process from driving the sandbox; the
// shared client is released by ModalPlatform.Close.
type modalSandbox struct {
	sb            *modal.Sandbox
	tunnelTimeout time.Duration
	detached      atomic.Bool
}

func (s *modalSandbox) handle() (*modal.Sandbox, error) {
	if s.detached.Load() {
		return nil, fmt.Errorf("%w: %s", errDetached, s.sb.SandboxID)
	}
	return s.sb, nil
}

func (s *modalSandbox) ID() string {
	return s.sb.SandboxID
}

func (s *modalSandbox) Exec(ctx context.Context, command []string) error {
	sb, err := s.handle()
	if err != nil {
		return err
	}
	_, err = sb.Exec(ctx, command, &modal.SandboxExecParams{
		Stdout: modal.Ignore,
		Stderr: modal.Ignore,
	})
	return err
}

func (s *modalSandbox) Tunnel(ctx context.Context, port int) (Endpoint, error) {
	sb, err := s.handle()
	if err != nil {
		return Endpoint{}, err
	}

	tunnels, err := sb.Tunnels(ctx, s.tunnelTimeout)
	if err != nil {
		return Endpoint{}, err
	}

	tunnel, ok := tunnels[port]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w %d", ErrNoTunnel, port)
	}

	host, publicPort, err := tunnel.TCPSocket()
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w %d: %w", ErrNoTunnel, port, err)
	}
	return Endpoint{Host: host, Port: publicPort}, nil
}

func (s *modalSandbox) Poll(ctx context.Context) (*int, error) {
	sb, err := s.handle()
	if err != nil {
		return nil, err
	}
	return sb.Poll(ctx)
}

func (s *modalSandbox) Terminate(ctx context.Context) error {
	sb, err := s.handle()
	if err != nil {
		return err
	}
	return sb.Terminate(ctx)
}

func (s *modalSandbox) Wait(ctx context.Context) (int, error) {
	sb, err := s.handle()
	if err != nil {
		return 0, err
	}
	return sb.Wait(ctx)
}

// Detach leaves the sandbox running until its own timeout. It is idempotent.
func (s *modalSandbox) Detach() error {
	s.detached.Store(true)
	return nil
}
