// Package sandboxtest provides an in-memory sandbox.Platform for tests.
//
// Platform records every request it receives. Sandbox records every call,
// in order, in Events, so tests can assert on exact call sequences such as
// "poll, terminate, wait".
package sandboxtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/isdmx/sshbox/sandbox"
)

// Platform is a fake sandbox.Platform
type Platform struct {
	mu sync.Mutex

	// ResolveErr is returned by ResolveRegistryImage for the matching reference.
	ResolveErr map[string]error
	// VolumeErr is returned by Volume when set.
	VolumeErr error
	// CreateErr is returned by Create when set.
	CreateErr error
	// NewSandbox builds the sandbox returned by Create; defaults to NewSandbox.
	NewSandbox func(id string) *Sandbox

	Resolved  []string
	Volumes   []string
	Requests  []sandbox.CreateRequest
	Sandboxes []*Sandbox
	Closed    bool
}

var _ sandbox.Platform = (*Platform)(nil)

func (p *Platform) ResolveRegistryImage(_ context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Resolved = append(p.Resolved, ref)
	return p.ResolveErr[ref]
}

func (p *Platform) Volume(_ context.Context, name string) (sandbox.Volume, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Volumes = append(p.Volumes, name)
	if p.VolumeErr != nil {
		return nil, p.VolumeErr
	}
	return &Volume{VolumeName: name}, nil
}

func (p *Platform) Create(_ context.Context, req sandbox.CreateRequest) (sandbox.Sandbox, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}

	id := fmt.Sprintf("sb-%d", len(p.Sandboxes)+1)
	newSandbox := p.NewSandbox
	if newSandbox == nil {
		newSandbox = NewSandbox
	}
	sb := newSandbox(id)
	p.Sandboxes = append(p.Sandboxes, sb)
	return sb, nil
}

func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	return nil
}

// LastRequest returns the most recent create request
func (p *Platform) LastRequest() sandbox.CreateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.Requests) == 0 {
		return sandbox.CreateRequest{}
	}
	return p.Requests[len(p.Requests)-1]
}

// Volume is a fake volume handle
type Volume struct {
	VolumeName string
}

func (v *Volume) Name() string {
	return v.VolumeName
}

// Sandbox is a fake sandbox.Sandbox.
// By default it runs until Terminate is called, after which Poll reports exit code 0.
type Sandbox struct {
	mu sync.Mutex

	SandboxID string
	Endpoint  sandbox.Endpoint

	ExecErr      error
	TunnelErr    error
	TerminateErr error
	WaitErr      error
	// PollFunc overrides Poll; n is the 1-based poll count.
	PollFunc func(n int) (*int, error)
	// OnWait runs at the start of every Wait call. It must not call back into the Sandbox.
	OnWait func()
	// Now stamps TerminatedAt when set.
	Now func() time.Time

	Execs        [][]string
	Events       []string
	Polls        int
	Terminates   int
	Waits        int
	Detached     bool
	TerminatedAt time.Time

	terminated bool
}

var _ sandbox.Sandbox = (*Sandbox)(nil)

// NewSandbox returns a running fake sandbox reachable at example.modal.host:40022
func NewSandbox(id string) *Sandbox {
	return &Sandbox{
		SandboxID: id,
		Endpoint:  sandbox.Endpoint{Host: "example.modal.host", Port: 40022},
	}
}

// ExitCode is a helper for PollFunc results
func ExitCode(code int) *int {
	return &code
}

func (s *Sandbox) ID() string {
	return s.SandboxID
}

func (s *Sandbox) Exec(_ context.Context, command []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Events = append(s.Events, "exec")
	s.Execs = append(s.Execs, command)
	return s.ExecErr
}

func (s *Sandbox) Tunnel(_ context.Context, port int) (sandbox.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Events = append(s.Events, "tunnel")
	if s.TunnelErr != nil {
		return sandbox.Endpoint{}, s.TunnelErr
	}
	if port != 22 {
		return sandbox.Endpoint{}, fmt.Errorf("%w %d", sandbox.ErrNoTunnel, port)
	}
	return s.Endpoint, nil
}

func (s *Sandbox) Poll(_ context.Context) (*int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Polls++
	s.Events = append(s.Events, "poll")
	if s.PollFunc != nil {
		return s.PollFunc(s.Polls)
	}
	if s.terminated {
		return ExitCode(0), nil
	}
	return nil, nil
}

func (s *Sandbox) Terminate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Terminates++
	s.Events = append(s.Events, "terminate")
	if s.TerminateErr != nil {
		return s.TerminateErr
	}
	s.terminated = true
	if s.Now != nil {
		s.TerminatedAt = s.Now()
	}
	return nil
}

func (s *Sandbox) Wait(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Waits++
	s.Events = append(s.Events, "wait")
	if s.OnWait != nil {
		s.OnWait()
	}
	if s.WaitErr != nil {
		return 0, s.WaitErr
	}
	if !s.terminated {
		return 0, errors.New("fake sandbox still running")
	}
	return 0, ctx.Err()
}

func (s *Sandbox) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Events = append(s.Events, "detach")
	s.Detached = true
	return nil
}

// Snapshot returns a copy of the recorded events
func (s *Sandbox) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.Events))
	copy(out, s.Events)
	return out
}

// Count returns how many times event was recorded
func (s *Sandbox) Count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.Events {
		if e == event {
			n++
		}
	}
	return n
}
