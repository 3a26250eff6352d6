package launcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/sshbox/sandbox"
)

// State is the lifecycle state of a session's sandbox
type State int

// Session states
const (
	StateUncreated State = iota
	StateRunning
	StateTerminating
	StateTerminated
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateUncreated:
		return "uncreated"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	case StateDetached:
		return "detached"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session owns one sandbox from creation to termination
type Session struct {
	launcher *Launcher
	sandbox  sandbox.Sandbox
	endpoint sandbox.Endpoint
	options  Options

	mu    sync.Mutex
	state State
}

// ID returns the platform's sandbox ID
func (s *Session) ID() string {
	return s.sandbox.ID()
}

// Endpoint returns the public address of the SSH tunnel
func (s *Session) Endpoint() sandbox.Endpoint {
	return s.endpoint
}

// Options returns the options the session was launched with
func (s *Session) Options() Options {
	return s.options
}

// SSHCommand returns the command line that connects to the sandbox
func (s *Session) SSHCommand() string {
	return fmt.Sprintf("ssh -p %d root@%s", s.endpoint.Port, s.endpoint.Host)
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Detach releases the local handle and leaves the sandbox running until its
// remote timeout. Teardown is a no-op afterwards.
func (s *Session) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return fmt.Errorf("cannot detach session in state %s", s.state)
	}
	if err := s.sandbox.Detach(); err != nil {
		return fmt.Errorf("failed to detach sandbox %s: %w", s.sandbox.ID(), err)
	}
	s.state = StateDetached
	return nil
}

// Teardown terminates the sandbox if it is still running and waits for the
// exit to be confirmed. It reports whether this call terminated the sandbox
// and saw the exit confirmed; failures are logged, never returned.
// Calling it again, or after the sandbox exited on its own, does nothing.
func (s *Session) Teardown(ctx context.Context) bool {
	return s.teardown(ctx, "")
}

// teardown prints announce once the sandbox is known to still be running.
// Moving out of StateRunning under the lock is the one-shot guard; the remote
// calls run unlocked so State stays responsive.
func (s *Session) teardown(ctx context.Context, announce string) bool {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	s.state = StateTerminating
	s.mu.Unlock()

	defer s.setState(StateTerminated)

	l := s.launcher
	log := l.logger.With(zap.String("sandbox_id", s.sandbox.ID()))
	// Cleanup must still run when the caller's context was cancelled by an interrupt.
	ctx = context.WithoutCancel(ctx)

	exitCode, err := s.sandbox.Poll(ctx)
	if err != nil {
		log.Warn("liveness check failed, assuming sandbox terminated", zap.Error(err))
		return false
	}
	if exitCode != nil {
		log.Info("sandbox already exited", zap.Int("exit_code", *exitCode))
		return false
	}

	if announce != "" {
		l.printf("%s\n", announce)
	}

	if err := s.sandbox.Terminate(ctx); err != nil {
		log.Warn("terminate request failed", zap.Error(err))
		l.printf("Warning: Error during sandbox cleanup: %v\n", err)
		return false
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.config.Session.TerminateWait)
	defer cancel()

	started := time.Now()
	exit, err := s.sandbox.Wait(waitCtx)
	if err != nil {
		log.Warn("waiting for sandbox termination failed", zap.Error(err))
		l.printf("Warning: Error during sandbox cleanup: %v\n", err)
		return false
	}

	log.Info("sandbox terminated",
		zap.Int("exit_code", exit),
		zap.Duration("wait", time.Since(started)))
	return true
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
