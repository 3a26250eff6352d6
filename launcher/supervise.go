package launcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Outcome is why the supervisory loop stopped
type Outcome int

// Supervisory loop outcomes
const (
	OutcomeExited Outcome = iota
	OutcomeConnectionLost
	OutcomeTimeout
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExited:
		return "exited"
	case OutcomeConnectionLost:
		return "connection lost"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Supervise blocks until the sandbox exits, the session timeout elapses or
// ctx is cancelled. Every path ends with the sandbox terminated.
func (s *Session) Supervise(ctx context.Context) Outcome {
	l := s.launcher
	timeout := s.options.TimeoutDuration()

	var bar Progress
	if timeout > 0 {
		bar = l.newProgress(l.out, timeout)
	}

	outcome := s.watch(ctx, timeout, bar)

	if bar != nil {
		bar.Close()
	}

	s.teardown(ctx, "Ensuring sandbox cleanup...")

	l.logger.Info("session ended",
		zap.String("sandbox_id", s.ID()),
		zap.Stringer("outcome", outcome))
	return outcome
}

func (s *Session) watch(ctx context.Context, timeout time.Duration, bar Progress) Outcome {
	l := s.launcher
	start := l.clock.Now()
	lastProgress := start

	for {
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}

		now := l.clock.Now()
		elapsed := now.Sub(start)

		exitCode, err := s.sandbox.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupted(ctx)
			}
			l.logger.Warn("sandbox poll failed, assuming terminated",
				zap.String("sandbox_id", s.ID()), zap.Error(err))
			l.printf("\nSandbox connection lost.\n")
			s.markTerminated()
			return OutcomeConnectionLost
		}
		if exitCode != nil {
			l.printf("\nSandbox has terminated.\n")
			s.markTerminated()
			return OutcomeExited
		}

		if timeout > 0 {
			if elapsed >= timeout {
				l.printf("\nTimeout reached (%d hours). Terminating session...\n", s.options.Timeout)
				if s.Teardown(ctx) {
					l.printf("Sandbox terminated due to timeout.\n")
				}
				return OutcomeTimeout
			}

			if now.Sub(lastProgress) >= l.config.Session.ProgressInterval {
				bar.Update(elapsed)
				lastProgress = now
			}
		}

		select {
		case <-ctx.Done():
			return s.interrupted(ctx)
		case <-l.clock.After(l.config.Session.PollInterval):
		}
	}
}

func (s *Session) interrupted(ctx context.Context) Outcome {
	s.launcher.printf("\nSession interrupted by user.\n")
	if s.teardown(ctx, "Terminating sandbox...") {
		s.launcher.printf("Sandbox terminated successfully.\n")
	}
	return OutcomeInterrupted
}

// markTerminated records an exit observed by the loop itself
func (s *Session) markTerminated() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.state = StateTerminated
	}
}
