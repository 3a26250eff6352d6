package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/sshbox/launcher"
)

// launchRun drives one interactive session inside the fx lifecycle. Stopping
// the app (Ctrl-C or SIGTERM) cancels the session, which then tears the
// sandbox down before OnStop returns.
type launchRun struct {
	opts launcher.Options
	out  io.Writer

	launcher *launcher.Launcher
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (r *launchRun) register(lc fx.Lifecycle, shutdowner fx.Shutdowner, l *launcher.Launcher, log *zap.Logger) {
	r.launcher = l
	r.logger = log

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			r.cancel = cancel
			r.done = make(chan struct{})

			go func() {
				defer close(r.done)

				code := 0
				if r.err = r.execute(ctx); r.err != nil {
					code = 1
				}
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					r.logger.Warn("failed to request shutdown", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			r.cancel()
			select {
			case <-r.done:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("sandbox cleanup did not finish: %w", ctx.Err())
			}
		},
	})
}

// execute starts the session and then detaches from it or supervises it
func (r *launchRun) execute(ctx context.Context) error {
	session, err := r.launcher.Start(ctx, r.opts)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(r.out, "\nSession interrupted by user.")
			return nil
		}
		r.logger.Error("failed to start ssh sandbox", zap.Error(err))
		return err
	}

	if r.opts.Detach {
		if err := session.Detach(); err != nil {
			return err
		}
		if r.opts.Timeout > 0 {
			fmt.Fprintf(r.out, "Detached. Sandbox %s keeps running for up to %d hour(s).\n", session.ID(), r.opts.Timeout)
		} else {
			fmt.Fprintf(r.out, "Detached. Sandbox %s keeps running until the platform's default timeout.\n", session.ID())
		}
		return nil
	}

	session.Supervise(ctx)
	return nil
}
