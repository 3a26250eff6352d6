package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/isdmx/sshbox/config"
	"github.com/isdmx/sshbox/launcher"
	"github.com/isdmx/sshbox/mcpserver"
	"github.com/isdmx/sshbox/sandbox"
)

func newMCPCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the launcher as Model Context Protocol tools",
		Long: `Serve launch_ssh_sandbox, terminate_ssh_sandbox and list_ssh_sandboxes over
the transport set by mcp.transport (stdio or http). Sandboxes still running
when the server stops are terminated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(
				appOptions(newViper(*configFile)),
				fx.Provide(newMCPLauncher, mcpserver.New),
				fx.Invoke(registerMCPServer),
			)

			code, err := runApp(app)
			if err != nil {
				return err
			}
			if code != 0 {
				return exitCodeError(code)
			}
			return nil
		},
	}
}

// newMCPLauncher routes launcher status output into the log so it never
// reaches stdout, which carries the stdio transport.
func newMCPLauncher(log *zap.Logger, cfg *config.Config, platform sandbox.Platform) *launcher.Launcher {
	out := &zapio.Writer{Log: log.Named("launcher"), Level: zap.InfoLevel}
	return launcher.New(log, cfg, platform, launcher.WithOutput(out))
}

func registerMCPServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, server *mcpserver.MCPServer, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := 0
				if err := server.Serve(); err != nil {
					log.Error("MCP server stopped", zap.Error(err))
					code = 1
				}
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					log.Warn("failed to request shutdown", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Close(ctx)
		},
	})
}
