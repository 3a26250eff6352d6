package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/sshbox/config"
	"github.com/isdmx/sshbox/logger"
	"github.com/isdmx/sshbox/sandbox"
)

// stopTimeout bounds how long shutdown may spend terminating sandboxes
const stopTimeout = 2 * time.Minute

// newViper returns the viper instance for the --config flag value
func newViper(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	return v
}

// appOptions wires the dependencies shared by every command that talks to the platform
func appOptions(v *viper.Viper) fx.Option {
	return fx.Options(
		fx.Supply(v),

		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Sandbox platform based on config
			sandbox.NewPlatform,
		),

		// Credentials must be in the environment before the platform client is built
		fx.Invoke(loadDotenv, registerPlatform),

		fx.StopTimeout(stopTimeout),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

// loadDotenv loads platform.dotenv when it exists. Variables already set in
// the environment win.
func loadDotenv(cfg *config.Config, log *zap.Logger) error {
	path := cfg.Platform.Dotenv
	if path == "" {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("no dotenv file", zap.String("path", path))
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	log.Debug("loaded dotenv file", zap.String("path", path))
	return nil
}

// registerPlatform closes the platform client once everything using it has stopped
func registerPlatform(lc fx.Lifecycle, platform sandbox.Platform) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return platform.Close()
		},
	})
}

// runApp starts app, blocks until it shuts down and stops it. The returned
// code is the one passed to fx.Shutdowner, or 0 after a signal.
func runApp(app *fx.App) (int, error) {
	if err := app.Err(); err != nil {
		return 1, err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return 1, err
	}

	sig := <-app.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return 1, err
	}

	return sig.ExitCode, nil
}
