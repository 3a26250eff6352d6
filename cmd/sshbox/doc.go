// Package main is the entry point for sshbox.
//
// sshbox starts a remote GPU sandbox running sshd, prints the ssh command that
// reaches it, and keeps it alive until it exits, the session timeout elapses
// or the user interrupts. "sshbox mcp" exposes the same launcher as Model
// Context Protocol tools and "sshbox config" prints the effective
// configuration.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging, viper for configuration and
// cobra for the command line.
package main
