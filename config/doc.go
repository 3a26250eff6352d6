// Package config provides application configuration management.
//
// The config package loads the launcher's settings with viper from an
// optional sshbox.yaml file, SSHBOX_* environment variables and built-in
// defaults. It covers the sandbox platform, the SSH key and tunnel, the
// default base image, supervisory loop timings, logging and the MCP server.
//
// Usage:
//
//	cfg, err := config.New(viper.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Poll interval: %s\n", cfg.Session.PollInterval)
package config
