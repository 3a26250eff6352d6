// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the launcher as MCP tools using the
// mark3labs/mcp-go library: launch_ssh_sandbox starts a supervised SSH
// sandbox, terminate_ssh_sandbox tears one down and list_ssh_sandboxes reports
// the sandboxes that are still running. Every launched session is supervised
// in its own goroutine, so the session timeout applies exactly as it does on
// the command line.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, launcher)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Close(ctx)
//	err = server.Serve() // stdio or HTTP per mcp.transport
package mcpserver
