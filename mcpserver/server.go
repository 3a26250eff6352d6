package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/sshbox/config"
	"github.com/isdmx/sshbox/launcher"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	launcher  *launcher.Launcher
	mcpServer *server.MCPServer

	mu       sync.Mutex
	sessions map[string]*managedSession
	closed   bool
}

// managedSession is a launched session and the goroutine supervising it
type managedSession struct {
	id        string
	session   *launcher.Session
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	outcome   launcher.Outcome
}

// SessionInfo describes an active session in tool results
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	SandboxID    string    `json:"sandbox_id"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	SSHCommand   string    `json:"ssh_command"`
	GPU          string    `json:"gpu,omitempty"`
	TimeoutHours int       `json:"timeout_hours,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	State        string    `json:"state"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, l *launcher.Launcher) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		launcher: l,
		sessions: make(map[string]*managedSession),
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("mcp.transport", cfg.MCP.Transport),
		zap.Int("mcp.http_port", cfg.MCP.HTTPPort),
		zap.String("platform.backend", cfg.Platform.Backend),
		zap.String("platform.app_name", cfg.Platform.AppName),
		zap.String("ssh.public_key", cfg.SSH.PublicKey),
		zap.Duration("session.poll_interval", cfg.Session.PollInterval),
	)

	s.mcpServer = server.NewMCPServer("sshbox", "SSH-reachable GPU sandboxes")

	s.registerLaunchTool()
	s.registerTerminateTool()
	s.registerListTool()

	return s, nil
}

func (s *MCPServer) registerLaunchTool() {
	tool := mcp.Tool{
		Name:        "launch_ssh_sandbox",
		Description: "Start a remote sandbox running sshd and return the command to connect to it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"cpu": map[string]any{
					"type":        "integer",
					"description": "vCPU cores (optional)",
				},
				"memory": map[string]any{
					"type":        "integer",
					"description": "Memory in GB (optional)",
				},
				"gpu": map[string]any{
					"type":        "string",
					"description": "GPU spec such as H100, H100:3 or A100-80GB (optional)",
				},
				"timeout_hours": map[string]any{
					"type":        "integer",
					"description": "Terminate the sandbox after this many hours (optional)",
				},
				"image": map[string]any{
					"type":        "string",
					"description": "Registry image to start from (optional)",
				},
				"add_python": map[string]any{
					"type":        "string",
					"description": "Python version to install or pin, e.g. 3.11 (optional)",
				},
				"mounts": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Local directories to copy in, as local[:/remote] (optional)",
				},
				"volumes": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Persistent volume names, mounted at /vol/<name> (optional)",
				},
			},
		},
	}

	s.mcpServer.AddTool(tool, s.handleLaunch)
}

func (s *MCPServer) registerTerminateTool() {
	tool := mcp.Tool{
		Name:        "terminate_ssh_sandbox",
		Description: "Terminate a sandbox started by launch_ssh_sandbox",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Session ID returned by launch_ssh_sandbox",
				},
			},
			Required: []string{"session_id"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleTerminate)
}

func (s *MCPServer) registerListTool() {
	tool := mcp.Tool{
		Name:        "list_ssh_sandboxes",
		Description: "List the sandboxes started by this server that are still running",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, s.handleList)
}

func (s *MCPServer) handleLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts, err := launchOptions(request)
	if err != nil {
		return errorResult("invalid arguments: %v", err), nil
	}

	s.logger.Info("sandbox launch requested",
		zap.String("gpu", opts.GPU),
		zap.Int("timeout_hours", opts.Timeout),
		zap.Strings("volumes", opts.Volumes))

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errorResult("server is shutting down"), nil
	}

	session, err := s.launcher.Start(ctx, opts)
	if err != nil {
		s.logger.Error("sandbox launch failed", zap.Error(err))
		return errorResult("Launch failed: %v", err), nil
	}

	ms := s.supervise(session)
	return jsonResult(s.info(ms))
}

func (s *MCPServer) handleTerminate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id parameter is required: %w", err)
	}

	s.mu.Lock()
	ms, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return errorResult("unknown session: %s", id), nil
	}

	s.logger.Info("sandbox termination requested",
		zap.String("session_id", id),
		zap.String("sandbox_id", ms.session.ID()))

	ms.cancel()
	select {
	case <-ms.done:
	case <-ctx.Done():
		return errorResult("termination of %s still in progress: %v", id, ctx.Err()), nil
	}

	return jsonResult(map[string]string{
		"session_id": id,
		"sandbox_id": ms.session.ID(),
		"outcome":    ms.outcome.String(),
	})
}

func (s *MCPServer) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.List())
}

// supervise registers session and watches it until it ends
func (s *MCPServer) supervise(session *launcher.Session) *managedSession {
	ctx, cancel := context.WithCancel(context.Background())
	ms := &managedSession{
		id:        uuid.NewString(),
		session:   session,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[ms.id] = ms
	if s.closed {
		// Close ran while this session was starting
		cancel()
	}
	s.mu.Unlock()

	log := s.logger.With(zap.String("session_id", ms.id), zap.String("sandbox_id", session.ID()))
	log.Info("supervising sandbox")

	go func() {
		defer close(ms.done)
		defer cancel()

		ms.outcome = session.Supervise(ctx)

		s.mu.Lock()
		delete(s.sessions, ms.id)
		s.mu.Unlock()
		log.Info("sandbox session finished", zap.Stringer("outcome", ms.outcome))
	}()

	return ms
}

func (s *MCPServer) info(ms *managedSession) SessionInfo {
	endpoint := ms.session.Endpoint()
	opts := ms.session.Options()
	return SessionInfo{
		SessionID:    ms.id,
		SandboxID:    ms.session.ID(),
		Host:         endpoint.Host,
		Port:         endpoint.Port,
		SSHCommand:   ms.session.SSHCommand(),
		GPU:          opts.GPU,
		TimeoutHours: opts.Timeout,
		StartedAt:    ms.startedAt,
		State:        ms.session.State().String(),
	}
}

// List returns the active sessions, oldest first
func (s *MCPServer) List() []SessionInfo {
	s.mu.Lock()
	active := make([]*managedSession, 0, len(s.sessions))
	for _, ms := range s.sessions {
		active = append(active, ms)
	}
	s.mu.Unlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].startedAt.Before(active[j].startedAt)
	})

	infos := make([]SessionInfo, 0, len(active))
	for _, ms := range active {
		infos = append(infos, s.info(ms))
	}
	return infos
}

// Close tears down every active session and waits for their supervisors to
// finish or ctx to end. No new sessions are accepted afterwards.
func (s *MCPServer) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	active := make([]*managedSession, 0, len(s.sessions))
	for _, ms := range s.sessions {
		active = append(active, ms)
	}
	s.mu.Unlock()

	if len(active) > 0 {
		s.logger.Info("terminating active sandboxes", zap.Int("count", len(active)))
	}

	for _, ms := range active {
		ms.cancel()
	}
	for _, ms := range active {
		select {
		case <-ms.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for sandbox %s to terminate: %w", ms.session.ID(), ctx.Err())
		}
	}
	return nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.MCP.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// Serve starts the server on the configured transport
func (s *MCPServer) Serve() error {
	if s.config.MCP.Transport == "http" {
		return s.ServeHTTP()
	}
	return s.ServeStdio()
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func launchOptions(request mcp.CallToolRequest) (launcher.Options, error) {
	args, _ := request.Params.Arguments.(map[string]any)

	var opts launcher.Options
	var err error
	if opts.CPU, err = intArg(args, "cpu"); err != nil {
		return opts, err
	}
	if opts.Memory, err = intArg(args, "memory"); err != nil {
		return opts, err
	}
	if opts.Timeout, err = intArg(args, "timeout_hours"); err != nil {
		return opts, err
	}
	if opts.Mounts, err = stringsArg(args, "mounts"); err != nil {
		return opts, err
	}
	if opts.Volumes, err = stringsArg(args, "volumes"); err != nil {
		return opts, err
	}
	opts.GPU = request.GetString("gpu", "")
	opts.Image = request.GetString("image", "")
	opts.AddPython = request.GetString("add_python", "")

	return opts, nil
}

// intArg reads a non-negative whole number; JSON numbers arrive as float64
func intArg(args map[string]any, key string) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, nil
	}

	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
	if n < 0 || n != float64(int(n)) {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return int(n), nil
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be an array of strings", key)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: fmt.Sprintf(format, args...),
			},
		},
		IsError: true,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
	}, nil
}
