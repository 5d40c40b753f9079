package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/troupe"
	"github.com/aretw0/troupe/internal/logging"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/registry"
	"github.com/aretw0/troupe/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SendResponse is the structured result of the send_events tool.
type SendResponse struct {
	Created  bool                      `json:"created" jsonschema_description:"True when the call created the session"`
	Snapshot *domain.PersistedSnapshot `json:"snapshot" jsonschema_description:"Persisted snapshot after the events were processed"`
}

// Server exposes a registry of machines and their sessions as an MCP Server.
type Server struct {
	registry  *registry.Registry
	sessions  *session.Manager
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger. Stdio servers must log to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(reg *registry.Registry, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		registry:  reg,
		sessions:  sessions,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("troupe-mcp", strings.TrimSpace(troupe.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
// It returns when ctx is cancelled, after a graceful shutdown.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: list_machines
	s.mcpServer.AddTool(mcp.NewTool("list_machines",
		mcp.WithDescription("List the names of the hosted state machines."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, _ := json.Marshal(s.registry.List())
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: describe_machine
	s.mcpServer.AddTool(mcp.NewTool("describe_machine",
		mcp.WithDescription("Describe a machine: its states and the events it accepts."),
		mcp.WithString("machine", mcp.Required(), mcp.Description("Machine name")),
	), s.handleDescribe)

	// TOOL: send_events
	sendTool := mcp.NewTool("send_events",
		mcp.WithDescription("Send events to a session of a machine. The session is created when it does not exist."),
		mcp.WithString("machine", mcp.Required(), mcp.Description("Machine name")),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("events", mcp.Description(`JSON array of events, e.g. [{"type":"OPEN"}]`)),
		mcp.WithString("input", mcp.Description("JSON input used when the session is created (optional)")),
		mcp.WithOutputSchema[SendResponse](),
	)
	s.mcpServer.AddTool(sendTool, mcp.NewStructuredToolHandler(s.handleSendEvents))

	// TOOL: get_session
	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Read the persisted snapshot of a session."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session id")),
	), s.handleGetSession)
}

func (s *Server) handleDescribe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := request.GetArguments()["machine"].(string)
	m, err := s.registry.Machine(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	states := make([]string, 0)
	for _, n := range m.StateNodes() {
		states = append(states, n.ID)
	}
	jsonBytes, _ := json.Marshal(map[string]any{
		"id":      m.ID(),
		"version": m.Version(),
		"states":  states,
		"events":  m.Events(),
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleSendEvents(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SendResponse, error) {
	name, _ := args["machine"].(string)
	sessionID, _ := args["session"].(string)

	logic, err := s.registry.Get(name)
	if err != nil {
		return SendResponse{}, err
	}

	var events []domain.Event
	if evStr, ok := args["events"].(string); ok && evStr != "" {
		if err := json.Unmarshal([]byte(evStr), &events); err != nil {
			return SendResponse{}, fmt.Errorf("invalid events: %w", err)
		}
	}
	var input any
	if inStr, ok := args["input"].(string); ok && inStr != "" {
		if err := json.Unmarshal([]byte(inStr), &input); err != nil {
			return SendResponse{}, fmt.Errorf("invalid input: %w", err)
		}
	}

	res, err := s.sessions.Dispatch(ctx, sessionID, logic, input, events...)
	if err != nil {
		s.logger.Warn("MCP send_events failed", "session_id", sessionID, "err", err)
		return SendResponse{}, fmt.Errorf("send failed: %w", err)
	}
	return SendResponse{Created: res.Created(), Snapshot: res.Snapshot}, nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session"].(string)
	snap, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	jsonBytes, _ := json.Marshal(snap)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) registerResources() {
	// EXPOSE: troupe://machines
	s.mcpServer.AddResource(mcp.NewResource("troupe://machines", "Hosted Machines",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, _ := json.Marshal(s.registry.List())
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "troupe://machines",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
