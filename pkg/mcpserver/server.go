// Package mcpserver exposes the registered tools over the Model Context
// Protocol. Every tools/call is routed through the ToolExecutor, so MCP
// callers get the same validation, policy and audit as the JSON-RPC gateway.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/harun/erptools/internal/tracing"
	"github.com/harun/erptools/pkg/toolexecutor"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

const (
	TransportStdio = "mcp-stdio"
	TransportHTTP  = "mcp-http"
)

// Options configures the MCP server identity
type Options struct {
	Name    string
	Version string
}

// Server wraps an MCP server whose tools are backed by a ToolExecutor
type Server struct {
	executor *toolexecutor.ToolExecutor
	mcp      *server.MCPServer
}

// New creates an MCP server exposing every tool registered with executor
func New(executor *toolexecutor.ToolExecutor, opts Options) (*Server, error) {
	if executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if opts.Name == "" {
		opts.Name = "erptools"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		executor: executor,
		mcp: server.NewMCPServer(opts.Name, opts.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	for _, def := range executor.Definitions() {
		tool, err := toMCPTool(def)
		if err != nil {
			return nil, fmt.Errorf("converting tool %s: %w", def.Name, err)
		}
		s.mcp.AddTool(tool, s.handler(def.Name))
	}

	log.Info().Int("tools", executor.GetToolCount()).Msg("MCP server initialized")
	return s, nil
}

// MCP returns the underlying protocol server
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves newline-delimited JSON-RPC on in/out until ctx is done
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	log.Info().Msg("Serving MCP over stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

// HTTPHandler returns the streamable HTTP transport handler
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *Server) handler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		transport, callerID := TransportStdio, TransportStdio
		if session := server.ClientSessionFromContext(ctx); session != nil && session.SessionID() != "" {
			callerID = "mcp:" + session.SessionID()
			if !strings.HasPrefix(session.SessionID(), "stdio") {
				transport = TransportHTTP
			}
		}
		ctx = tracing.NewRequestContext(ctx, transport, callerID)

		result := s.executor.Execute(ctx, toolName, toolexecutor.Args(request.GetArguments()),
			&toolexecutor.ExecutionContext{CallerID: callerID})

		return toCallResult(result)
	}
}

// toMCPTool converts a tool definition, keeping its JSON schema verbatim
func toMCPTool(def toolexecutor.ToolDefinition) (mcp.Tool, error) {
	schema := def.InputSchema
	if schema == nil {
		schema = toolexecutor.Object(nil, nil)
	}
	raw, err := schema.JSON()
	if err != nil {
		return mcp.Tool{}, err
	}

	tool := mcp.NewToolWithRawSchema(def.Name, def.Description, raw)
	readOnly := isReadOnly(def.Name)
	tool.Annotations = mcp.ToolAnnotation{
		Title:           def.Name,
		ReadOnlyHint:    &readOnly,
		DestructiveHint: boolPtr(false),
		OpenWorldHint:   boolPtr(true),
	}
	return tool, nil
}

// toCallResult encodes the result payload as a single JSON text block
func toCallResult(result toolexecutor.ToolResult) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(result.Payload())
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	if !result.Success {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func isReadOnly(name string) bool {
	return strings.HasPrefix(name, "get_") || strings.HasPrefix(name, "list_")
}

func boolPtr(v bool) *bool {
	return &v
}
