package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/erptools/internal/health"
	"github.com/harun/erptools/internal/tracing"
	"github.com/harun/erptools/pkg/toolexecutor"
)

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.router.RegisterMethod("tools.list", s.handleToolsList)
	_ = s.router.RegisterMethod("tools.call", s.handleToolsCall)
	_ = s.router.RegisterMethod("health", s.handleHealth)
	_ = s.router.RegisterMethod("clients.list", s.handleClientsList)
}

// toolInfo is the listing shape of a tool
type toolInfo struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Category    toolexecutor.ToolCategory `json:"category"`
	Permission  string                    `json:"requires_permission,omitempty"`
	InputSchema *toolexecutor.Schema      `json:"inputSchema"`
}

// handleToolsList handles tools.list; an optional "category" param filters the listing
func (s *Server) handleToolsList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	defs := s.executor.Definitions()

	if raw, ok := params["category"]; ok {
		category, ok := raw.(string)
		if !ok || !toolexecutor.IsValidCategory(category) {
			return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("invalid category: %v", raw)}
		}
		defs = toolexecutor.FilterByCategory(defs, toolexecutor.ToolCategory(category))
	}

	tools := make([]toolInfo, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, toolInfo{
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
			Permission:  def.Permission,
			InputSchema: def.InputSchema,
		})
	}

	return map[string]interface{}{
		"tools": tools,
		"count": len(tools),
	}, nil
}

// handleToolsCall handles tools.call. Tool failures are reported in the
// result payload and are never replayed; only malformed calls produce an RPC error.
func (s *Server) handleToolsCall(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, ok := params["name"].(string)
	if !ok || name == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "name parameter is required and must be a string"}
	}

	args := toolexecutor.Args{}
	if raw, exists := params["arguments"]; exists && raw != nil {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, &RPCError{Code: InvalidParams, Message: "arguments parameter must be an object"}
		}
		args = toolexecutor.Args(m)
	}

	callerID := clientIDFromContext(ctx)
	result := s.executor.Execute(ctx, name, args, &toolexecutor.ExecutionContext{CallerID: callerID})

	s.broadcaster.BroadcastTyped(EventMessage{
		Event:   "tool.executed",
		Stream:  StreamTypeTool,
		Phase:   statusPhase(result.Success),
		TraceID: tracing.GetTraceID(ctx),
		Data: map[string]interface{}{
			"tool":     name,
			"caller":   callerID,
			"success":  result.Success,
			"duration": result.Metadata["duration"],
		},
	})

	if !result.Success {
		return noReplay(result.Payload()), nil
	}
	return result.Payload(), nil
}

// handleHealth handles health
func (s *Server) handleHealth(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return s.healthReport(), nil
}

// handleClientsList handles clients.list
func (s *Server) handleClientsList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	clients := s.clients.Snapshot()
	return map[string]interface{}{
		"clients": clients,
		"count":   len(clients),
	}, nil
}

func (s *Server) healthReport() map[string]interface{} {
	report := map[string]interface{}{
		"status":    "ok",
		"tools":     s.executor.GetToolCount(),
		"clients":   s.clients.Count(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.health != nil {
		platform := s.health.Status()
		report["platform"] = platform
		if !platform.Up {
			report["status"] = "degraded"
		}
	}
	return report
}

func statusPhase(success bool) string {
	if success {
		return "end"
	}
	return "error"
}

// StatusReporter exposes the last platform probe
type StatusReporter interface {
	Status() health.Status
}
