package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/erptools/internal/observability"
	"github.com/harun/erptools/internal/tracing"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTimeout bounds a single tool execution when no timeout is configured
const DefaultTimeout = 30 * time.Second

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, args Args) (interface{}, error)

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    ToolCategory `json:"category"`
	Permission  string       `json:"requires_permission,omitempty"` // document type the caller must be authorized for
	InputSchema *Schema      `json:"inputSchema"`
	Handler     ToolHandler  `json:"-"`
}

// ExecutionContext provides caller information for a tool execution
type ExecutionContext struct {
	CallerID string
	Grants   []string // document permissions granted to the caller; nil disables the check
	Policy   *ToolPolicy
	Timeout  time.Duration
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Success  bool                   `json:"success"`
	Output   interface{}            `json:"output,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Payload flattens the result into the wire shape returned to agents:
// {"success": true, ...output fields} or {"success": false, "error": "..."}.
func (r ToolResult) Payload() map[string]interface{} {
	payload := map[string]interface{}{"success": r.Success}
	switch out := r.Output.(type) {
	case nil:
	case map[string]interface{}:
		for k, v := range out {
			payload[k] = v
		}
	default:
		payload["result"] = out
	}
	if !r.Success {
		payload["error"] = r.Error
	}
	return payload
}

// ToolExecutor manages and executes tools
type ToolExecutor struct {
	tools    map[string]*ToolDefinition
	schemas  map[string]*gojsonschema.Schema
	defaults ExecutionContext
	mu       sync.RWMutex
}

// New creates a new ToolExecutor
func New() *ToolExecutor {
	te := &ToolExecutor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}

	log.Debug().Msg("Tool executor initialized")

	return te
}

// SetDefaults sets the execution context used when a call does not carry its own.
// Safe to call while tools are executing.
func (te *ToolExecutor) SetDefaults(execCtx ExecutionContext) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.defaults = execCtx

	log.Info().
		Strs("grants", execCtx.Grants).
		Dur("timeout", execCtx.Timeout).
		Msg("Tool executor defaults updated")
}

// Defaults returns the current default execution context
func (te *ToolExecutor) Defaults() ExecutionContext {
	te.mu.RLock()
	defer te.mu.RUnlock()
	return te.defaults
}

// RegisterTool registers a new tool
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	if def.Category == "" {
		def.Category = CategoryGeneral
	}
	if def.InputSchema == nil {
		def.InputSchema = Object(nil, nil)
	}

	schema, err := compileSchema(def.InputSchema)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema

	log.Debug().
		Str("tool", def.Name).
		Str("category", string(def.Category)).
		Str("permission", def.Permission).
		Msg("Tool registered")

	return nil
}

// UnregisterTool removes a tool
func (te *ToolExecutor) UnregisterTool(name string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	delete(te.tools, name)
	delete(te.schemas, name)

	log.Info().Str("tool", name).Msg("Tool unregistered")
}

// GetTool returns a tool definition by name
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return te.tools[name]
}

// ListTools returns all registered tool names in sorted order
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	names := make([]string, 0, len(te.tools))
	for name := range te.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Definitions returns copies of all tool definitions sorted by name
func (te *ToolExecutor) Definitions() []ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(te.tools))
	for _, def := range te.tools {
		defs = append(defs, *def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}

// GetToolCount returns the number of registered tools
func (te *ToolExecutor) GetToolCount() int {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return len(te.tools)
}

// Execute executes a tool with the given arguments
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, args Args, execCtx *ExecutionContext) ToolResult {
	startTime := time.Now()
	ec := te.resolveContext(execCtx)

	ctx, span := tracing.StartSpan(ctx, "erptools/toolexecutor", "tool.execute",
		attribute.String("tool.name", toolName),
		attribute.String("tool.caller", ec.CallerID),
	)
	defer span.End()

	result := te.execute(ctx, toolName, args, ec)
	duration := time.Since(startTime)

	if result.Metadata == nil {
		result.Metadata = map[string]interface{}{}
	}
	result.Metadata["duration"] = duration.Milliseconds()

	if result.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, result.Error)
	}

	observability.RecordToolExecution(toolName, duration, result.Success)
	observability.GetAuditLogger().Record(ctx, observability.AuditEvent{
		Type:   "tool",
		Actor:  ec.CallerID,
		Action: toolName,
		Status: statusLabel(result.Success),
		Metadata: map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		},
	})

	return result
}

func (te *ToolExecutor) execute(ctx context.Context, toolName string, args Args, ec ExecutionContext) ToolResult {
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("tool", toolName).Logger()

	if !ec.Policy.IsToolAllowed(toolName) {
		logger.Warn().Str("caller", ec.CallerID).Msg("Tool execution blocked by policy")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool '%s' is not allowed by policy", toolName),
			Metadata: map[string]interface{}{
				"policy_violation": true,
				"caller":           ec.CallerID,
			},
		}
	}

	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	te.mu.RUnlock()

	if tool == nil {
		logger.Error().Msg("Tool not found")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool not found: %s", toolName),
		}
	}

	if !HasPermission(ec.Grants, tool.Permission) {
		logger.Warn().
			Str("caller", ec.CallerID).
			Str("permission", tool.Permission).
			Msg("Tool execution blocked by missing permission")
		return ToolResult{
			Success: false,
			Error:   permissionDeniedError(toolName, tool.Permission).Error(),
			Metadata: map[string]interface{}{
				"permission": tool.Permission,
			},
		}
	}

	if err := validateArgs(schema, args); err != nil {
		logger.Error().Err(err).Msg("Parameter validation failed")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("parameter validation failed: %v", err),
		}
	}

	timeout := ec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug().Msg("Executing tool")

	output, err := tool.Handler(timeoutCtx, applyDefaults(tool.InputSchema, args))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			logger.Error().Dur("timeout", timeout).Msg("Tool execution timeout")
			return ToolResult{
				Success: false,
				Error:   fmt.Sprintf("tool execution timeout after %v", timeout),
			}
		}

		logger.Error().Err(err).Msg("Tool execution failed")
		return ToolResult{
			Success: false,
			Error:   err.Error(),
		}
	}

	logger.Debug().Msg("Tool execution completed")

	return ToolResult{
		Success: true,
		Output:  output,
	}
}

// resolveContext overlays a per-call execution context on the executor defaults
func (te *ToolExecutor) resolveContext(execCtx *ExecutionContext) ExecutionContext {
	ec := te.Defaults()
	if execCtx == nil {
		return ec
	}
	if execCtx.CallerID != "" {
		ec.CallerID = execCtx.CallerID
	}
	if execCtx.Grants != nil {
		ec.Grants = execCtx.Grants
	}
	if execCtx.Policy != nil {
		ec.Policy = execCtx.Policy
	}
	if execCtx.Timeout > 0 {
		ec.Timeout = execCtx.Timeout
	}
	return ec
}

// validateToolDefinition validates a tool definition
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if def.Category != "" && !IsValidCategory(string(def.Category)) {
		return fmt.Errorf("invalid category: %s", def.Category)
	}
	return nil
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
