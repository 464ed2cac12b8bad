// Package toolexecutor registers and executes schema-described tools for agents.
//
// Invariants:
// - Tool names are unique.
// - Arguments are validated against the tool's input schema before the handler runs.
// - A tool only runs when its required permission is granted to the caller.
// - Handler output is forwarded unchanged inside the ToolResult wrapper.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name:        "echo",
//		Description: "Echo input",
//		Permission:  "Note",
//		InputSchema: toolexecutor.Object([]string{"text"}, map[string]*toolexecutor.Schema{
//			"text": toolexecutor.String("text to echo"),
//		}),
//		Handler: func(ctx context.Context, args toolexecutor.Args) (interface{}, error) { return args.String("text"), nil },
//	})
package toolexecutor
