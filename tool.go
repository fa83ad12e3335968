package deskmirror

import (
	"context"
	"encoding/json"
)

// Tool defines an agent capability: one or more named functions the
// language model may invoke. Concrete tools (analyze_messages, get_status,
// get_thread, search, find_context, manage_preferences, manage_session,
// manage_reminders) live in tools_*.go.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution. Content is a JSON-shaped
// string (the tool's structured return, already marshaled) or a plain
// message. Error, when set, marks the result as is_error for the model —
// see spec.md §7's ToolExecutionError policy.
type ToolResult struct {
	Content string
	Error   string
}

// ToolRegistry holds all registered tools and dispatches execution by name.
type ToolRegistry struct {
	tools []Tool
	byName map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{byName: make(map[string]Tool)}
}

// Add registers a tool, indexing each of its definitions by name.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
	for _, d := range t.Definitions() {
		r.byName[d.Name] = t
	}
}

// AllDefinitions returns tool definitions from all registered tools, in
// registration order — this is the tool catalog handed to the Provider.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute dispatches a tool call by name.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.byName[name]
	if !ok {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	return t.Execute(ctx, name, args)
}
