package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ToolDefinition describes a tool agents may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolExecutor runs a tool call with a free-form text input.
type ToolExecutor func(ctx context.Context, input string) (any, error)

// ToolResult is the uniform envelope every tool call produces. Exactly one of
// Result and Error is meaningful, depending on Status.
type ToolResult struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool { return r.Status == StatusOK }

// ToolRegistry manages available tools and their execution.
type ToolRegistry struct {
	mu        sync.RWMutex
	tools     map[string]ToolDefinition
	executors map[string]ToolExecutor
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:     make(map[string]ToolDefinition),
		executors: make(map[string]ToolExecutor),
	}
}

// Register adds a tool to the registry.
func (tr *ToolRegistry) Register(tool ToolDefinition, executor ToolExecutor) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, exists := tr.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}

	tr.tools[tool.Name] = tool
	tr.executors[tool.Name] = executor
	return nil
}

// Unregister removes a tool from the registry.
func (tr *ToolRegistry) Unregister(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	delete(tr.tools, name)
	delete(tr.executors, name)
}

// Get returns a tool definition by name.
func (tr *ToolRegistry) Get(name string) (ToolDefinition, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	tool, ok := tr.tools[name]
	return tool, ok
}

// List returns all registered tool definitions sorted by name.
func (tr *ToolRegistry) List() []ToolDefinition {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	tools := make([]ToolDefinition, 0, len(tr.tools))
	for _, tool := range tr.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Call runs the named tool and wraps the outcome in a ToolResult. It never
// returns an error: failures, panics and unknown tools become error envelopes.
func (tr *ToolRegistry) Call(ctx context.Context, name, input string) (res ToolResult) {
	tr.mu.RLock()
	executor, ok := tr.executors[name]
	tr.mu.RUnlock()

	if !ok || executor == nil {
		return ToolResult{Status: StatusError, Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	defer func() {
		if r := recover(); r != nil {
			res = ToolResult{Status: StatusError, Error: fmt.Sprintf("tool %s panicked: %v", name, r)}
		}
	}()

	out, err := executor(ctx, input)
	if err != nil {
		return ToolResult{Status: StatusError, Error: err.Error()}
	}
	return ToolResult{Status: StatusOK, Result: out}
}

// HasTool checks if a tool is registered.
func (tr *ToolRegistry) HasTool(name string) bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	_, ok := tr.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (tr *ToolRegistry) Count() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	return len(tr.tools)
}
