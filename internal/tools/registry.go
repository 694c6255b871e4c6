package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shiftbot/internal/logging"
)

// Registry maps tool names to tools. It is thread-safe: registration
// happens at startup (local tools, then remote discovery) while later
// reads come from the session loop.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. A duplicate name is ErrToolAlreadyRegistered;
// callers at startup treat that as fatal.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool

	logging.L("tools").Debugw("registered tool", "name", tool.Name, "category", tool.Category)
	return nil
}

// RegisterAll registers tools in order, stopping at the first failure.
func (r *Registry) RegisterAll(ts ...*Tool) error {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// All returns all tools sorted by name, so the reasoning engine sees a
// stable declaration order across turns.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute validates args against the named tool's schema and runs it.
// ErrToolNotFound and validation failures come back both as the Result's
// Err and as the second return, so callers can branch without unwrapping.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool := r.Get(name)
	if tool == nil {
		err := fmt.Errorf("%w: %s", ErrToolNotFound, name)
		return &Result{ToolName: name, Err: err}, err
	}

	start := time.Now()

	if err := validateArgs(tool, args); err != nil {
		return &Result{ToolName: name, Err: err, Duration: time.Since(start)}, err
	}

	logging.L("tools").Debugw("executing tool", "name", name)
	output, err := tool.Execute(ctx, args)
	duration := time.Since(start)
	logging.L("tools").Debugw("tool finished", "name", name, "duration", duration, "success", err == nil)

	return &Result{ToolName: name, Output: output, Err: err, Duration: duration}, err
}
