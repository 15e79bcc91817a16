package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/voxlane/duet/core"
)

// Registry is the runtime-mutable dispatch table mapping task types to tools.
// It is safe for concurrent use; the executor resolves from it on every task
// while the embedding application may register or unregister tools at any
// time.
type Registry struct {
	mu    sync.RWMutex
	tools map[core.TaskType]Tool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[core.TaskType]Tool)}
}

// Register binds a tool to a task type, replacing any previous binding.
func (r *Registry) Register(taskType core.TaskType, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[taskType] = t
}

// RegisterFunc binds a plain function, wrapping it in a Func tool named after
// the task type.
func (r *Registry) RegisterFunc(
	taskType core.TaskType,
	description string,
	fn func(ctx context.Context, query string, args map[string]any) (any, error),
) {
	r.Register(taskType, NewFunc(string(taskType), description, fn))
}

// Unregister removes the binding for a task type if present.
func (r *Registry) Unregister(taskType core.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, taskType)
}

// Resolve returns the tool bound to a task type. A missing binding yields a
// *ToolError with code NOT_REGISTERED, which the executor converts into a
// FAILED task.
func (r *Registry) Resolve(taskType core.TaskType) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[taskType]
	if !ok {
		return nil, &ToolError{
			Tool:    string(taskType),
			Message: fmt.Sprintf("no tool registered for task type %q", string(taskType)),
			Code:    CodeNotRegistered,
		}
	}
	return t, nil
}

// Names returns the registered task types in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for t := range r.tools {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// Validate checks at startup that every required task type has a tool bound,
// so dispatch misses surface before the first call instead of at runtime.
func (r *Registry) Validate(required ...core.TaskType) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, taskType := range required {
		if _, ok := r.tools[taskType]; !ok {
			return fmt.Errorf("registry validation: no tool registered for task type %q", string(taskType))
		}
	}
	return nil
}
