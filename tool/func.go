package tool

import "context"

// Func adapts a plain Go function into a Tool. It has no internal mutable
// state after construction and is safe for concurrent use.
//
// Error semantics:
//
//	*ToolError (returned directly) -> forwarded unchanged
//	other error                    -> wrapped as *ToolError{Code: EXECUTION_ERROR}
type Func struct {
	name        string
	description string
	fn          func(ctx context.Context, query string, args map[string]any) (any, error)
}

// NewFunc constructs a Func tool.
//
// Example:
//
//	kb := tool.NewFunc("kb_search", "Semantic search over the knowledge base",
//	  func(ctx context.Context, query string, _ map[string]any) (any, error) {
//	    return index.Search(ctx, query)
//	  },
//	)
func NewFunc(
	name, description string,
	fn func(ctx context.Context, query string, args map[string]any) (any, error),
) *Func {
	return &Func{name: name, description: description, fn: fn}
}

// Name returns the unique tool name used for task-type routing.
func (t *Func) Name() string { return t.name }

// Description returns the short natural-language description.
func (t *Func) Description() string { return t.description }

// Call invokes the wrapped function, normalizing failures to *ToolError.
func (t *Func) Call(ctx context.Context, query string, args map[string]any) (any, error) {
	result, err := t.fn(ctx, query, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return nil, toolErr
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}
	return result, nil
}
