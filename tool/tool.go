// Package tool defines the contract between the background executor and the
// opaque callables it dispatches to (knowledge-base search, SQL layers,
// business-rule engines, HTTP clients). Tools are always injected by the
// embedding application, never implemented here.
package tool

import (
	"context"
	"fmt"
)

// Tool is an asynchronous callable executed by the background executor. It
// receives the free-text query plus arbitrary key/value context (e.g.
// previously collected user attributes) and returns a serializable result.
//
// Implementations should be safe for concurrent use: the executor may run
// several tasks against the same tool at once. Any returned error is captured
// into the failing task and never propagated to the poll loop.
type Tool interface {
	// Name returns the unique identifier the tool is registered under.
	Name() string

	// Description returns a short human-readable summary of the capability.
	Description() string

	// Call executes the tool. Blocking I/O must honor ctx cancellation.
	Call(ctx context.Context, query string, args map[string]any) (any, error)
}

// Error codes attached to *ToolError for uniform downstream handling.
const (
	// CodeExecution marks an error raised inside a registered tool.
	CodeExecution = "EXECUTION_ERROR"
	// CodeNotRegistered marks a lookup for a task type with no tool bound.
	CodeNotRegistered = "NOT_REGISTERED"
)

// ToolError is the normalized error shape for tool failures.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the given details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
