// Package model defines the minimal text-completion interface the optional
// reasoning layer uses to refine queries and synthesize tool results into
// natural language. Provider adapters live in subpackages (openai, anthropic);
// MockModel serves tests and examples.
package model

import "context"

// Request is a single-shot completion input.
type Request struct {
	// System carries standing instructions for the model.
	System string `json:"system,omitempty"`
	// Prompt is the user-turn text to complete.
	Prompt string `json:"prompt"`
}

// Response is the completed text.
type Response struct {
	Text string `json:"text"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface required to drive text generation. Complete
// must honor ctx cancellation; tool execution awaits it on the task path.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model for tests and examples.
type MockModel struct {
	info      Info
	responses map[string]string
	fallback  func(prompt string) string
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// SetFallback installs a function used for prompts without a canned response.
func (m *MockModel) SetFallback(fn func(prompt string) string) { m.fallback = fn }

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if text, ok := m.responses[req.Prompt]; ok {
		return Response{Text: text}, nil
	}
	if m.fallback != nil {
		return Response{Text: m.fallback(req.Prompt)}, nil
	}
	return Response{Text: "Mock response to: " + req.Prompt}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
