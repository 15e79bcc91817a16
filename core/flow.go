package core

// NodeType classifies conversation flow nodes.
type NodeType string

const (
	// NodeInstruction is a node where the agent speaks without expecting input.
	NodeInstruction NodeType = "instruction"
	// NodeQuestion is a node where the agent asks and waits for the user.
	NodeQuestion NodeType = "question"
	// NodeTool is a node that delegates to the background executor.
	NodeTool NodeType = "tool"
	// NodeExplanation is a node where the agent explains tool results.
	NodeExplanation NodeType = "explanation"
	// NodeReact is an open-ended reasoning-plus-action node.
	NodeReact NodeType = "react"
)

// FlowNode is one step in a scripted conversation flow. Flows are supplied by
// the embedding application; the aggregator only tracks position within them.
type FlowNode struct {
	ID             string         `json:"id"`
	Type           NodeType       `json:"type"`
	Prompt         string         `json:"prompt"`
	NextNode       string         `json:"next_node,omitempty"`
	RequiredFields []string       `json:"required_fields,omitempty"`
	ToolConfig     map[string]any `json:"tool_config,omitempty"`
}
