package types

// Tool definition
type Tool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  JSONSchema        `json:"parameters"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ToolCall represents an invocation request from an agent
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the tagged outcome of a tool execution.
// Result may be set on failure to carry diagnostic hints.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(result any) ToolResult {
	return ToolResult{Success: true, Result: result}
}

// Failed builds a failed result with an optional hint payload.
func Failed(msg string, hint any) ToolResult {
	return ToolResult{Success: false, Error: msg, Result: hint}
}
