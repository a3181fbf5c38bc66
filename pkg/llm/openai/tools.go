// Package openai converts the tool catalog and tool results to and from the
// OpenAI chat completion wire types.
package openai

import (
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// ToTools converts tool definitions to OpenAI function tools.
func ToTools(tools []types.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters, // map[string]any marshals as-is
			},
		}
	}
	return result
}

// FromToolCalls decodes the JSON argument strings of model tool calls.
func FromToolCalls(calls []openai.ToolCall) ([]types.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	result := make([]types.ToolCall, len(calls))
	for i, c := range calls {
		args := map[string]any{}
		if c.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(c.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool arguments for %s: %w", c.Function.Name, err)
			}
		}
		result[i] = types.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: args,
		}
	}
	return result, nil
}

// ToolMessage renders a tool result as the tool-role message answering it.
func ToolMessage(result types.ToolResult) (openai.ChatCompletionMessage, error) {
	content, err := json.Marshal(result)
	if err != nil {
		return openai.ChatCompletionMessage{}, fmt.Errorf("encode tool result: %w", err)
	}
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Name:       result.ToolName,
		ToolCallID: result.ToolCallID,
		Content:    string(content),
	}, nil
}
