// Package gemini converts the tool catalog and tool results to and from the
// genai function calling types.
package gemini

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// ToTools wraps tool definitions into a single genai tool of function
// declarations.
func ToTools(tools []types.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		fds = append(fds, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	valType, _ := schema["type"].(string)
	s := &genai.Schema{
		Type:        toGenaiType(valType),
		Description: getString(schema, "description"),
		Enum:        stringList(schema["enum"]),
		Required:    stringList(schema["required"]),
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if vMap, ok := v.(map[string]any); ok {
				s.Properties[k] = convertSchema(vMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = convertSchema(items)
	}
	if minimum, ok := number(schema["minimum"]); ok {
		s.Minimum = genai.Ptr(minimum)
	}

	return s
}

// stringList accepts both []string (schemas built in Go) and []any
// (schemas decoded from JSON).
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		var result []string
		for _, item := range list {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toGenaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func getString(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}

// FromContent extracts the function calls of a model response. Gemini does
// not always set call ids; missing ones are generated.
func FromContent(content *genai.Content) []types.ToolCall {
	if content == nil {
		return nil
	}
	var calls []types.ToolCall
	for _, part := range content.Parts {
		if part == nil || part.FunctionCall == nil {
			continue
		}
		id := part.FunctionCall.ID
		if id == "" {
			id = types.GenerateToolCallID()
		}
		args := part.FunctionCall.Args
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, types.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args})
	}
	return calls
}

// ResponsePart renders a tool result as a function response part.
func ResponsePart(result types.ToolResult) (*genai.Part, error) {
	if result.ToolName == "" {
		return nil, fmt.Errorf("tool result has no tool name")
	}
	response := map[string]any{"success": result.Success}
	if result.Result != nil {
		response["result"] = result.Result
	}
	if result.Error != "" {
		response["error"] = result.Error
	}
	return &genai.Part{
		FunctionResponse: &genai.FunctionResponse{
			ID:       result.ToolCallID,
			Name:     result.ToolName,
			Response: response,
		},
	}, nil
}
