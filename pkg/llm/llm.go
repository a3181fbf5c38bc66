// Package llm selects a provider adapter for exposing the tool catalog and
// answering provider tool calls.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/llm/gemini"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/llm/openai"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// Format names a provider wire format.
type Format string

const (
	FormatNative Format = "native"
	FormatOpenAI Format = "openai"
	FormatGemini Format = "gemini"
)

var ErrUnknownFormat = errors.New("unknown provider format")

// ParseFormat accepts a format name case-insensitively; empty means native.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatNative:
		return FormatNative, nil
	case FormatOpenAI, FormatGemini:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Catalog renders tool definitions in format f.
func Catalog(f Format, tools []types.Tool) any {
	switch f {
	case FormatOpenAI:
		return openai.ToTools(tools)
	case FormatGemini:
		return gemini.ToTools(tools)
	default:
		return tools
	}
}

// ExecuteFunc runs one tool call.
type ExecuteFunc func(ctx context.Context, call types.ToolCall) types.ToolResult

// Answer decodes provider tool calls from payload, runs them in order and
// encodes the replies the provider expects:
//
//	openai: payload is a JSON array of tool calls; reply is an array of tool messages
//	gemini: payload is a Content with function call parts; reply is a user Content of function responses
func Answer(ctx context.Context, f Format, payload []byte, exec ExecuteFunc) (any, error) {
	switch f {
	case FormatOpenAI:
		var raw []goopenai.ToolCall
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("decode openai tool calls: %w", err)
		}
		calls, err := openai.FromToolCalls(raw)
		if err != nil {
			return nil, err
		}
		messages := make([]goopenai.ChatCompletionMessage, 0, len(calls))
		for _, call := range calls {
			msg, err := openai.ToolMessage(exec(ctx, call))
			if err != nil {
				return nil, err
			}
			messages = append(messages, msg)
		}
		return messages, nil

	case FormatGemini:
		var content genai.Content
		if err := json.Unmarshal(payload, &content); err != nil {
			return nil, fmt.Errorf("decode gemini content: %w", err)
		}
		reply := &genai.Content{Role: "user"}
		for _, call := range gemini.FromContent(&content) {
			part, err := gemini.ResponsePart(exec(ctx, call))
			if err != nil {
				return nil, err
			}
			reply.Parts = append(reply.Parts, part)
		}
		return reply, nil

	default:
		var call types.ToolCall
		if err := json.Unmarshal(payload, &call); err != nil {
			return nil, fmt.Errorf("decode tool call: %w", err)
		}
		if call.ID == "" {
			call.ID = types.GenerateToolCallID()
		}
		return exec(ctx, call), nil
	}
}
