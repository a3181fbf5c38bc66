// Package protocol defines the JSON messages exchanged between the bridge and
// a running visualizer instance.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// MessageType identifies a frame on the control-plane socket.
type MessageType string

const (
	// bridge -> remote
	TypeIdentify     MessageType = "identify"
	TypeStateRequest MessageType = "state-request"
	TypeCommand      MessageType = "command"

	// remote -> bridge
	TypeStatePush       MessageType = "state-push"
	TypeCommandResponse MessageType = "command-response"
)

var ErrUnknownType = errors.New("unknown message type")

// Envelope is used to peek at the type of an inbound frame before decoding it
// fully.
type Envelope struct {
	Type MessageType `json:"type"`
}

type Identify struct {
	Type   MessageType `json:"type"`
	Client string      `json:"client"`
}

type StateRequest struct {
	Type MessageType `json:"type"`
}

type Command struct {
	Type      MessageType     `json:"type"`
	RequestID int64           `json:"requestId"`
	Command   string          `json:"command"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// StatePush carries a full snapshot replacement.
type StatePush struct {
	Type MessageType `json:"type"`
	types.ApplicationSnapshot
}

// CommandResponse settles the pending request with the same RequestID.
// Exactly one of Result or Error is meaningful; a non-empty Error wins.
type CommandResponse struct {
	Type      MessageType     `json:"type"`
	RequestID int64           `json:"requestId"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func NewIdentify(client string) Identify {
	return Identify{Type: TypeIdentify, Client: client}
}

func NewStateRequest() StateRequest {
	return StateRequest{Type: TypeStateRequest}
}

// NewCommand builds a command frame. params may be nil or any JSON-encodable
// value.
func NewCommand(requestID int64, name string, params any) (Command, error) {
	cmd := Command{Type: TypeCommand, RequestID: requestID, Command: name}
	if params == nil {
		return cmd, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		cmd.Params = raw
		return cmd, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return Command{}, fmt.Errorf("encode params for %s: %w", name, err)
	}
	cmd.Params = data
	return cmd, nil
}

// Decode parses an inbound frame into one of the remote->bridge message
// types. Bridge->remote types are decoded too so a fake remote can reuse it.
func Decode(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeStatePush:
		msg = &StatePush{}
	case TypeCommandResponse:
		msg = &CommandResponse{}
	case TypeCommand:
		msg = &Command{}
	case TypeIdentify:
		msg = &Identify{}
	case TypeStateRequest:
		msg = &StateRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}
