package types

import (
	"github.com/oklog/ulid/v2"
)

// JSONSchema represents a JSON Schema definition
type JSONSchema map[string]any

// ID Generation Helpers

func GenerateID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

func GenerateFileID() string         { return GenerateID("fil") }
func GenerateModificationID() string { return GenerateID("mod") }
func GenerateToolCallID() string     { return GenerateID("call") }
