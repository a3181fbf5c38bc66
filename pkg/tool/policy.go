package tool

import (
	"context"
	"fmt"
	"slices"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/config"
)

// PolicyAction defines the action to take for a tool execution
type PolicyAction string

const (
	PolicyAllow PolicyAction = "allow"
	PolicyDeny  PolicyAction = "deny"
)

// Tool categories carried in types.Tool.Metadata["category"].
const (
	CategoryRead       = "read"
	CategoryAnalysis   = "analysis"
	CategoryFilesystem = "filesystem"
	CategoryShell      = "shell"
	CategoryInternet   = "internet"
)

type Policy struct {
	config   config.SecurityConfig
	registry *Registry
}

func NewPolicy(cfg config.SecurityConfig, registry *Registry) *Policy {
	return &Policy{
		config:   cfg,
		registry: registry,
	}
}

func (p *Policy) Check(ctx context.Context, toolName string) (PolicyAction, error) {
	// If AllowedTools is specified, ONLY allow listed tools.
	if len(p.config.AllowedTools) > 0 && !slices.Contains(p.config.AllowedTools, toolName) {
		return PolicyDeny, fmt.Errorf("tool %s is not in allowed_tools whitelist", toolName)
	}

	if p.registry == nil {
		return PolicyAllow, nil
	}
	t, ok := p.registry.Get(toolName)
	if !ok {
		return PolicyAllow, nil
	}

	category := t.Metadata["category"]
	if category == CategoryShell && !p.config.AllowShell {
		return PolicyDeny, fmt.Errorf("shell operations (category: %s) are disabled by security policy", category)
	}
	if category == CategoryInternet && !p.config.AllowInternet {
		return PolicyDeny, fmt.Errorf("internet operations (category: %s) are disabled by security policy", category)
	}
	if p.config.ReadOnly && (category == CategoryFilesystem || category == CategoryShell) {
		return PolicyDeny, fmt.Errorf("tool %s mutates the project and read_only is set", toolName)
	}

	return PolicyAllow, nil
}
