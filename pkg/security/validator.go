package security

import (
	"fmt"
	"regexp"
	"strings"
)

// DenyRule is one destructive command pattern.
type DenyRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultDenyRules is the fixed deny-list applied before any command runs.
var DefaultDenyRules = []DenyRule{
	{
		Name:    "recursive deletion of root or home",
		Pattern: regexp.MustCompile(`\brm\s+(-[a-zA-Z]+\s+)*-[a-zA-Z]*[rR][a-zA-Z]*\s+(-[a-zA-Z]+\s+)*("?(/|~|\$HOME)/?\*?"?)(\s|;|&|\||$)`),
	},
	{
		Name:    "privileged deletion",
		Pattern: regexp.MustCompile(`\bsudo\s+(-\S+\s+)*rm\b`),
	},
	{
		Name:    "filesystem formatting",
		Pattern: regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`),
	},
	{
		Name:    "raw disk write",
		Pattern: regexp.MustCompile(`\bdd\s+.*\bof=/dev/`),
	},
	{
		Name:    "device file redirection",
		Pattern: regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|vd|xvd|disk|mmcblk)[a-z0-9]*`),
	},
	{
		Name:    "world-writable chmod on root",
		Pattern: regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]+\s+)*(0?777|a\+rwx|ugo\+rwx)\s+/(\s|;|&|$)`),
	},
	{
		Name:    "fork bomb",
		Pattern: regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
	},
}

// BlockedCommandError is returned for a command matching a deny rule.
type BlockedCommandError struct {
	Command string
	Rule    string
}

func (e *BlockedCommandError) Error() string {
	return fmt.Sprintf("blocked dangerous command (%s): %s", e.Rule, e.Command)
}

// CommandValidator validates shell commands
type CommandValidator struct {
	rules []DenyRule
}

// NewCommandValidator creates a validator over DefaultDenyRules plus any
// extra rules.
func NewCommandValidator(extra ...DenyRule) *CommandValidator {
	rules := make([]DenyRule, 0, len(DefaultDenyRules)+len(extra))
	rules = append(rules, DefaultDenyRules...)
	rules = append(rules, extra...)
	return &CommandValidator{rules: rules}
}

// ValidateCommand returns a *BlockedCommandError if cmd matches a deny rule.
func (v *CommandValidator) ValidateCommand(cmd string) error {
	trimmed := strings.TrimSpace(cmd)
	for _, rule := range v.rules {
		if rule.Pattern.MatchString(trimmed) {
			return &BlockedCommandError{Command: cmd, Rule: rule.Name}
		}
	}
	return nil
}
