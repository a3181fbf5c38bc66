package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/security"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/tool"
)

const (
	maxStdout = 5000
	maxStderr = 1000
)

type RunTerminalCmdArgs struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd"`
}

type TerminalResult struct {
	Command         string `json:"command"`
	Cwd             string `json:"cwd,omitempty"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr,omitempty"`
	ExitCode        int    `json:"exit_code"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	Simulated       bool   `json:"simulated,omitempty"`
}

func (e *Engine) handleRunTerminalCmd(ctx context.Context, raw map[string]any) (any, error) {
	var args RunTerminalCmdArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Command) == "" {
		return nil, tool.Fail(nil, "command is required")
	}

	if err := e.validator.ValidateCommand(args.Command); err != nil {
		var blocked *security.BlockedCommandError
		if errors.As(err, &blocked) {
			e.logger.Warn("blocked terminal command", "command", args.Command, "rule", blocked.Rule)
			return nil, tool.Fail(map[string]any{"rule": blocked.Rule}, "%s", err.Error())
		}
		return nil, err
	}

	e.mu.RLock()
	cwd := args.Cwd
	if cwd == "" {
		cwd = e.rootPath
	}
	e.mu.RUnlock()

	if e.runner == nil {
		return e.simulate(args.Command, cwd), nil
	}

	out, err := e.runner.Run(ctx, args.Command, cwd)
	if err != nil {
		return nil, fmt.Errorf("command execution failed: %w", err)
	}

	result := TerminalResult{Command: args.Command, Cwd: cwd, ExitCode: out.ExitCode}
	result.Stdout, result.StdoutTruncated = truncate(out.Stdout, maxStdout)
	result.Stderr, result.StderrTruncated = truncate(out.Stderr, maxStderr)
	if out.ExitCode != 0 {
		return nil, tool.Fail(result, "command exited with code %d", out.ExitCode)
	}
	return result, nil
}

// simulate guesses plausible output for a few well-known commands. Nothing
// is executed.
func (e *Engine) simulate(command, cwd string) TerminalResult {
	result := TerminalResult{Command: command, Cwd: cwd, Simulated: true}
	fields := strings.Fields(command)
	head := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(command, head))

	e.mu.RLock()
	defer e.mu.RUnlock()

	switch {
	case head == "ls":
		result.Stdout = strings.Join(e.listing(), "\n")
	case head == "pwd":
		result.Stdout = cwd
		if result.Stdout == "" {
			result.Stdout = "/"
		}
	case head == "cat" && len(fields) > 1:
		if f := e.find(fields[1]); f != nil {
			result.Stdout, result.StdoutTruncated = truncate(f.Content, maxStdout)
		} else {
			result.Stderr = fmt.Sprintf("cat: %s: No such file or directory", fields[1])
			result.ExitCode = 1
		}
	case head == "echo":
		result.Stdout = strings.Trim(rest, `"'`)
	case strings.HasPrefix(command, "git status"):
		result.Stdout = "On branch main\nnothing to commit, working tree clean"
	case strings.HasPrefix(command, "npm install"), strings.HasPrefix(command, "npm i "), command == "npm i":
		result.Stdout = "added 0 packages, and audited 1 package in 1s\n\nfound 0 vulnerabilities"
	case strings.HasPrefix(command, "npm test"), strings.HasPrefix(command, "npm run test"):
		result.Stdout = "Test Suites: all passed (simulated)"
	case strings.HasPrefix(command, "npm run"):
		result.Stdout = fmt.Sprintf("> %s\n\n(simulated script run)", rest)
	case strings.HasPrefix(command, "node -v"), strings.HasPrefix(command, "node --version"):
		result.Stdout = "v20.11.0"
	case strings.HasPrefix(command, "go version"):
		result.Stdout = "go version go1.25.5 linux/amd64"
	default:
		result.Stdout = fmt.Sprintf("Command %q acknowledged. No execution backend is configured, so no output is available.", command)
	}
	return result
}

// listing returns the top-level entries of the project, directories with a
// trailing slash. Callers must hold mu.
func (e *Engine) listing() []string {
	seen := make(map[string]bool)
	for _, f := range e.files {
		rel := e.relative(f.Key())
		if i := strings.Index(rel, "/"); i > 0 {
			seen[rel[:i]+"/"] = true
		} else {
			seen[path.Base(rel)] = true
		}
	}
	entries := make([]string, 0, len(seen))
	for name := range seen {
		entries = append(entries, name)
	}
	sort.Strings(entries)
	return entries
}

// ShellRunner executes commands with bash -c. Timeout bounds each command
// when positive.
type ShellRunner struct {
	Shell   string
	Timeout time.Duration
}

func (r ShellRunner) Run(ctx context.Context, command, cwd string) (CommandOutput, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	shell := r.Shell
	if shell == "" {
		shell = "bash"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := CommandOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			if ctx.Err() != nil {
				out.Stderr += "\n" + ctx.Err().Error()
			}
			return out, nil
		}
		return out, err
	}
	return out, nil
}
