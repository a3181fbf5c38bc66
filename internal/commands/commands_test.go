package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeWorkspace(t *testing.T) (root, cfgPath string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "ws")
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "a.ts"), []byte("export const a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath = filepath.Join(dir, "config.yaml")
	cfg := "log_level: ERROR\nbridge:\n  url: ws://127.0.0.1:1/ws\nsecurity:\n  execute_shell: false\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return root, cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "nmbridge") || !strings.Contains(out, readBuildInfo().Version) {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestVersionOverride(t *testing.T) {
	old := Version
	Version = "v9.9.9"
	defer func() { Version = old }()

	if got := readBuildInfo().Version; got != "v9.9.9" {
		t.Fatalf("ldflags version not used: %q", got)
	}
	out, err := run(t, "version")
	if err != nil || !strings.Contains(out, "v9.9.9") {
		t.Fatalf("unexpected version output: %q %v", out, err)
	}
}

func TestToolsCommandListsCatalog(t *testing.T) {
	_, cfg := writeWorkspace(t)
	out, err := run(t, "--config", cfg, "tools")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	for _, name := range []string{"read_file", "edit_file", "run_terminal_cmd", "web_search"} {
		if !strings.Contains(out, name) {
			t.Errorf("catalog output missing %s", name)
		}
	}
}

func TestExecReadFile(t *testing.T) {
	root, cfg := writeWorkspace(t)
	out, err := run(t, "--config", cfg, "--root", root, "exec", "read_file", `{"path":"a.ts"}`)
	if err != nil {
		t.Fatalf("exec: %v (%s)", err, out)
	}

	var res struct {
		Success bool `json:"success"`
		Result  struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("parse output: %v (%s)", err, out)
	}
	if !res.Success || res.Result.Content != "export const a = 1\n" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExecFailures(t *testing.T) {
	root, cfg := writeWorkspace(t)

	out, err := run(t, "--config", cfg, "--root", root, "exec", "read_file", `{"path":"missing.ts"}`)
	if !errors.Is(err, errToolFailed) {
		t.Fatalf("expected tool failure, got %v", err)
	}
	if !strings.Contains(out, `"success": false`) {
		t.Fatalf("failed result should still be printed: %s", out)
	}

	if _, err := run(t, "--config", cfg, "--root", root, "exec", "read_file", `{not json`); err == nil {
		t.Fatal("expected argument parse error")
	}
}

func TestExecRunTerminalSimulatedWhenShellDisabled(t *testing.T) {
	root, cfg := writeWorkspace(t)
	out, err := run(t, "--config", cfg, "--root", root, "exec", "run_terminal_cmd", `{"command":"pwd"}`)
	if err != nil {
		t.Fatalf("exec: %v (%s)", err, out)
	}
	if !strings.Contains(out, `"simulated": true`) {
		t.Fatalf("expected simulated output: %s", out)
	}
}

func TestToolsCommandProviderFormat(t *testing.T) {
	_, cfg := writeWorkspace(t)
	out, err := run(t, "--config", cfg, "tools", "--format", "gemini")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	var decls []struct {
		FunctionDeclarations []struct {
			Name string `json:"name"`
		} `json:"functionDeclarations"`
	}
	if err := json.Unmarshal([]byte(out), &decls); err != nil {
		t.Fatalf("parse output: %v (%s)", err, out)
	}
	if len(decls) != 1 || len(decls[0].FunctionDeclarations) != 10 {
		t.Fatalf("expected 10 function declarations, got %+v", decls)
	}

	if _, err := run(t, "--config", cfg, "tools", "--format", "xml"); err == nil {
		t.Fatal("expected unknown format error")
	}
}

func TestExecProviderPayloadFromStdin(t *testing.T) {
	root, cfg := writeWorkspace(t)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(`[{"id":"call_1","type":"function","function":{"name":"read_file","arguments":"{\"path\":\"a.ts\"}"}}]`))
	cmd.SetArgs([]string{"--config", cfg, "--root", root, "exec", "--format", "openai", "-"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("exec: %v (%s)", err, out.String())
	}

	var msgs []struct {
		Role       string `json:"role"`
		ToolCallID string `json:"tool_call_id"`
		Content    string `json:"content"`
	}
	if err := json.Unmarshal(out.Bytes(), &msgs); err != nil {
		t.Fatalf("parse output: %v (%s)", err, out.String())
	}
	if len(msgs) != 1 || msgs[0].Role != "tool" || msgs[0].ToolCallID != "call_1" || !strings.Contains(msgs[0].Content, "export const a = 1") {
		t.Fatalf("unexpected reply: %+v", msgs)
	}
}
