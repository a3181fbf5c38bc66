package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPrefersEnvValues(t *testing.T) {
	cfgDir := t.TempDir()
	cfgPath := filepath.Join(cfgDir, "config.yaml")
	data := "log_level: debug\nbridge:\n  url: ws://file:3001/agent\n  command_timeout: 5s\nsecurity:\n  allow_shell: false\n"
	if err := os.WriteFile(cfgPath, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NMB_BRIDGE_URL", "ws://env:4000/agent")
	t.Setenv("NMB_SECURITY_ALLOWED_TOOLS", "read_file,search_files")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Bridge.URL != "ws://env:4000/agent" {
		t.Fatalf("expected env url override, got %q", cfg.Bridge.URL)
	}
	if cfg.Bridge.CommandTimeout != 5*time.Second {
		t.Fatalf("expected command timeout from file, got %v", cfg.Bridge.CommandTimeout)
	}
	if cfg.Security.AllowShell {
		t.Fatalf("expected allow_shell from file to win over default")
	}
	if !cfg.Security.AllowInternet {
		t.Fatalf("expected default allow_net to survive")
	}
	if len(cfg.Security.AllowedTools) != 2 || cfg.Security.AllowedTools[1] != "search_files" {
		t.Fatalf("unexpected allowed tools %v", cfg.Security.AllowedTools)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.SlogLevel())
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("bridge: [not, a, map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
