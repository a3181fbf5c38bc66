package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/bridge"
)

// SecurityConfig contains tool execution policy settings.
type SecurityConfig struct {
	AllowedTools   []string      `yaml:"allowed_tools" envconfig:"ALLOWED_TOOLS"`
	AllowShell     bool          `yaml:"allow_shell" envconfig:"ALLOW_SHELL"`
	AllowInternet  bool          `yaml:"allow_net" envconfig:"ALLOW_NET"`
	ReadOnly       bool          `yaml:"read_only" envconfig:"READ_ONLY"`
	ExecuteShell   bool          `yaml:"execute_shell" envconfig:"EXECUTE_SHELL"` // run commands for real instead of simulating
	CommandTimeout time.Duration `yaml:"command_timeout" envconfig:"COMMAND_TIMEOUT"`
}

// WorkspaceConfig controls how the initial project file set is loaded from
// disk.
type WorkspaceConfig struct {
	Root         string   `yaml:"root" envconfig:"ROOT"`
	Include      []string `yaml:"include" envconfig:"INCLUDE"`
	Exclude      []string `yaml:"exclude" envconfig:"EXCLUDE"`
	MaxFileBytes int64    `yaml:"max_file_bytes" envconfig:"MAX_FILE_BYTES"`
	Summary      string   `yaml:"summary" envconfig:"SUMMARY"`
}

// SyncConfig controls forwarding of engine file changes to the connected
// instance as bridge commands.
type SyncConfig struct {
	Enable        bool   `yaml:"enable" envconfig:"ENABLE"`
	Command       string `yaml:"command" envconfig:"COMMAND"`
	DeleteCommand string `yaml:"delete_command" envconfig:"DELETE_COMMAND"`
	QueueSize     int    `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	// Commands names further remote commands that get their own metric label.
	Commands []string `yaml:"commands" envconfig:"COMMANDS"`
}

// HTTPConfig contains HTTP API related settings.
type HTTPConfig struct {
	Enable bool   `yaml:"enable" envconfig:"ENABLE"`
	Addr   string `yaml:"addr" envconfig:"ADDR"`
	APIKey string `yaml:"api_key" envconfig:"API_KEY"`
}

// Config is the root configuration structure.
type Config struct {
	// LogLevel controls structured logging verbosity (DEBUG, INFO, WARN, ERROR).
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	Bridge    bridge.Config   `yaml:"bridge" envconfig:"BRIDGE"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Workspace WorkspaceConfig `yaml:"workspace" envconfig:"WORKSPACE"`
	Sync      SyncConfig      `yaml:"sync" envconfig:"SYNC"`
	HTTP      HTTPConfig      `yaml:"http" envconfig:"HTTP"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel: "INFO",
		Bridge:   bridge.DefaultConfig,
		Security: SecurityConfig{
			AllowShell:     true,
			AllowInternet:  true,
			CommandTimeout: 60 * time.Second,
		},
		Workspace: WorkspaceConfig{
			Root:         ".",
			Exclude:      []string{"**/node_modules/**", "**/.git/**", "**/dist/**", "**/vendor/**"},
			MaxFileBytes: 512 * 1024,
		},
		Sync: SyncConfig{
			Enable:        true,
			Command:       "update_file",
			DeleteCommand: "delete_file",
			QueueSize:     64,
		},
		HTTP: HTTPConfig{
			Enable: true,
			Addr:   ":8080",
		},
	}
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to INFO.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "VERBOSE":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from the specified path, or defaults if path is empty.
// Priority: Env Vars > Config File > Defaults
func Load(path string) (*Config, error) {
	// Try loading .env files (ignore error if not present)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	if path == "" {
		path = findConfigFile()
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Process Env Vars (NMB_ prefix), e.g. NMB_BRIDGE_URL, NMB_HTTP_ADDR
	if err := envconfig.Process("NMB", cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Bridge.URL == "" {
		return nil, fmt.Errorf("bridge.url must be set")
	}

	return cfg, nil
}

// findConfigFile looks in ./config.yaml, then ~/.nmbridge/config.yaml.
func findConfigFile() string {
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	defaultPath := filepath.Join(home, ".nmbridge", "config.yaml")
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath
	}
	return ""
}
