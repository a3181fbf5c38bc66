package tools

import (
	"context"
	"log/slog"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// FileChangeSink is told about every successful mutation and undo.
type FileChangeSink interface {
	FileChanged(ctx context.Context, change types.FileChange)
}

// CommandOutput is the raw outcome of a terminal command.
type CommandOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner executes a terminal command. Without one, run_terminal_cmd
// only simulates output.
type CommandRunner interface {
	Run(ctx context.Context, command, cwd string) (CommandOutput, error)
}

// SinkFunc adapts a function to FileChangeSink.
type SinkFunc func(ctx context.Context, change types.FileChange)

func (f SinkFunc) FileChanged(ctx context.Context, change types.FileChange) { f(ctx, change) }

// NopSink discards notifications.
type NopSink struct{}

func (NopSink) FileChanged(context.Context, types.FileChange) {}

// LogSink logs notifications.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) FileChanged(ctx context.Context, change types.FileChange) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "file changed", "op", change.Op, "path", change.Path, "bytes", len(change.Content))
}

// MultiSink fans a notification out to several sinks in order.
type MultiSink []FileChangeSink

func (m MultiSink) FileChanged(ctx context.Context, change types.FileChange) {
	for _, s := range m {
		if s != nil {
			s.FileChanged(ctx, change)
		}
	}
}
