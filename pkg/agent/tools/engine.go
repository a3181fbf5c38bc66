// Package tools implements the tool execution engine: an in-memory project
// file set that an agent can read, search, analyze and mutate through a
// fixed catalog of tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/config"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/patch"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/security"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/tool"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

const maxCandidateHints = 20

// Config is the construction-time configuration of an Engine. Sink, Runner
// and Analyzer are optional; a nil Policy allows every tool.
type Config struct {
	Files           []types.ProjectFile
	ProjectRootPath string
	ProjectSummary  string

	Sink     FileChangeSink
	Runner   CommandRunner
	Analyzer Analyzer
	Policy   *config.SecurityConfig
	Logger   *slog.Logger
}

// Engine owns the project file set. All access to it goes through mu, so the
// modification log order is the mutation order.
type Engine struct {
	mu       sync.RWMutex
	files    []*types.ProjectFile
	rootPath string
	summary  string

	log       *patch.Log
	sink      FileChangeSink
	runner    CommandRunner
	analyzer  Analyzer
	validator *security.CommandValidator
	executor  *tool.Executor
	logger    *slog.Logger
}

// New builds an engine with the full tool catalog registered.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NopSink{}
	}
	analyzer := cfg.Analyzer
	if analyzer == nil {
		analyzer = LexicalAnalyzer{}
	}
	policy := config.SecurityConfig{AllowShell: true, AllowInternet: true}
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}

	e := &Engine{
		rootPath:  cfg.ProjectRootPath,
		summary:   cfg.ProjectSummary,
		log:       patch.NewLog(),
		sink:      sink,
		runner:    cfg.Runner,
		analyzer:  analyzer,
		validator: security.NewCommandValidator(),
		logger:    logger.With("component", "tools"),
	}
	e.files = cloneFiles(cfg.Files)

	registry := tool.NewRegistry()
	for _, t := range Catalog {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.Name, err)
		}
	}
	e.executor = tool.NewExecutor(registry, tool.NewPolicy(policy, registry), e.logger)

	e.executor.RegisterHandler(ReadFileTool.Name, e.handleReadFile)
	e.executor.RegisterHandler(SearchFilesTool.Name, e.handleSearchFiles)
	e.executor.RegisterHandler(GetFileStructureTool.Name, e.handleGetFileStructure)
	e.executor.RegisterHandler(AnalyzeDependenciesTool.Name, e.handleAnalyzeDependencies)
	e.executor.RegisterHandler(FindReferencesTool.Name, e.handleFindReferences)
	e.executor.RegisterHandler(GetProjectSummaryTool.Name, e.handleGetProjectSummary)
	e.executor.RegisterHandler(EditFileTool.Name, e.handleEditFile)
	e.executor.RegisterHandler(CreateFileTool.Name, e.handleCreateFile)
	e.executor.RegisterHandler(RunTerminalCmdTool.Name, e.handleRunTerminalCmd)
	e.executor.RegisterHandler(WebSearchTool.Name, e.handleWebSearch)

	return e, nil
}

// Execute runs one tool call. It never panics; failures are results.
func (e *Engine) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	e.logger.Debug("executing tool", "tool", call.Name, "call_id", call.ID)
	return e.executor.Execute(ctx, call)
}

// Tools returns the catalog.
func (e *Engine) Tools() []types.Tool {
	return e.executor.List()
}

// SetObserver registers a callback run after every Execute.
func (e *Engine) SetObserver(o tool.Observer) {
	e.executor.SetObserver(o)
}

// Files returns a copy of the current file set.
func (e *Engine) Files() []types.ProjectFile {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]types.ProjectFile, len(e.files))
	for i, f := range e.files {
		result[i] = *f
	}
	return result
}

// ReplaceFiles swaps the whole file set, e.g. after a snapshot push. The
// modification log is kept; undo fails for paths that no longer exist.
func (e *Engine) ReplaceFiles(files []types.ProjectFile, rootPath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files = cloneFiles(files)
	if rootPath != "" {
		e.rootPath = rootPath
	}
}

// SetProjectSummary replaces the optional project graph summary.
func (e *Engine) SetProjectSummary(summary string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summary = summary
}

// Modifications returns the modification log, oldest first.
func (e *Engine) Modifications() []types.FileModification {
	return e.log.Entries()
}

func cloneFiles(files []types.ProjectFile) []*types.ProjectFile {
	result := make([]*types.ProjectFile, len(files))
	for i := range files {
		f := files[i]
		if f.ID == "" {
			f.ID = types.GenerateFileID()
		}
		result[i] = &f
	}
	return result
}

// find resolves a file by exact path/name, then path suffix, then
// case-insensitive substring. Callers must hold mu.
func (e *Engine) find(query string) *types.ProjectFile {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if f := e.findExact(query); f != nil {
		return f
	}
	if f := e.findSuffix(query); f != nil {
		return f
	}
	lower := strings.ToLower(query)
	for _, f := range e.files {
		if strings.Contains(strings.ToLower(f.Key()), lower) {
			return f
		}
	}
	return nil
}

func (e *Engine) findExact(query string) *types.ProjectFile {
	for _, f := range e.files {
		if f.Key() == query || f.Name == query {
			return f
		}
	}
	return nil
}

func (e *Engine) findSuffix(query string) *types.ProjectFile {
	for _, f := range e.files {
		if strings.HasSuffix(f.Key(), query) {
			return f
		}
	}
	return nil
}

// candidates lists up to maxCandidateHints paths as a not-found hint.
func (e *Engine) candidates() map[string]any {
	paths := make([]string, 0, min(len(e.files), maxCandidateHints))
	for _, f := range e.files {
		if len(paths) == maxCandidateHints {
			break
		}
		paths = append(paths, f.Key())
	}
	return map[string]any{"available_files": paths, "total_files": len(e.files)}
}

// relative strips the project root from a file key.
func (e *Engine) relative(key string) string {
	rel := key
	if e.rootPath != "" {
		root := strings.TrimSuffix(e.rootPath, "/")
		if strings.HasPrefix(rel, root+"/") {
			rel = strings.TrimPrefix(rel, root+"/")
		}
	}
	rel = strings.TrimPrefix(rel, "./")
	rel = strings.TrimPrefix(rel, "/")
	return path.Clean(rel)
}

func (e *Engine) notify(ctx context.Context, change types.FileChange) {
	e.logger.Debug("notifying file change", "op", change.Op, "path", change.Path)
	e.sink.FileChanged(ctx, change)
}

// decodeArgs converts tool arguments into a typed struct.
func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func truncate(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	return s[:n], true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
