package tools

import (
	"context"
	"path"
	"slices"
	"strings"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/patch"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/tool"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

const (
	maxLooseMatches = 3
	looseMatchChars = 20
	undoToolName    = "undo_last_modification"
)

// lookup resolves an existing file for mutation: exact key or name, then a
// suffix on a path segment boundary. Callers must hold mu.
func (e *Engine) lookup(p string) *types.ProjectFile {
	if strings.TrimSpace(p) == "" {
		return nil
	}
	if f := e.findExact(p); f != nil {
		return f
	}
	for _, f := range e.files {
		if strings.HasSuffix(f.Key(), "/"+strings.TrimPrefix(p, "./")) {
			return f
		}
	}
	return nil
}

type EditFileArgs struct {
	Path       string `json:"path"`
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`
}

type EditResult struct {
	Path           string `json:"path"`
	ModificationID string `json:"modification_id"`
	LinesAdded     int    `json:"lines_added"`
	LinesRemoved   int    `json:"lines_removed"`
	Diff           string `json:"diff,omitempty"`
}

type LooseMatch struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (e *Engine) handleEditFile(ctx context.Context, raw map[string]any) (any, error) {
	var args EditFileArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	e.mu.Lock()
	f := e.lookup(args.Path)
	if f == nil {
		hint := e.candidates()
		e.mu.Unlock()
		return nil, tool.Fail(hint, "file not found: %s", args.Path)
	}

	before := f.Content
	if args.OldContent == "" && before != "" {
		e.mu.Unlock()
		return nil, tool.Fail(nil, "old_content is empty but %s is not; pass the exact text to replace", f.Key())
	}
	if !strings.Contains(before, args.OldContent) {
		hint := map[string]any{"similar_lines": looseMatches(before, args.OldContent)}
		e.mu.Unlock()
		return nil, tool.Fail(hint, "old_content not found in %s; it must match the current content exactly", f.Key())
	}

	after := strings.Replace(before, args.OldContent, args.NewContent, 1)
	f.Content = after
	mod := e.log.Record(types.FileModification{
		Op:         types.ModificationEdit,
		Path:       f.Key(),
		OldContent: before,
		NewContent: after,
	})
	e.mu.Unlock()

	e.notify(ctx, types.FileChange{Op: types.FileChangeModified, Path: mod.Path, Content: after})

	result := EditResult{Path: mod.Path, ModificationID: mod.ID, Diff: mod.Diff}
	if d, err := patch.GenerateDiff(before, after); err == nil {
		result.LinesAdded, result.LinesRemoved = d.LinesAdded, d.LinesRemoved
	}
	return result, nil
}

// looseMatches finds lines containing the first characters of the first
// line of want, ignoring case and surrounding space.
func looseMatches(content, want string) []LooseMatch {
	first, _, _ := strings.Cut(strings.TrimSpace(want), "\n")
	needle := strings.ToLower(strings.TrimSpace(first))
	if len(needle) > looseMatchChars {
		needle = needle[:looseMatchChars]
	}

	result := make([]LooseMatch, 0, maxLooseMatches)
	if needle == "" {
		return result
	}
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			result = append(result, LooseMatch{Line: i + 1, Text: line})
			if len(result) == maxLooseMatches {
				break
			}
		}
	}
	return result
}

type CreateFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type CreateResult struct {
	ID             string `json:"id"`
	Path           string `json:"path"`
	Type           string `json:"type"`
	ModificationID string `json:"modification_id"`
}

func (e *Engine) handleCreateFile(ctx context.Context, raw map[string]any) (any, error) {
	var args CreateFileArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Path) == "" {
		return nil, tool.Fail(nil, "path is required")
	}

	e.mu.Lock()
	if existing := e.lookup(args.Path); existing != nil {
		e.mu.Unlock()
		return nil, tool.Fail(map[string]any{"existing_path": existing.Key()},
			"file already exists: %s; use edit_file to change it", existing.Key())
	}

	f := &types.ProjectFile{
		ID:      types.GenerateFileID(),
		Name:    path.Base(args.Path),
		Path:    args.Path,
		Content: args.Content,
		Type:    types.FileTypeFor(args.Path),
	}
	e.files = append(e.files, f)
	mod := e.log.Record(types.FileModification{
		Op:         types.ModificationCreate,
		Path:       f.Path,
		NewContent: f.Content,
	})
	e.mu.Unlock()

	e.notify(ctx, types.FileChange{Op: types.FileChangeCreated, Path: f.Path, Content: f.Content})

	return CreateResult{ID: f.ID, Path: f.Path, Type: f.Type, ModificationID: mod.ID}, nil
}

type UndoResult struct {
	ModificationID string               `json:"modification_id"`
	Op             types.ModificationOp `json:"op"`
	Path           string               `json:"path"`
	Restored       string               `json:"restored"` // content or "removed"
	Remaining      int                  `json:"remaining"`
}

// UndoLastModification reverts the newest logged modification. An edit is
// reverted by restoring the old content; a create by removing the file. An
// entry whose file no longer exists is discarded and reported as a failure.
func (e *Engine) UndoLastModification(ctx context.Context) types.ToolResult {
	result := e.undo(ctx)
	result.ToolName = undoToolName
	return result
}

func (e *Engine) undo(ctx context.Context) types.ToolResult {
	e.mu.Lock()
	mod, ok := e.log.Pop()
	if !ok {
		e.mu.Unlock()
		return types.Failed("no modifications to undo", nil)
	}

	idx := slices.IndexFunc(e.files, func(f *types.ProjectFile) bool { return f.Key() == mod.Path })
	if idx < 0 {
		remaining := e.log.Len()
		e.mu.Unlock()
		e.logger.Warn("undo target no longer exists", "path", mod.Path, "modification_id", mod.ID)
		return types.Failed("cannot undo: file no longer exists: "+mod.Path, map[string]any{
			"modification_id": mod.ID,
			"remaining":       remaining,
		})
	}

	var change types.FileChange
	result := UndoResult{ModificationID: mod.ID, Op: mod.Op, Path: mod.Path}
	switch mod.Op {
	case types.ModificationCreate:
		e.files = slices.Delete(e.files, idx, idx+1)
		change = types.FileChange{Op: types.FileChangeRemoved, Path: mod.Path}
		result.Restored = "removed"
	default:
		e.files[idx].Content = mod.OldContent
		change = types.FileChange{Op: types.FileChangeModified, Path: mod.Path, Content: mod.OldContent}
		result.Restored = "content"
	}
	result.Remaining = e.log.Len()
	e.mu.Unlock()

	e.notify(ctx, change)
	e.logger.Info("modification undone", "path", mod.Path, "op", mod.Op, "modification_id", mod.ID)
	return types.Succeeded(result)
}
