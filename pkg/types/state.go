package types

import (
	"encoding/json"
	"time"
)

// ProjectFile is one source file known to the tool engine.
type ProjectFile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
	Type    string `json:"type"`
}

// Key returns the human-addressable key of the file: its path, or its name
// when no path is set.
func (f *ProjectFile) Key() string {
	if f.Path != "" {
		return f.Path
	}
	return f.Name
}

type ModificationOp string

const (
	ModificationEdit   ModificationOp = "edit"
	ModificationCreate ModificationOp = "create"
)

// FileModification is an append-only log entry recorded for every successful
// mutation. Restoring OldContent yields the prior state of Path.
type FileModification struct {
	ID         string         `json:"id"`
	Op         ModificationOp `json:"op"`
	Path       string         `json:"path"`
	OldContent string         `json:"old_content"`
	NewContent string         `json:"new_content"`
	Diff       string         `json:"diff,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

type FileChangeOp string

const (
	FileChangeModified FileChangeOp = "modified"
	FileChangeCreated  FileChangeOp = "created"
	FileChangeRemoved  FileChangeOp = "removed"
)

// FileChange is what listeners are told after a mutation.
type FileChange struct {
	Op      FileChangeOp `json:"op"`
	Path    string       `json:"path"`
	Content string       `json:"content"`
}

// ApplicationSnapshot is the full state pushed by a running visualizer
// instance. Graph is kept opaque.
type ApplicationSnapshot struct {
	Graph       json.RawMessage `json:"graph,omitempty"`
	Files       []ProjectFile   `json:"files"`
	SelectedIDs []string        `json:"selectedIds"`
	ActiveView  string          `json:"activeView"`
	RootPath    string          `json:"rootPath"`
	ExpandedIDs []string        `json:"expandedIds"`
}
