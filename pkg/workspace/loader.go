// Package workspace loads the initial project file set from disk.
package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/config"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

var ErrNotDirectory = errors.New("workspace root is not a directory")

// Loader walks a directory tree and turns matching text files into
// project files. Include and Exclude are doublestar patterns matched
// against slash-separated paths relative to the root.
type Loader struct {
	Include      []string
	Exclude      []string
	MaxFileBytes int64
	log          *slog.Logger
}

func NewLoader(cfg config.WorkspaceConfig, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid workspace pattern %q", p)
		}
	}
	return &Loader{
		Include:      cfg.Include,
		Exclude:      cfg.Exclude,
		MaxFileBytes: cfg.MaxFileBytes,
		log:          logger.With("component", "workspace"),
	}, nil
}

// Load reads root from the local filesystem and returns its files plus the
// absolute root path.
func (l *Loader) Load(root string) ([]types.ProjectFile, string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, "", fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, "", fmt.Errorf("stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, "", fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	files, err := l.LoadFS(os.DirFS(abs))
	if err != nil {
		return nil, "", err
	}
	l.log.Info("workspace loaded", "root", abs, "files", len(files))
	return files, filepath.ToSlash(abs), nil
}

// LoadFS walks fsys from its root.
func (l *Loader) LoadFS(fsys fs.FS) ([]types.ProjectFile, error) {
	files := make([]types.ProjectFile, 0)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			l.log.Warn("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == "." {
			return nil
		}
		if l.excluded(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !l.included(p) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if l.MaxFileBytes > 0 && info.Size() > l.MaxFileBytes {
			l.log.Debug("skipping large file", "path", p, "bytes", info.Size())
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			l.log.Warn("skipping unreadable file", "path", p, "error", err)
			return nil
		}
		if bytes.IndexByte(data, 0) >= 0 {
			return nil
		}

		files = append(files, types.ProjectFile{
			ID:      types.GenerateFileID(),
			Name:    path.Base(p),
			Path:    p,
			Content: string(data),
			Type:    types.FileTypeFor(p),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	return files, nil
}

func (l *Loader) excluded(p string) bool {
	for _, pattern := range l.Exclude {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

func (l *Loader) included(p string) bool {
	if len(l.Include) == 0 {
		return true
	}
	for _, pattern := range l.Include {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
