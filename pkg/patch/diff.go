package patch

import (
	"errors"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	ErrNoChanges = errors.New("no changes detected")
	ErrBinary    = errors.New("binary content is not supported")
)

// Diff summarises the difference between two versions of a file.
type Diff struct {
	Text         string `json:"text"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// GenerateDiff computes a line-level patch between old and new content.
func GenerateDiff(oldContent, newContent string) (Diff, error) {
	if isBinary(oldContent) || isBinary(newContent) {
		return Diff{}, ErrBinary
	}

	dmp := diffmatchpatch.New()

	// Diff by line so the stats count lines, not characters
	a, b, lines := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var result Diff
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			result.LinesAdded += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			result.LinesRemoved += countLines(d.Text)
		}
	}
	if result.LinesAdded == 0 && result.LinesRemoved == 0 {
		return Diff{}, ErrNoChanges
	}

	patches := dmp.PatchMake(oldContent, diffs)
	result.Text = dmp.PatchToText(patches)
	return result, nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// isBinary checks if content contains binary data
// Simple heuristic: check for null bytes in first 8KB
func isBinary(content string) bool {
	checkLen := min(len(content), 8192)
	for i := 0; i < checkLen; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
