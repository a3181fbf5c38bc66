package tools

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/tool"
)

// Analyzer extracts import targets and exported identifiers from source text.
type Analyzer interface {
	Imports(content string) []string
	Exports(content string) []string
}

var (
	importPattern = regexp.MustCompile(`(?:import|from|require\()\s*['"]([^'"]+)['"]`)
	exportPattern = regexp.MustCompile(`export\s+(?:default\s+)?(?:async\s+)?(?:function|class|const|let|var|interface|type)\s+(\w+)`)
)

// LexicalAnalyzer is a line-oblivious regular expression scan. Multi-line
// and re-exported forms are missed.
type LexicalAnalyzer struct{}

func (LexicalAnalyzer) Imports(content string) []string {
	return uniqueMatches(importPattern, content)
}

func (LexicalAnalyzer) Exports(content string) []string {
	return uniqueMatches(exportPattern, content)
}

func uniqueMatches(re *regexp.Regexp, content string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0)
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			result = append(result, m[1])
		}
	}
	return result
}

type AnalyzeDependenciesArgs struct {
	Path string `json:"path"`
}

type DependencyReport struct {
	Path       string   `json:"path"`
	Imports    []string `json:"imports"`
	Exports    []string `json:"exports"`
	ImportedBy []string `json:"imported_by"`
}

func (e *Engine) handleAnalyzeDependencies(ctx context.Context, raw map[string]any) (any, error) {
	var args AnalyzeDependenciesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	target := e.find(args.Path)
	if target == nil {
		return nil, tool.Fail(e.candidates(), "file not found: %s", args.Path)
	}

	report := DependencyReport{
		Path:       target.Key(),
		Imports:    e.analyzer.Imports(target.Content),
		Exports:    e.analyzer.Exports(target.Content),
		ImportedBy: make([]string, 0),
	}

	names := importNames(target.Key())
	for _, f := range e.files {
		if f == target {
			continue
		}
		for _, spec := range e.analyzer.Imports(f.Content) {
			if names[importBase(spec)] {
				report.ImportedBy = append(report.ImportedBy, f.Key())
				break
			}
		}
	}
	return report, nil
}

// importNames returns the names an import specifier may use to refer to
// key: its extension-less base name, and the parent directory for index
// files.
func importNames(key string) map[string]bool {
	base := stripExt(path.Base(key))
	names := map[string]bool{base: true}
	if base == "index" {
		if dir := path.Base(path.Dir(key)); dir != "." && dir != "/" {
			names[dir] = true
		}
	}
	return names
}

func importBase(spec string) string {
	return stripExt(path.Base(strings.TrimSuffix(spec, "/")))
}

func stripExt(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
