package tools

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/tool"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

const (
	searchFilename = "filename"
	searchContent  = "content"
	searchFunction = "function"
	searchImport   = "import"

	maxSearchFiles        = 20
	maxSearchLinesPerFile = 5
	maxReferences         = 30
	maxReferenceContext   = 120
	defaultStructureDepth = 3
)

type ReadFileArgs struct {
	Path string `json:"path"`
}

type FileContent struct {
	Path    string `json:"path"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Lines   int    `json:"lines"`
}

func (e *Engine) handleReadFile(ctx context.Context, raw map[string]any) (any, error) {
	var args ReadFileArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	f := e.find(args.Path)
	if f == nil {
		return nil, tool.Fail(e.candidates(), "file not found: %s", args.Path)
	}
	return FileContent{
		Path:    f.Key(),
		Type:    f.Type,
		Content: f.Content,
		Lines:   strings.Count(f.Content, "\n") + 1,
	}, nil
}

type SearchFilesArgs struct {
	Query string `json:"query"`
	Type  string `json:"type"`
}

type LineMatch struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

type SearchHit struct {
	File    string      `json:"file"`
	Match   string      `json:"match"` // filename or content
	Matches []LineMatch `json:"matches,omitempty"`
}

type SearchResult struct {
	Query     string      `json:"query"`
	Results   []SearchHit `json:"results"`
	Truncated bool        `json:"truncated"`
}

func (e *Engine) handleSearchFiles(ctx context.Context, raw map[string]any) (any, error) {
	var args SearchFilesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Query == "" {
		return nil, tool.Fail(nil, "query is required")
	}

	byName := args.Type == "" || args.Type == searchFilename
	byContent := args.Type != searchFilename
	query := strings.ToLower(args.Query)

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := SearchResult{Query: args.Query, Results: make([]SearchHit, 0)}
	for _, f := range e.files {
		hit, ok := searchFile(f, query, byName, byContent)
		if !ok {
			continue
		}
		if len(result.Results) == maxSearchFiles {
			result.Truncated = true
			break
		}
		result.Results = append(result.Results, hit)
	}
	return result, nil
}

// searchFile reports the first way f matches: by name, else by up to
// maxSearchLinesPerFile content lines.
func searchFile(f *types.ProjectFile, query string, byName, byContent bool) (SearchHit, bool) {
	if byName && (strings.Contains(strings.ToLower(f.Key()), query) || strings.Contains(strings.ToLower(f.Name), query)) {
		return SearchHit{File: f.Key(), Match: searchFilename}, true
	}
	if !byContent || f.Content == "" {
		return SearchHit{}, false
	}

	var matches []LineMatch
	for i, line := range strings.Split(f.Content, "\n") {
		if strings.Contains(strings.ToLower(line), query) {
			matches = append(matches, LineMatch{Line: i + 1, Text: strings.TrimSpace(line)})
			if len(matches) == maxSearchLinesPerFile {
				break
			}
		}
	}
	if len(matches) == 0 {
		return SearchHit{}, false
	}
	return SearchHit{File: f.Key(), Match: searchContent, Matches: matches}, true
}

type GetFileStructureArgs struct {
	BasePath string `json:"base_path"`
	Depth    int    `json:"depth"`
}

type DirectoryBucket struct {
	Path  string   `json:"path"`
	Files []string `json:"files"`
}

type FileStructure struct {
	BasePath    string            `json:"base_path,omitempty"`
	Depth       int               `json:"depth"`
	Directories []DirectoryBucket `json:"directories"`
	TotalFiles  int               `json:"total_files"`
}

func (e *Engine) handleGetFileStructure(ctx context.Context, raw map[string]any) (any, error) {
	var args GetFileStructureArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Depth <= 0 {
		args.Depth = defaultStructureDepth
	}
	base := strings.Trim(e.relativeBase(args.BasePath), "/")

	e.mu.RLock()
	defer e.mu.RUnlock()

	buckets := make(map[string][]string)
	total := 0
	for _, f := range e.files {
		rel := e.relative(f.Key())
		if base != "" && base != "." && rel != base && !strings.HasPrefix(rel, base+"/") {
			continue
		}
		total++

		var segments []string
		if dir := path.Dir(rel); dir != "." {
			segments = strings.Split(dir, "/")
		}
		if len(segments) > args.Depth {
			segments = segments[:args.Depth]
		}
		bucket := "."
		if len(segments) > 0 {
			bucket = strings.Join(segments, "/")
		}
		name := rel
		if bucket != "." {
			name = strings.TrimPrefix(rel, bucket+"/")
		}
		buckets[bucket] = append(buckets[bucket], name)
	}

	result := FileStructure{BasePath: args.BasePath, Depth: args.Depth, TotalFiles: total, Directories: make([]DirectoryBucket, 0, len(buckets))}
	for _, dir := range sortedKeys(buckets) {
		files := buckets[dir]
		sort.Strings(files)
		result.Directories = append(result.Directories, DirectoryBucket{Path: dir, Files: files})
	}
	return result, nil
}

func (e *Engine) relativeBase(base string) string {
	if base == "" {
		return ""
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.relative(base)
}

type FindReferencesArgs struct {
	Symbol string `json:"symbol"`
}

type Reference struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Context string `json:"context"`
}

type ReferenceResult struct {
	Symbol     string      `json:"symbol"`
	References []Reference `json:"references"`
	Truncated  bool        `json:"truncated"`
}

func (e *Engine) handleFindReferences(ctx context.Context, raw map[string]any) (any, error) {
	var args FindReferencesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Symbol) == "" {
		return nil, tool.Fail(nil, "symbol is required")
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(args.Symbol) + `\b`)
	if err != nil {
		return nil, tool.Fail(nil, "invalid symbol %q: %v", args.Symbol, err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := ReferenceResult{Symbol: args.Symbol, References: make([]Reference, 0)}
scan:
	for _, f := range e.files {
		for i, line := range strings.Split(f.Content, "\n") {
			if !re.MatchString(line) {
				continue
			}
			if len(result.References) == maxReferences {
				result.Truncated = true
				break scan
			}
			snippet, _ := truncate(strings.TrimSpace(line), maxReferenceContext)
			result.References = append(result.References, Reference{File: f.Key(), Line: i + 1, Context: snippet})
		}
	}
	return result, nil
}
