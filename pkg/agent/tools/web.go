package tools

import (
	"context"
	"net/url"
	"strings"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/tool"
)

type WebSearchArgs struct {
	Query string `json:"query"`
}

type WebLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type WebSearchResult struct {
	Query   string    `json:"query"`
	Results []WebLink `json:"results"`
	Note    string    `json:"note"`
}

// handleWebSearch is a placeholder: it suggests search and reference links
// without contacting any search engine.
func (e *Engine) handleWebSearch(ctx context.Context, raw map[string]any) (any, error) {
	var args WebSearchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, tool.Fail(nil, "query is required")
	}

	q := url.QueryEscape(args.Query)
	return WebSearchResult{
		Query: args.Query,
		Results: []WebLink{
			{Title: "MDN Web Docs", URL: "https://developer.mozilla.org/en-US/search?q=" + q},
			{Title: "Stack Overflow", URL: "https://stackoverflow.com/search?q=" + q},
			{Title: "GitHub", URL: "https://github.com/search?type=code&q=" + q},
			{Title: "Go packages", URL: "https://pkg.go.dev/search?q=" + q},
		},
		Note: "live web search is not configured; these are suggested starting points",
	}, nil
}
