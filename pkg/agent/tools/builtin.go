package tools

import (
	"github.com/gm-agent-org/neuralmap-bridge/pkg/tool"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// Definitions

var ReadFileTool = types.Tool{
	Name:        "read_file",
	Description: "Read the full content of a project file. Matches the exact path first, then a path suffix, then a case-insensitive substring.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Path or file name to read",
			},
		},
		"required": []string{"path"},
	},
	Metadata: map[string]string{"category": tool.CategoryRead},
}

var SearchFilesTool = types.Tool{
	Name:        "search_files",
	Description: "Search file names and file contents for a case-insensitive substring. Returns at most 20 files and 5 matching lines per file.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Text to look for",
			},
			"type": map[string]any{
				"type":        "string",
				"enum":        []string{searchFilename, searchContent, searchFunction, searchImport},
				"description": "Restrict the search: filename only, or content (function and import scan content too). Omit to search both.",
			},
		},
		"required": []string{"query"},
	},
	Metadata: map[string]string{"category": tool.CategoryRead},
}

var GetFileStructureTool = types.Tool{
	Name:        "get_file_structure",
	Description: "List project files grouped by directory, truncated to a directory depth.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"base_path": map[string]any{
				"type":        "string",
				"description": "Only include files under this directory",
			},
			"depth": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "Maximum directory depth of the buckets (default: 3)",
				"default":     defaultStructureDepth,
			},
		},
	},
	Metadata: map[string]string{"category": tool.CategoryRead},
}

var AnalyzeDependenciesTool = types.Tool{
	Name:        "analyze_dependencies",
	Description: "List the imports and exports of a file and the files that import it. Lexical scan, not a parser.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Path of the file to analyze",
			},
		},
		"required": []string{"path"},
	},
	Metadata: map[string]string{"category": tool.CategoryAnalysis},
}

var FindReferencesTool = types.Tool{
	Name:        "find_references",
	Description: "Find whole-word occurrences of a symbol across the project. Returns at most 30 hits.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"symbol": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Identifier to look for",
			},
		},
		"required": []string{"symbol"},
	},
	Metadata: map[string]string{"category": tool.CategoryAnalysis},
}

var GetProjectSummaryTool = types.Tool{
	Name:        "get_project_summary",
	Description: "Summarise the project: manifest, likely framework, file types, top-level folders and important files.",
	Parameters: types.JSONSchema{
		"type":       "object",
		"properties": map[string]any{},
	},
	Metadata: map[string]string{"category": tool.CategoryAnalysis},
}

var EditFileTool = types.Tool{
	Name:        "edit_file",
	Description: "Replace the first occurrence of old_content with new_content in an existing file. old_content must match the current content exactly.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The file path to edit",
			},
			"old_content": map[string]any{
				"type":        "string",
				"description": "The exact old content to replace (must match exactly)",
			},
			"new_content": map[string]any{
				"type":        "string",
				"description": "The new content to replace with",
			},
		},
		"required": []string{"path", "old_content", "new_content"},
	},
	Metadata: map[string]string{"category": tool.CategoryFilesystem},
}

var CreateFileTool = types.Tool{
	Name:        "create_file",
	Description: "Create a new file. Fails if the file already exists; use edit_file for existing files.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The path of the file to create",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	},
	Metadata: map[string]string{"category": tool.CategoryFilesystem},
}

var RunTerminalCmdTool = types.Tool{
	Name:        "run_terminal_cmd",
	Description: "Run a shell command in the project. Destructive commands are always rejected. Output is simulated when no execution backend is configured.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The command line to execute",
			},
			"cwd": map[string]any{
				"type":        "string",
				"description": "Working directory (default: project root)",
			},
		},
		"required": []string{"command"},
	},
	Metadata: map[string]string{"category": tool.CategoryShell},
}

var WebSearchTool = types.Tool{
	Name:        "web_search",
	Description: "Suggest reference links for a query. Not connected to a live search engine.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "What to search for",
			},
		},
		"required": []string{"query"},
	},
	Metadata: map[string]string{"category": tool.CategoryInternet},
}

// Catalog is the full tool vocabulary in a stable order.
var Catalog = []types.Tool{
	ReadFileTool,
	SearchFilesTool,
	GetFileStructureTool,
	AnalyzeDependenciesTool,
	FindReferencesTool,
	GetProjectSummaryTool,
	EditFileTool,
	CreateFileTool,
	RunTerminalCmdTool,
	WebSearchTool,
}
