package types

import (
	"path"
	"strings"
)

var fileTypes = map[string]string{
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".json": "json",
	".go":   "go",
	".py":   "python",
	".rs":   "rust",
	".java": "java",
	".css":  "css",
	".scss": "scss",
	".html": "html",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".sh":   "shell",
	".sql":  "sql",
	".vue":  "vue",
}

// FileTypeFor infers a file type from the extension of p, defaulting to
// "text".
func FileTypeFor(p string) string {
	if t, ok := fileTypes[strings.ToLower(path.Ext(p))]; ok {
		return t
	}
	return "text"
}
