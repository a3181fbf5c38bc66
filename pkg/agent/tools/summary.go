package tools

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"golang.org/x/mod/modfile"
)

// Framework candidates in priority order; the first declared one wins.
var (
	nodeFrameworks = []struct{ dep, name string }{
		{"next", "Next.js"},
		{"nuxt", "Nuxt"},
		{"@angular/core", "Angular"},
		{"@sveltejs/kit", "SvelteKit"},
		{"svelte", "Svelte"},
		{"vue", "Vue"},
		{"react", "React"},
		{"@nestjs/core", "NestJS"},
		{"express", "Express"},
		{"fastify", "Fastify"},
		{"electron", "Electron"},
	}
	goFrameworks = []struct{ dep, name string }{
		{"github.com/gin-gonic/gin", "Gin"},
		{"github.com/labstack/echo/v4", "Echo"},
		{"github.com/gofiber/fiber/v2", "Fiber"},
		{"github.com/go-chi/chi/v5", "Chi"},
		{"github.com/gorilla/mux", "Gorilla"},
		{"github.com/spf13/cobra", "Cobra"},
		{"google.golang.org/grpc", "gRPC"},
	}
)

var importantFiles = map[string]bool{
	"package.json":       true,
	"go.mod":             true,
	"tsconfig.json":      true,
	"README.md":          true,
	"Dockerfile":         true,
	"docker-compose.yml": true,
	"Makefile":           true,
	".env.example":       true,
	"vite.config.ts":     true,
	"next.config.js":     true,
	"webpack.config.js":  true,
}

type Manifest struct {
	Kind            string   `json:"kind"` // package.json or go.mod
	Name            string   `json:"name,omitempty"`
	Version         string   `json:"version,omitempty"`
	Dependencies    []string `json:"dependencies"`
	DevDependencies []string `json:"dev_dependencies,omitempty"`
	Scripts         []string `json:"scripts,omitempty"`
}

type ProjectSummary struct {
	RootPath       string         `json:"root_path,omitempty"`
	TotalFiles     int            `json:"total_files"`
	Manifest       *Manifest      `json:"manifest,omitempty"`
	Framework      string         `json:"framework,omitempty"`
	Extensions     map[string]int `json:"extensions"`
	TopLevel       map[string]int `json:"top_level"`
	ImportantFiles []string       `json:"important_files"`
	GraphSummary   string         `json:"graph_summary,omitempty"`
}

func (e *Engine) handleGetProjectSummary(ctx context.Context, _ map[string]any) (any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	summary := ProjectSummary{
		RootPath:       e.rootPath,
		TotalFiles:     len(e.files),
		Extensions:     make(map[string]int),
		TopLevel:       make(map[string]int),
		ImportantFiles: make([]string, 0),
		GraphSummary:   e.summary,
	}

	for _, f := range e.files {
		rel := e.relative(f.Key())
		base := path.Base(rel)

		ext := strings.TrimPrefix(path.Ext(base), ".")
		if ext == "" {
			ext = "(none)"
		}
		summary.Extensions[ext]++

		top := "."
		if i := strings.Index(rel, "/"); i > 0 {
			top = rel[:i]
		}
		summary.TopLevel[top]++

		if importantFiles[base] {
			summary.ImportantFiles = append(summary.ImportantFiles, rel)
		}

		if summary.Manifest != nil {
			continue
		}
		switch base {
		case "package.json":
			summary.Manifest, summary.Framework = e.parsePackageJSON(f.Content)
		case "go.mod":
			summary.Manifest, summary.Framework = e.parseGoMod(rel, f.Content)
		}
	}
	return summary, nil
}

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

func (e *Engine) parsePackageJSON(content string) (*Manifest, string) {
	var pkg packageJSON
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		e.logger.Debug("package.json not parseable", "error", err)
		return nil, ""
	}

	m := &Manifest{
		Kind:            "package.json",
		Name:            pkg.Name,
		Version:         pkg.Version,
		Dependencies:    sortedKeys(pkg.Dependencies),
		DevDependencies: sortedKeys(pkg.DevDependencies),
		Scripts:         sortedKeys(pkg.Scripts),
	}
	for _, fw := range nodeFrameworks {
		_, dep := pkg.Dependencies[fw.dep]
		_, dev := pkg.DevDependencies[fw.dep]
		if dep || dev {
			return m, fw.name
		}
	}
	return m, ""
}

func (e *Engine) parseGoMod(name, content string) (*Manifest, string) {
	f, err := modfile.ParseLax(name, []byte(content), nil)
	if err != nil {
		e.logger.Debug("go.mod not parseable", "error", err)
		return nil, ""
	}

	m := &Manifest{Kind: "go.mod", Dependencies: make([]string, 0, len(f.Require))}
	if f.Module != nil {
		m.Name = f.Module.Mod.Path
	}
	if f.Go != nil {
		m.Version = f.Go.Version
	}
	required := make(map[string]bool, len(f.Require))
	for _, r := range f.Require {
		m.Dependencies = append(m.Dependencies, r.Mod.Path)
		required[r.Mod.Path] = true
	}
	for _, fw := range goFrameworks {
		if required[fw.dep] {
			return m, fw.name
		}
	}
	return m, "Go"
}
