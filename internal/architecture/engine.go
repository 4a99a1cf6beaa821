package architecture

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codeintel/server/internal/xerrors"
)

// maxReportedCycles bounds cycle output.
const maxReportedCycles = 10

// Violation is one disallowed import found during validation.
type Violation struct {
	FromFile  string `json:"from_file"`
	FromLayer string `json:"from_layer"`
	ToFile    string `json:"to_file"`
	ToLayer   string `json:"to_layer"`
	Import    string `json:"import"`
	Reason    string `json:"reason"`
}

// Stats summarizes one validation run.
type Stats struct {
	FilesScanned    int      `json:"files_scanned"`
	ImportsResolved int      `json:"imports_resolved"`
	Unassigned      []string `json:"unassigned,omitempty"`
}

// ValidationResult is the arch_validate tool's payload.
type ValidationResult struct {
	Violations []Violation `json:"violations"`
	Cycles     [][]string  `json:"cycles,omitempty"`
	Stats      Stats       `json:"stats"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// Suggestion is the placement recommendation for a new symbol.
type Suggestion struct {
	Layer     string `json:"layer"`
	Path      string `json:"path"`
	Reasoning string `json:"reasoning"`
}

// Engine is the ArchitectureEngine for one workspace's ruleset.
type Engine struct {
	rules  Ruleset
	logger *slog.Logger
}

// New wires an Engine over rules. A ruleset with no layers validates
// trivially (no violations, everything unassigned).
func New(rules Ruleset, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if len(rules.SourceGlobs) == 0 {
		rules.SourceGlobs = DefaultSourceGlobs
	}
	return &Engine{rules: rules, logger: logger.With("component", "architecture")}
}

// Validate checks every given file's imports against the layer rules and
// reports violations, dependency cycles, and per-run stats. files are workspace-relative; when empty, the workspace is
// scanned with the configured source globs.
func (e *Engine) Validate(workspaceRoot string, files []string) (ValidationResult, error) {
	var err error
	if len(files) == 0 {
		files, err = e.scan(workspaceRoot)
		if err != nil {
			return ValidationResult{}, err
		}
	}
	sort.Strings(files)

	known := make(map[string]string, len(files))
	for _, f := range files {
		rel := filepath.ToSlash(f)
		known[rel] = rel
	}

	result := ValidationResult{}
	fileImports := make(map[string][]string)
	seenUnassigned := make(map[string]bool)

	for _, f := range files {
		rel := filepath.ToSlash(f)
		content, readErr := os.ReadFile(filepath.Join(workspaceRoot, f))
		if readErr != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unreadable: %s", rel))
			continue
		}
		result.Stats.FilesScanned++

		fromLayer := e.rules.layerFor(rel)
		if fromLayer == "" && len(e.rules.Layers) > 0 && !seenUnassigned[rel] {
			seenUnassigned[rel] = true
			result.Stats.Unassigned = append(result.Stats.Unassigned, rel)
		}

		for _, raw := range extractImports(rel, content) {
			target, ok := resolveImport(rel, raw, known)
			if !ok {
				continue
			}
			result.Stats.ImportsResolved++
			fileImports[rel] = append(fileImports[rel], target)

			toLayer := e.rules.layerFor(target)
			if fromLayer == "" || toLayer == "" {
				continue
			}
			if !e.rules.allowed(fromLayer, toLayer) {
				result.Violations = append(result.Violations, Violation{
					FromFile:  rel,
					FromLayer: fromLayer,
					ToFile:    target,
					ToLayer:   toLayer,
					Import:    raw,
					Reason:    fmt.Sprintf("layer %q may not import layer %q", fromLayer, toLayer),
				})
			}
		}
	}

	result.Cycles = findCycles(fileImports, maxReportedCycles)
	return result, nil
}

// Suggest recommends where a new symbol belongs.
// deps that are not configured layers are external packages and never
// narrow the eligible set, so adding one can never change the answer.
func (e *Engine) Suggest(codeName, codeType string, deps []string) (Suggestion, error) {
	if len(e.rules.Layers) == 0 {
		return Suggestion{}, xerrors.InvalidArgumentsf("no layers configured")
	}

	var layerDeps []string
	for _, d := range deps {
		if e.rules.isLayer(d) {
			layerDeps = append(layerDeps, d)
		}
	}

	var eligible []Layer
	for _, layer := range e.rules.Layers {
		ok := true
		for _, dep := range layerDeps {
			if !e.rules.allowed(layer.Name, dep) {
				ok = false
				break
			}
		}
		if ok {
			eligible = append(eligible, layer)
		}
	}
	if len(eligible) == 0 {
		return Suggestion{}, xerrors.InvalidArgumentsf("no layer may import all of: %s", strings.Join(layerDeps, ", "))
	}

	best := eligible[0]
	bestScore := -1
	for _, layer := range eligible {
		score := affinityScore(codeType, layer.Name)
		if score > bestScore {
			best = layer
			bestScore = score
		}
	}

	reason := fmt.Sprintf("layer %q can import every declared dependency", best.Name)
	if bestScore > 0 {
		reason += fmt.Sprintf(" and matches the usual home for %s code", codeType)
	}
	return Suggestion{
		Layer:     best.Name,
		Path:      suggestedPath(best, codeName, codeType),
		Reasoning: reason,
	}, nil
}

// affinity maps a code_type to the layer-name substrings it usually lives
// in, most preferred first.
var affinity = map[string][]string{
	"service":    {"service", "domain", "core", "business"},
	"repository": {"repository", "data", "storage", "persistence", "infra"},
	"controller": {"controller", "api", "handler", "transport", "web"},
	"model":      {"model", "domain", "entity", "core"},
	"util":       {"util", "shared", "common", "lib"},
	"component":  {"component", "ui", "view", "presentation"},
}

func affinityScore(codeType, layerName string) int {
	prefs := affinity[strings.ToLower(codeType)]
	lower := strings.ToLower(layerName)
	for i, substr := range prefs {
		if strings.Contains(lower, substr) {
			return len(prefs) - i
		}
	}
	return 0
}

// suggestedPath builds a filename inside the layer's first glob directory.
// A name already ending in the type suffix is not suffixed again.
func suggestedPath(layer Layer, codeName, codeType string) string {
	dir := ""
	if len(layer.Globs) > 0 {
		dir = layer.Globs[0]
		if i := strings.Index(dir, "*"); i >= 0 {
			dir = dir[:i]
		}
		dir = strings.TrimSuffix(dir, "/")
	}

	base := codeName
	suffix := capitalize(codeType)
	if suffix != "" && !strings.HasSuffix(strings.ToLower(base), strings.ToLower(suffix)) {
		base += suffix
	}

	name := toSnake(base) + extensionFor(layer)
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// extensionFor guesses the layer's file extension from its globs,
// defaulting to .ts.
func extensionFor(layer Layer) string {
	for _, glob := range layer.Globs {
		if i := strings.LastIndex(glob, "."); i >= 0 && !strings.ContainsAny(glob[i:], "*/{") {
			return glob[i:]
		}
	}
	return ".ts"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// findCycles runs DFS over the file-import adjacency and reports up to max
// unique cycles as the exact file sequence that loops.
func findCycles(adjacency map[string][]string, max int) [][]string {
	var cycles [][]string
	seenCycle := make(map[string]bool)

	state := make(map[string]int) // 0 unvisited, 1 on stack, 2 done
	var stack []string

	var dfs func(node string)
	dfs = func(node string) {
		if len(cycles) >= max {
			return
		}
		state[node] = 1
		stack = append(stack, node)

		for _, next := range adjacency[node] {
			switch state[next] {
			case 0:
				dfs(next)
			case 1:
				// Found a back edge; slice the stack from next to node.
				start := -1
				for i, s := range stack {
					if s == next {
						start = i
						break
					}
				}
				if start < 0 {
					continue
				}
				cycle := append(append([]string(nil), stack[start:]...), next)
				key := canonicalCycleKey(cycle[:len(cycle)-1])
				if !seenCycle[key] && len(cycles) < max {
					seenCycle[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[node] = 2
	}

	nodes := make([]string, 0, len(adjacency))
	for n := range adjacency {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if state[n] == 0 {
			dfs(n)
		}
	}
	return cycles
}

// canonicalCycleKey rotates a cycle to start at its smallest member so the
// same loop discovered from different entry points deduplicates.
func canonicalCycleKey(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	minIdx := 0
	for i, s := range cycle {
		if s < cycle[minIdx] {
			minIdx = i
		}
	}
	rotated := append(append([]string(nil), cycle[minIdx:]...), cycle[:minIdx]...)
	return strings.Join(rotated, "->")
}

// scan walks workspaceRoot collecting files matching the source globs,
// skipping the usual dependency directories.
func (e *Engine) scan(workspaceRoot string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(workspaceRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			switch name {
			case "node_modules", ".git", "vendor", "dist", "build", "__pycache__", ".venv":
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(workspaceRoot, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		for _, glob := range e.rules.SourceGlobs {
			if globMatch(glob, rel) {
				out = append(out, rel)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.FileSystemErrorf("scanning %s: %w", workspaceRoot, err)
	}
	return out, nil
}
