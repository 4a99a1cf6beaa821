package architecture

import (
	"path"
	"regexp"
	"strings"
)

// Lightweight per-language import extraction. These are line-level
// heuristics on purpose and only need to
// be precise enough to resolve same-project imports; anything that does
// not resolve to a project file is treated as an external package and
// ignored.
var (
	jsImportRe  = regexp.MustCompile(`(?m)^\s*import\s+(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequireRe = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	jsExportRe  = regexp.MustCompile(`(?m)^\s*export\s+(?:\*|\{[^}]*\})\s+from\s+['"]([^'"]+)['"]`)
	pyImportRe  = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`)
	pyFromRe    = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import`)
	goImportRe  = regexp.MustCompile(`(?m)^\s*(?:import\s+)?(?:\w+\s+)?"([^"]+)"`)
)

// extractImports returns the raw import strings found in content for the
// given filename's language.
func extractImports(relPath string, content []byte) []string {
	src := string(content)
	var raw []string
	switch strings.ToLower(path.Ext(relPath)) {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs":
		for _, re := range []*regexp.Regexp{jsImportRe, jsRequireRe, jsExportRe} {
			for _, m := range re.FindAllStringSubmatch(src, -1) {
				raw = append(raw, m[1])
			}
		}
	case ".py":
		for _, re := range []*regexp.Regexp{pyImportRe, pyFromRe} {
			for _, m := range re.FindAllStringSubmatch(src, -1) {
				raw = append(raw, m[1])
			}
		}
	case ".go":
		raw = append(raw, extractGoImports(src)...)
	}
	return raw
}

// extractGoImports only looks inside import blocks and single import
// lines, so string literals elsewhere in the file never count.
func extractGoImports(src string) []string {
	var out []string
	lines := strings.Split(src, "\n")
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && trimmed == ")":
			inBlock = false
		case inBlock || strings.HasPrefix(trimmed, "import "):
			if m := goImportRe.FindStringSubmatch(trimmed); m != nil {
				out = append(out, m[1])
			}
		}
	}
	return out
}

// resolveImport maps a raw import to a project-relative path when the
// import is relative ("./x", "../y") or root-anchored ("src/a/b", "@/a").
// Bare package names return ("", false) and are ignored by validation.
func resolveImport(fromRel, raw string, known map[string]string) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../"):
		resolved := path.Clean(path.Join(path.Dir(fromRel), raw))
		return lookupKnown(resolved, known)
	case strings.HasPrefix(raw, "@/"):
		return lookupKnown(strings.TrimPrefix(raw, "@/"), known)
	case strings.HasPrefix(raw, "src/") || strings.HasPrefix(raw, "lib/") || strings.HasPrefix(raw, "app/"):
		return lookupKnown(raw, known)
	case strings.Contains(raw, ".") && !strings.Contains(raw, "/"):
		// Python dotted module path, e.g. app.services.auth.
		return lookupKnown(strings.ReplaceAll(raw, ".", "/"), known)
	default:
		return "", false
	}
}

// lookupKnown matches a resolved stem against the workspace file set,
// trying the common source extensions and index-file conventions.
func lookupKnown(stem string, known map[string]string) (string, bool) {
	stem = strings.TrimPrefix(path.Clean(stem), "/")
	if full, ok := known[stem]; ok {
		return full, true
	}
	for _, suffix := range []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".py", ".go",
		"/index.ts", "/index.tsx", "/index.js", "/__init__.py"} {
		if full, ok := known[stem+suffix]; ok {
			return full, true
		}
	}
	return "", false
}
