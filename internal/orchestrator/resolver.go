package orchestrator

import (
	"path/filepath"
	"strings"
)

// pathResolver resolves relative import specifiers ("./util", "../lib/x")
// against the set of files discovered in one build pass. Absolute/package
// imports (no leading dot) are left unresolved — those point outside the
// project or need language-specific module resolution this engine does
// not attempt.
type pathResolver struct {
	known map[string]string // path without extension -> relPath with extension
}

func newPathResolver(relPaths []string) *pathResolver {
	known := make(map[string]string, len(relPaths))
	for _, p := range relPaths {
		known[strings.TrimSuffix(p, filepath.Ext(p))] = p
	}
	return &pathResolver{known: known}
}

// Resolve implements build.ImportResolver.
func (r *pathResolver) Resolve(fromPath, raw string) (string, bool) {
	if !strings.HasPrefix(raw, ".") {
		return "", false
	}
	joined := filepath.Join(filepath.Dir(fromPath), raw)
	joined = filepath.ToSlash(joined)

	if p, ok := r.known[joined]; ok {
		return p, true
	}
	if p, ok := r.known[joined+"/index"]; ok {
		return p, true
	}
	return "", false
}
