// Package architecture implements the ArchitectureEngine:
// layer assignment by glob, allowed/forbidden import checks, dependency
// cycle detection, and placement suggestion for new symbols. Import
// extraction here is deliberately syntactic (regexp over source lines),
// not a second parser; the full tree-sitter pipeline stays in
// internal/parser.
package architecture

import (
	"path"
	"strings"
)

// Layer is one named architectural layer: the globs that assign files to
// it and the import rules it must obey.
type Layer struct {
	Name         string   `yaml:"name" mapstructure:"name"`
	Globs        []string `yaml:"globs" mapstructure:"globs"`
	CanImport    []string `yaml:"can_import" mapstructure:"can_import"`
	CannotImport []string `yaml:"cannot_import" mapstructure:"cannot_import"`
}

// Ruleset is the configured layer model for a workspace.
type Ruleset struct {
	Layers      []Layer  `yaml:"layers" mapstructure:"layers"`
	SourceGlobs []string `yaml:"source_globs" mapstructure:"source_globs"`
}

// DefaultSourceGlobs is used when a ruleset does not configure its own.
var DefaultSourceGlobs = []string{"**/*.go", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/*.py"}

// layerFor assigns a project-relative path to its layer, or "" if no glob
// matches (the "unassigned layer" warning case).
func (r Ruleset) layerFor(relPath string) string {
	rel := path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	for _, layer := range r.Layers {
		for _, glob := range layer.Globs {
			if globMatch(glob, rel) {
				return layer.Name
			}
		}
	}
	return ""
}

func (r Ruleset) layer(name string) (Layer, bool) {
	for _, l := range r.Layers {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

// isLayer reports whether name is a configured layer; dependency names that
// are not layers are external packages and never constrain anything.
func (r Ruleset) isLayer(name string) bool {
	_, ok := r.layer(name)
	return ok
}

// allowed applies the two-clause rule: a from->to import is a
// violation if to is neither in can_import, "*", nor from itself, or if to
// is explicitly in cannot_import. cannot_import wins over can_import.
func (r Ruleset) allowed(fromLayer, toLayer string) bool {
	from, ok := r.layer(fromLayer)
	if !ok {
		return true
	}
	for _, banned := range from.CannotImport {
		if banned == toLayer {
			return false
		}
	}
	if fromLayer == toLayer {
		return true
	}
	for _, permitted := range from.CanImport {
		if permitted == "*" || permitted == toLayer {
			return true
		}
	}
	return false
}

// globMatch supports the ** segment wildcard on top of path.Match's
// single-segment semantics, which is all the layer globs in the wild use.
func globMatch(pattern, rel string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := path.Match(pattern, rel)
		return err == nil && ok
	}

	parts := strings.SplitN(pattern, "**", 2)
	prefix, suffix := parts[0], parts[1]
	prefix = strings.TrimSuffix(prefix, "/")
	suffix = strings.TrimPrefix(suffix, "/")

	if prefix != "" {
		if !strings.HasPrefix(rel, prefix+"/") && rel != prefix {
			return false
		}
		rel = strings.TrimPrefix(strings.TrimPrefix(rel, prefix), "/")
	}
	if suffix == "" {
		return true
	}
	if strings.Contains(suffix, "**") {
		// Nested ** — match the remaining suffix against every tail.
		segs := strings.Split(rel, "/")
		for i := range segs {
			if globMatch(suffix, strings.Join(segs[i:], "/")) {
				return true
			}
		}
		return false
	}
	// Suffix must match the tail of the path, any number of directories in.
	segs := strings.Split(rel, "/")
	for i := range segs {
		tail := strings.Join(segs[i:], "/")
		if ok, err := path.Match(suffix, tail); err == nil && ok {
			return true
		}
	}
	return false
}
