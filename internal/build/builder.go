// Package build turns a parsed source file into idempotent graph
// mutations, all keyed by the composite "<project_id>:<kind>:<local>" id
// format so re-running a build MERGEs instead of duplicating.
package build

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codeintel/server/internal/models"
)

// NodeID builds the "<project_id>:<kind>:<local>" composite id every graph
// node uses. local must already be stable across rebuilds of the same
// entity (a path, or "<path>:<name>:<startLine>").
func NodeID(projectID string, kind models.NodeLabel, local string) string {
	return fmt.Sprintf("%s:%s:%s", projectID, kind, local)
}

// ParseNodeID splits a composite id back into its parts. If the local
// segment ends in a numeric segment (a line number) and has at least three
// colon-delimited parts, the name is inferred from the second-to-last
// segment rather than treated as part of a single opaque local string -
// this mirrors the basename:name:lineNumber convention used for
// FUNCTION/CLASS ids so callers can recover a human-readable name without
// re-parsing the source file.
func ParseNodeID(id string) (projectID string, kind models.NodeLabel, local string, err error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed node id: %s", id)
	}
	return parts[0], models.NodeLabel(parts[1]), parts[2], nil
}

// InferredName extracts the human-readable name from a FUNCTION/CLASS local
// segment of the form "<basename>:<name>:<lineNumber>". If the last segment
// is not numeric, the whole local string is returned unchanged (it is not
// in the extended format).
func InferredName(local string) string {
	segs := strings.Split(local, ":")
	if len(segs) < 2 {
		return local
	}
	last := segs[len(segs)-1]
	if _, err := strconv.Atoi(last); err != nil {
		return local
	}
	return segs[len(segs)-2]
}

// Mutations is the set of node/edge upserts a Builder produces for one
// ParsedFile. GraphOrchestrator applies Nodes before Edges so every edge
// endpoint already exists by the time it is MERGEd.
type Mutations struct {
	Nodes []models.GraphNode
	Edges []models.GraphEdge
}

// Builder converts ParsedFile records into Mutations. It is stateless
// except for the import resolver, which needs to know about every file in
// the project to decide whether an import resolves to a same-project FILE
// node (and therefore earns a DEPENDS_ON edge) or an external package.
type Builder struct {
	resolver ImportResolver
}

// ImportResolver maps an import's raw text (as extracted by the parser) to
// the project-relative path of the file it resolves to, if any. Returning
// ("", false) means the import targets something outside the project
// (stdlib, a third-party package) and only gets an IMPORT node, no
// DEPENDS_ON edge.
type ImportResolver interface {
	Resolve(fromPath, raw string) (resolvedPath string, ok bool)
}

func New(resolver ImportResolver) *Builder {
	return &Builder{resolver: resolver}
}

// Build produces the node/edge mutations for a single parsed file. now is
// stamped onto the FILE node's valid_from property; callers pass it in
// rather than this package calling time.Now() so that builds remain
// deterministic and testable.
func (b *Builder) Build(pf models.ParsedFile, now time.Time) (Mutations, error) {
	if pf.Err != nil {
		return Mutations{}, fmt.Errorf("cannot build from failed parse of %s: %w", pf.Path, pf.Err)
	}

	var m Mutations

	fileID := NodeID(pf.ProjectID, models.LabelFile, pf.Path)
	m.Nodes = append(m.Nodes, models.GraphNode{
		ID:        fileID,
		ProjectID: pf.ProjectID,
		Label:     models.LabelFile,
		Properties: map[string]interface{}{
			"path":         pf.Path,
			"language":     pf.Language,
			"content_hash": pf.ContentHash,
			"valid_from":   now.UTC().Format(time.RFC3339),
		},
	})

	basename := filepath.Base(pf.Path)

	for _, sym := range pf.Symbols {
		local := fmt.Sprintf("%s:%s:%d", basename, sym.Name, sym.StartLine)
		symID := NodeID(pf.ProjectID, sym.Kind, local)

		// Symbols version with their file: a claim frozen against this
		// content_hash goes stale the moment the file's bytes change.
		m.Nodes = append(m.Nodes, models.GraphNode{
			ID:        symID,
			ProjectID: pf.ProjectID,
			Label:     sym.Kind,
			Properties: map[string]interface{}{
				"name":         sym.Name,
				"scope_path":   sym.ScopePath,
				"start_line":   sym.StartLine,
				"end_line":     sym.EndLine,
				"signature":    sym.Signature,
				"scip_id":      scipID(pf.Path, sym),
				"content_hash": pf.ContentHash,
				"valid_from":   now.UTC().Format(time.RFC3339),
			},
		})

		m.Edges = append(m.Edges, models.GraphEdge{
			ProjectID: pf.ProjectID,
			Type:      models.EdgeContains,
			From:      fileID,
			To:        symID,
		})
	}

	for _, imp := range pf.Imports {
		importID := NodeID(pf.ProjectID, models.LabelImport, fmt.Sprintf("%s:%s", basename, imp.Raw))
		m.Nodes = append(m.Nodes, models.GraphNode{
			ID:        importID,
			ProjectID: pf.ProjectID,
			Label:     models.LabelImport,
			Properties: map[string]interface{}{
				"raw":        imp.Raw,
				"start_line": imp.StartLine,
				"end_line":   imp.EndLine,
			},
		})
		m.Edges = append(m.Edges, models.GraphEdge{
			ProjectID: pf.ProjectID,
			Type:      models.EdgeImports,
			From:      fileID,
			To:        importID,
		})

		resolved := imp.ResolvedPath
		ok := resolved != ""
		if !ok && b.resolver != nil {
			resolved, ok = b.resolver.Resolve(pf.Path, imp.Raw)
		}
		if ok && resolved != pf.Path {
			targetID := NodeID(pf.ProjectID, models.LabelFile, resolved)
			m.Edges = append(m.Edges, models.GraphEdge{
				ProjectID: pf.ProjectID,
				Type:      models.EdgeDependsOn,
				From:      fileID,
				To:        targetID,
			})
		}
	}

	return m, nil
}

// scipID builds the stable cross-tool symbol identifier: "path::name" for
// functions, "path#name" for classes, with the scope path folded in for
// methods so overloads in different scopes stay distinct.
func scipID(path string, sym models.Symbol) string {
	name := sym.Name
	if sym.ScopePath != "" {
		name = sym.ScopePath + "." + name
	}
	if sym.Kind == models.LabelClass {
		return fmt.Sprintf("%s#%s", path, name)
	}
	return fmt.Sprintf("%s::%s", path, name)
}
