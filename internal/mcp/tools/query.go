package tools

import (
	"context"
	"sort"
	"strings"

	"github.com/codeintel/server/internal/build"
	"github.com/codeintel/server/internal/graph"
	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/retrieval"
	"github.com/codeintel/server/internal/vector"
	"github.com/codeintel/server/internal/xerrors"
)

// Query answers natural-language questions through the hybrid retriever.
type Query struct {
	Retriever *retrieval.Retriever
	Graph     graph.Backend
}

func (t *Query) Name() string            { return "query" }
func (t *Query) RequiresWorkspace() bool { return true }

func (t *Query) Execute(ctx context.Context, call Call) (interface{}, error) {
	text := stringParam(call.Params, "query")
	if text == "" {
		return nil, xerrors.InvalidArgumentsf("query is required")
	}

	language := stringParam(call.Params, "language")
	if language == "cypher" {
		rows, err := t.Graph.QueryWithParams(ctx, text, map[string]interface{}{
			"pid": call.Project.ProjectID,
		})
		if err != nil {
			return nil, xerrors.DatabaseErrorf("cypher query: %w", err)
		}
		return map[string]interface{}{"rows": rows}, nil
	}

	limit, err := intParam(call.Params, "limit", 10)
	if err != nil {
		return nil, xerrors.InvalidArgumentsf("%v", err)
	}
	mode := retrieval.Mode(stringParam(call.Params, "mode"))
	if mode == "" {
		mode = retrieval.ModeLocal
	}

	result, err := t.Retriever.Query(ctx, retrieval.Query{
		ProjectID: call.Project.ProjectID,
		Text:      text,
		Mode:      mode,
		Limit:     limit,
		Profile:   retrieval.Profile(call.Profile()),
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Embedder is the vector-search capability semantic_search needs;
// *embedding.Engine satisfies it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	FindSimilar(ctx context.Context, projectID string, queryVector []float32, k int) ([]vector.Match, error)
}

// SemanticSearch is the vector-only retrieval path.
type SemanticSearch struct {
	Embedder Embedder
}

func (t *SemanticSearch) Name() string            { return "semantic_search" }
func (t *SemanticSearch) RequiresWorkspace() bool { return true }

func (t *SemanticSearch) Execute(ctx context.Context, call Call) (interface{}, error) {
	text := stringParam(call.Params, "query")
	if text == "" {
		return nil, xerrors.InvalidArgumentsf("query is required")
	}
	limit, err := intParam(call.Params, "limit", 10)
	if err != nil {
		return nil, xerrors.InvalidArgumentsf("%v", err)
	}
	if t.Embedder == nil {
		return nil, xerrors.ExternalErrorf("no embedding provider configured")
	}

	qv, err := t.Embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	matches, err := t.Embedder.FindSimilar(ctx, call.Project.ProjectID, qv, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		hit := map[string]interface{}{
			"id":    m.OriginalID,
			"score": m.Score,
		}
		if call.Profile() != "compact" {
			hit["kind"] = m.Kind
		}
		if call.Profile() == "debug" {
			hit["text"] = m.ContentText
		}
		hits = append(hits, hit)
	}
	return map[string]interface{}{"hits": hits}, nil
}

// CodeExplain returns a symbol's metadata plus its neighborhood up to a
// requested depth.
type CodeExplain struct {
	Indices *index.Registry
	Graph   graph.Backend
}

func (t *CodeExplain) Name() string            { return "code_explain" }
func (t *CodeExplain) RequiresWorkspace() bool { return true }

func (t *CodeExplain) Execute(ctx context.Context, call Call) (interface{}, error) {
	symbol := stringParam(call.Params, "symbol")
	if symbol == "" {
		return nil, xerrors.InvalidArgumentsf("symbol is required")
	}
	depth, err := intParam(call.Params, "depth", 1)
	if err != nil {
		return nil, xerrors.InvalidArgumentsf("%v", err)
	}
	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	idx, err := t.Indices.Get(ctx, call.Project.ProjectID)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("loading index: %w", err)
	}

	node, ok := resolveSymbol(idx, call.Project.ProjectID, symbol)
	if !ok {
		return nil, xerrors.NotFoundf("symbol %q not found in project %s", symbol, call.Project.ProjectID)
	}

	outgoing := idx.GetEdgesFrom(node.ID)
	edges := make([]map[string]interface{}, 0, len(outgoing))
	for _, e := range outgoing {
		edges = append(edges, map[string]interface{}{
			"type": string(e.Type),
			"to":   e.To,
		})
	}

	out := map[string]interface{}{
		"id":             node.ID,
		"label":          string(node.Label),
		"name":           symbolName(node),
		"properties":     shapeProps(node, call.Profile()),
		"outgoing_edges": edges,
	}

	if neighbors, err := t.Graph.Neighbors(ctx, call.Project.ProjectID, node.ID, nil, depth); err == nil {
		related := make([]map[string]interface{}, 0, len(neighbors))
		for _, n := range neighbors {
			related = append(related, map[string]interface{}{
				"id":    n.ID,
				"label": string(n.Label),
				"name":  symbolName(n),
			})
		}
		out["related"] = related
	}

	return out, nil
}

// ImpactAnalyze walks the reverse dependency graph from a changed-file set
// and reports every transitive dependent plus the test files among them.
type ImpactAnalyze struct {
	Indices *index.Registry
}

func (t *ImpactAnalyze) Name() string            { return "impact_analyze" }
func (t *ImpactAnalyze) RequiresWorkspace() bool { return true }

func (t *ImpactAnalyze) Execute(ctx context.Context, call Call) (interface{}, error) {
	changed := stringSliceParam(call.Params, "changed_files")
	if len(changed) == 0 {
		return nil, xerrors.InvalidArgumentsf("changed_files is required")
	}

	idx, err := t.Indices.Get(ctx, call.Project.ProjectID)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("loading index: %w", err)
	}

	// Reverse adjacency over file-level dependency edges.
	dependentsOf := make(map[string][]string)
	for _, f := range idx.GetNodesByLabel(models.LabelFile) {
		for _, e := range idx.GetEdgesFrom(f.ID) {
			if e.Type == models.EdgeDependsOn || e.Type == models.EdgeImports {
				dependentsOf[e.To] = append(dependentsOf[e.To], f.ID)
			}
		}
	}

	seen := make(map[string]bool)
	var frontier []string
	for _, path := range changed {
		id := build.NodeID(call.Project.ProjectID, models.LabelFile, path)
		frontier = append(frontier, id)
		seen[id] = true
	}

	var dependents []string
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, dep := range dependentsOf[next] {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			dependents = append(dependents, dep)
			frontier = append(frontier, dep)
		}
	}
	sort.Strings(dependents)

	var tests []string
	paths := make([]string, 0, len(dependents))
	for _, id := range dependents {
		path := id
		if node, ok := idx.GetNode(id); ok {
			if p, pok := node.Properties["path"].(string); pok {
				path = p
			}
		}
		paths = append(paths, path)
		if isTestPath(path) {
			tests = append(tests, path)
		}
	}

	return map[string]interface{}{
		"changed_files":  changed,
		"dependents":     paths,
		"affected_tests": tests,
	}, nil
}

// resolveSymbol finds the node behind a caller-supplied symbol reference:
// a full composite id, a bare name, or the basename:name:line form whose
// name segment is inferred when the last segment is numeric.
func resolveSymbol(idx *index.Index, projectID, symbol string) (models.GraphNode, bool) {
	if node, ok := idx.GetNode(symbol); ok {
		return node, true
	}
	for _, label := range []models.NodeLabel{models.LabelFunction, models.LabelClass, models.LabelFile} {
		if node, ok := idx.GetNode(build.NodeID(projectID, label, symbol)); ok {
			return node, true
		}
	}

	want := build.InferredName(symbol)
	for _, label := range []models.NodeLabel{models.LabelFunction, models.LabelClass, models.LabelFile} {
		for _, node := range idx.GetNodesByLabel(label) {
			if symbolName(node) == want {
				return node, true
			}
		}
	}
	return models.GraphNode{}, false
}

func symbolName(n models.GraphNode) string {
	if name, ok := n.Properties["name"].(string); ok && name != "" {
		return name
	}
	if path, ok := n.Properties["path"].(string); ok && path != "" {
		return path
	}
	_, _, local, err := build.ParseNodeID(n.ID)
	if err != nil {
		return n.ID
	}
	return build.InferredName(local)
}

func shapeProps(n models.GraphNode, profile string) map[string]interface{} {
	switch profile {
	case "compact":
		return nil
	case "debug":
		return n.Properties
	default:
		out := make(map[string]interface{})
		for _, k := range []string{"path", "language", "start_line", "end_line", "scope_path", "signature"} {
			if v, ok := n.Properties[k]; ok {
				out[k] = v
			}
		}
		return out
	}
}

func isTestPath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, "_test.go") || strings.HasSuffix(lower, "_test.py") {
		return true
	}
	for _, marker := range []string{".test.", ".spec.", "/tests/", "/__tests__/", "/test/"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return strings.HasPrefix(lower, "test_") || strings.Contains(lower, "/test_")
}
