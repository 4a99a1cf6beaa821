package retrieval

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/vector"
	"github.com/codeintel/server/internal/xerrors"
)

// seedLimit is how many top hits from vector ∪ lexical retrieval seed graph
// expansion.
const seedLimit = 10

// minTokenLen is the shortest query token considered meaningful; queries
// made up only of shorter tokens are rejected as QueryTooShort.
const minTokenLen = 3

// Embedder is the vector-retrieval capability the retriever depends on;
// *embedding.Engine satisfies it. Narrowed to an interface to avoid a
// retrieval -> embedding -> llm/vector import chain mattering to callers
// that only need retrieval, and so tests can supply a fake.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	FindSimilar(ctx context.Context, projectID string, queryVector []float32, k int) ([]vector.Match, error)
}

// Retriever is the HybridRetriever.
type Retriever struct {
	embedder Embedder
	indices  *index.Registry
	logger   *slog.Logger
}

// New wires a Retriever. embedder may be nil to run lexical+graph only
// (e.g. no embedding provider configured).
func New(embedder Embedder, indices *index.Registry, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, indices: indices, logger: logger}
}

// Query runs the full vector+lexical+graph+RRF pipeline.
func (r *Retriever) Query(ctx context.Context, q Query) (Result, error) {
	tokens := significantTokens(q.Text)
	if len(tokens) == 0 {
		return Result{}, xerrors.QueryTooShortf("query too short: no token of length >= %d", minTokenLen)
	}

	idx, err := r.indices.Get(ctx, q.ProjectID)
	if err != nil {
		return Result{}, xerrors.DatabaseErrorf("loading project index for retrieval: %w", err)
	}

	corpus := searchableCorpus(idx)

	// Vector and lexical retrieval are independent signals; run them
	// concurrently and fuse afterwards. A vector failure is not fatal —
	// it degrades to lexical_fallback below — so neither goroutine
	// returns an error into the group.
	var vectorList, lexicalList rankedList
	var vectorErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorList, vectorErr = r.vectorRetrieve(gctx, q, corpus)
		return nil
	})
	g.Go(func() error {
		lexicalList = lexicalSearch(tokens, corpus)
		return nil
	})
	_ = g.Wait()

	if vectorErr != nil && len(lexicalList.ids) == 0 {
		graphList := rankedList{scores: map[string]float64{}}
		if emptyAll(vectorList, lexicalList, graphList) {
			return Result{}, xerrors.ExternalErrorf("retrieval unavailable: vector error %v and no lexical matches", vectorErr)
		}
	}

	seeds := topSeeds(seedLimit, vectorList, lexicalList)
	graphList := rankedList{scores: map[string]float64{}}
	if len(seeds) > 0 {
		nodes, adjacency := expandSubgraph(idx, seeds, expandDepth(q.Mode))
		graphList = personalizedPageRank(nodes, adjacency, seeds)
	}

	if emptyAll(vectorList, lexicalList, graphList) {
		return Result{Hits: nil, Mode: modeLabel(vectorList)}, nil
	}

	fused := fuse(vectorList, lexicalList, graphList)

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > len(fused) {
		limit = len(fused)
	}
	fused = fused[:limit]

	hits := make([]Hit, 0, len(fused))
	nodeByID := corpusIndex(corpus)
	for _, s := range fused {
		hits = append(hits, shapeHit(s, nodeByID[s.id], q.Profile))
	}

	return Result{Hits: hits, Mode: modeLabel(vectorList)}, nil
}

func (r *Retriever) vectorRetrieve(ctx context.Context, q Query, corpus []models.GraphNode) (rankedList, error) {
	if r.embedder == nil {
		return rankedList{scores: map[string]float64{}}, nil
	}
	qv, err := r.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return rankedList{scores: map[string]float64{}}, err
	}
	matches, err := r.embedder.FindSimilar(ctx, q.ProjectID, qv, seedLimit)
	if err != nil {
		return rankedList{scores: map[string]float64{}}, err
	}

	list := rankedList{scores: make(map[string]float64, len(matches))}
	for _, m := range matches {
		list.ids = append(list.ids, m.OriginalID)
		list.scores[m.OriginalID] = m.Score
	}
	return list, nil
}

// searchableCorpus restricts lexical/graph-seed scoring to the node kinds
// with meaningful natural-language content: symbols and files.
func searchableCorpus(idx *index.Index) []models.GraphNode {
	var out []models.GraphNode
	out = append(out, idx.GetNodesByLabel(models.LabelFunction)...)
	out = append(out, idx.GetNodesByLabel(models.LabelClass)...)
	out = append(out, idx.GetNodesByLabel(models.LabelFile)...)
	return out
}

func corpusIndex(nodes []models.GraphNode) map[string]models.GraphNode {
	m := make(map[string]models.GraphNode, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

// topSeeds merges the best-ranked ids out of the given lists, in rank order,
// up to limit, deduplicated. It interleaves rather than favoring one list so
// a strong lexical-only hit can still seed graph expansion alongside a
// strong vector-only hit.
func topSeeds(limit int, lists ...rankedList) []string {
	seen := make(map[string]bool)
	var out []string
	for pos := 0; len(out) < limit; pos++ {
		progressed := false
		for _, l := range lists {
			if pos >= len(l.ids) {
				continue
			}
			progressed = true
			id := l.ids[pos]
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
				if len(out) == limit {
					break
				}
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

func significantTokens(text string) []string {
	var out []string
	for _, t := range tokenize(text) {
		if len(t) > minTokenLen-1 {
			out = append(out, t)
		}
	}
	return out
}

func emptyAll(lists ...rankedList) bool {
	for _, l := range lists {
		if len(l.ids) > 0 {
			return false
		}
	}
	return true
}

func modeLabel(vectorList rankedList) string {
	if len(vectorList.ids) == 0 {
		return "lexical_fallback"
	}
	return "hybrid"
}

func shapeHit(s scoredID, node models.GraphNode, profile Profile) Hit {
	h := Hit{ID: s.id, Score: s.score}
	if name, ok := node.Properties["name"].(string); ok {
		h.Name = name
	} else {
		h.Name = s.id
	}

	switch profile {
	case ProfileDebug:
		h.Payload = node.Properties
	case ProfileBalanced:
		h.Summary = summaryLine(node)
	}
	return h
}

func summaryLine(node models.GraphNode) string {
	if sig, ok := node.Properties["signature"].(string); ok && sig != "" {
		return sig
	}
	if scope, ok := node.Properties["scope_path"].(string); ok {
		return scope
	}
	return string(node.Label)
}
