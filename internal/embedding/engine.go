// Package embedding implements the EmbeddingEngine: generates
// per-symbol vectors, upserts them into the vector store under a
// project-scoped payload, and answers k-NN lookups with an in-memory
// fallback when the store is empty or unreachable.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/codeintel/server/internal/llm"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/vector"
	"github.com/codeintel/server/internal/xerrors"
)

// codeLabels lists the node labels the engine embeds. FILE/IMPORT nodes
// carry no natural-language content worth embedding.
var codeLabels = map[models.NodeLabel]bool{
	models.LabelFunction: true,
	models.LabelClass:    true,
}

// cachedPoint is the in-memory fallback record used by FindSimilar when the
// vector store returns nothing for a project (empty or unreachable).
type cachedPoint struct {
	originalID string
	kind       string
	text       string
	vector     []float32
}

// EmbeddingClient is the provider capability the engine depends on;
// *llm.Client satisfies it. Narrowed to an interface so tests can supply a
// fake instead of making real provider calls.
type EmbeddingClient interface {
	IsEnabled() bool
	Embed(ctx context.Context, texts []string) ([]llm.EmbeddingResult, error)
}

// Engine is the EmbeddingEngine. client may be disabled (no API key
// configured); EmbedNodes then becomes a no-op rather than an error, since
// embedding generation is always best-effort.
type Engine struct {
	client    EmbeddingClient
	store     vector.Store
	limiter   *llm.RateLimiter // optional; nil disables rate limiting
	batchSize int
	logger    *slog.Logger

	mu     sync.RWMutex
	cache  map[string][]cachedPoint // project_id -> embedded points
	pacers map[string]*rate.Limiter // project_id -> per-project pacing
}

// Config controls batching.
type Config struct {
	BatchSize int // texts per provider call; <=0 uses DefaultBatchSize
}

const DefaultBatchSize = 64

// New wires an Engine. limiter may be nil to skip rate limiting (e.g. tests
// or a deployment with no Redis).
func New(client EmbeddingClient, store vector.Store, limiter *llm.RateLimiter, cfg Config, logger *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:    client,
		store:     store,
		limiter:   limiter,
		batchSize: cfg.BatchSize,
		logger:    logger,
		cache:     make(map[string][]cachedPoint),
		pacers:    make(map[string]*rate.Limiter),
	}
}

// projectBatchRate is how many embed-batch rounds per second one project
// may start.
const projectBatchRate = 4

func (e *Engine) projectLimiter(projectID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.pacers[projectID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(projectBatchRate), projectBatchRate)
		e.pacers[projectID] = l
	}
	return l
}

// EmbedNodes generates and upserts embeddings for every FUNCTION/CLASS node
// in nodes. Implements orchestrator.Embedder. A disabled client or an empty
// input is a silent no-op: builds must never fail because embedding
// generation is unavailable.
func (e *Engine) EmbedNodes(ctx context.Context, projectID string, nodes []models.GraphNode) error {
	if e.client == nil || !e.client.IsEnabled() {
		return nil
	}
	// Per-project pacing keeps one project's bulk rebuild from starving
	// interactive queries; the Redis limiter still guards the global
	// provider quota on top of this.
	if err := e.projectLimiter(projectID).Wait(ctx); err != nil {
		return err
	}

	var targets []models.GraphNode
	for _, n := range nodes {
		if n.ProjectID != projectID {
			continue
		}
		if codeLabels[n.Label] {
			targets = append(targets, n)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	for start := 0; start < len(targets); start += e.batchSize {
		end := start + e.batchSize
		if end > len(targets) {
			end = len(targets)
		}
		if err := e.embedBatch(ctx, projectID, targets[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) embedBatch(ctx context.Context, projectID string, batch []models.GraphNode) error {
	texts := make([]string, len(batch))
	for i, n := range batch {
		texts[i] = textForNode(n)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, llm.EstimateTokens(texts)); err != nil {
			return xerrors.ExternalErrorf("embedding rate limit: %w", err)
		}
	}

	results, err := e.client.Embed(ctx, texts)
	if err != nil {
		return err
	}

	embeddings := make([]models.Embedding, 0, len(results))
	points := make([]cachedPoint, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(batch) {
			continue
		}
		node := batch[r.Index]
		contentHash := hashText(texts[r.Index])
		id := strconv.FormatUint(uint64(HashID(node.ID)), 10)

		embeddings = append(embeddings, models.Embedding{
			ID:          id,
			ProjectID:   projectID,
			OriginalID:  node.ID,
			Kind:        node.Label,
			Text:        texts[r.Index],
			Vector:      r.Vector,
			ContentHash: contentHash,
		})
		points = append(points, cachedPoint{
			originalID: node.ID,
			kind:       string(node.Label),
			text:       texts[r.Index],
			vector:     r.Vector,
		})
	}

	if e.store != nil && len(embeddings) > 0 {
		if err := e.store.Upsert(ctx, embeddings); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.cache[projectID] = append(e.cache[projectID], points...)
	e.mu.Unlock()

	return nil
}

// EmbedQuery encodes a single piece of free text (a retrieval query) into
// the same vector space as EmbedNodes, for callers that need to drive a
// k-NN search from natural language rather than an existing node.
func (e *Engine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.client == nil || !e.client.IsEnabled() {
		return nil, xerrors.ExternalErrorf("embedding client not enabled: %w", os.ErrInvalid)
	}
	results, err := e.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, xerrors.ExternalErrorf("embedding provider returned no vector for query: %w", os.ErrInvalid)
	}
	return results[0].Vector, nil
}

// FindSimilar performs a k-NN search scoped to projectID. If the store
// returns zero matches (empty store, or unreachable and the caller chose to
// swallow the error upstream), it falls back to cosine similarity over the
// in-memory cache for the same project.
func (e *Engine) FindSimilar(ctx context.Context, projectID string, queryVector []float32, k int) ([]vector.Match, error) {
	if k <= 0 {
		k = 10
	}

	if e.store != nil {
		matches, err := e.store.Query(ctx, projectID, queryVector, "", k)
		if err == nil && len(matches) > 0 {
			return matches, nil
		}
	}

	return e.findSimilarInCache(projectID, queryVector, k), nil
}

// FindSimilarBySymbol resolves symbolID to its own vector (from cache, since
// the store has no get-by-id primitive) and searches from there.
func (e *Engine) FindSimilarBySymbol(ctx context.Context, projectID, symbolID string, k int) ([]vector.Match, error) {
	e.mu.RLock()
	var queryVector []float32
	for _, p := range e.cache[projectID] {
		if p.originalID == symbolID {
			queryVector = p.vector
			break
		}
	}
	e.mu.RUnlock()

	if queryVector == nil {
		return nil, xerrors.NotFoundf("no embedding cached for symbol %s", symbolID)
	}
	return e.FindSimilar(ctx, projectID, queryVector, k)
}

func (e *Engine) findSimilarInCache(projectID string, queryVector []float32, k int) []vector.Match {
	e.mu.RLock()
	points := e.cache[projectID]
	e.mu.RUnlock()

	type scored struct {
		match vector.Match
		score float64
	}
	scoredPoints := make([]scored, 0, len(points))
	for _, p := range points {
		s := cosineSimilarity(queryVector, p.vector)
		scoredPoints = append(scoredPoints, scored{
			match: vector.Match{OriginalID: p.originalID, Kind: p.kind, ContentText: p.text, Score: s},
			score: s,
		})
	}
	sort.Slice(scoredPoints, func(i, j int) bool { return scoredPoints[i].score > scoredPoints[j].score })

	if k > len(scoredPoints) {
		k = len(scoredPoints)
	}
	out := make([]vector.Match, k)
	for i := 0; i < k; i++ {
		out[i] = scoredPoints[i].match
	}
	return out
}

// EvictProject drops a project's cached fallback points, used when a
// project's in-memory index is evicted or its graph is cleared.
func (e *Engine) EvictProject(projectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, projectID)
}

func textForNode(n models.GraphNode) string {
	name, _ := n.Properties["name"].(string)
	scope, _ := n.Properties["scope_path"].(string)
	signature, _ := n.Properties["signature"].(string)
	if signature != "" {
		return fmt.Sprintf("%s %s in %s: %s", n.Label, name, scope, signature)
	}
	return fmt.Sprintf("%s %s in %s", n.Label, name, scope)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func hashText(s string) string {
	h := HashID(s)
	return strconv.FormatUint(uint64(h), 10)
}
