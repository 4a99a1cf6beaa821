// Package orchestrator owns the incremental graph build pipeline: file
// discovery, parser dispatch, graph mutation, index synchronization, and
// transactional rebuild tracking.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeintel/server/internal/build"
	"github.com/codeintel/server/internal/graph"
	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/metrics"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/parser"
	"github.com/codeintel/server/internal/vector"
	"github.com/codeintel/server/internal/xerrors"
)

// Mode selects a full rebuild (clear then rebuild everything) or an
// incremental one (touch only files whose content changed).
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Status is the non-blocking acknowledgement returned by TriggerBuild.
type Status string

const (
	StatusQueued Status = "QUEUED"
	StatusBusy   Status = "BUSY"
)

// Result reports the outcome of one build, whether full or incremental.
type Result struct {
	TxID           string
	Mode           Mode
	FilesProcessed int
	NodesCreated   int
	EdgesCreated   int
	DurationMS     int64
	Errors         []string
	Warnings       []string
}

// StalenessInvalidator closes coordination claims whose target node was
// touched by a build with a newer valid_from than the claim recorded.
// Implemented by internal/coordination; kept as an interface here so the
// orchestrator has no import-time dependency on that package.
type StalenessInvalidator interface {
	InvalidateStale(ctx context.Context, projectID string, touched []models.GraphNode) error
}

// Embedder generates and upserts embeddings for newly written/changed
// symbol nodes. Implemented by internal/embedding.
type Embedder interface {
	EmbedNodes(ctx context.Context, projectID string, nodes []models.GraphNode) error
}

// Config controls worker concurrency and per-file parse timeout.
type Config struct {
	Workers int
	Timeout time.Duration
}

// DefaultConfig returns the worker-pool defaults.
func DefaultConfig() Config {
	return Config{Workers: 20, Timeout: 30 * time.Second}
}

// Orchestrator is the GraphOrchestrator: it owns the build pipeline and the
// non-blocking per-project build queue. It holds no per-build mutable
// state itself — each call to build() constructs its own build.Builder —
// so that concurrent builds for different projects never share mutable
// fields.
type Orchestrator struct {
	cfg       Config
	graph     graph.Backend
	vectors   vector.Store
	parser    *parser.Registry
	indices   *index.Registry
	txs       *vector.TransactionStore
	staleness StalenessInvalidator
	embedder  Embedder
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	running map[string]string // project_id -> tx_id of the build in flight
}

// SetMetrics attaches the Prometheus collectors; nil leaves builds
// unobserved.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

// New wires an Orchestrator. txs, staleness, and embedder may be nil; a nil
// embedder simply skips embedding generation (useful before
// internal/embedding exists or in tests).
func New(cfg Config, g graph.Backend, v vector.Store, p *parser.Registry, indices *index.Registry, txs *vector.TransactionStore, staleness StalenessInvalidator, embedder Embedder, logger *slog.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		graph:     g,
		vectors:   v,
		parser:    p,
		indices:   indices,
		txs:       txs,
		staleness: staleness,
		embedder:  embedder,
		logger:    logger,
		running:   make(map[string]string),
	}
}

// TriggerBuild enqueues a build for ctx.ProjectID and returns immediately.
// Only one build per project may run at a time; a second request while one
// is in flight reports StatusBusy with the running build's tx id.
func (o *Orchestrator) TriggerBuild(ctx models.ProjectContext, mode Mode) (Status, string) {
	o.mu.Lock()
	if running, ok := o.running[ctx.ProjectID]; ok {
		o.mu.Unlock()
		return StatusBusy, running
	}
	txID := uuid.NewString()
	o.running[ctx.ProjectID] = txID
	o.mu.Unlock()

	go func() {
		result, err := o.build(context.Background(), ctx, mode, txID)
		if err != nil {
			o.logger.Error("build failed", "project_id", ctx.ProjectID, "tx_id", txID, "error", err)
		} else {
			o.logger.Info("build complete", "project_id", ctx.ProjectID, "tx_id", txID,
				"files", result.FilesProcessed, "nodes", result.NodesCreated, "edges", result.EdgesCreated)
		}
		o.mu.Lock()
		delete(o.running, ctx.ProjectID)
		o.mu.Unlock()
	}()

	return StatusQueued, txID
}

// Build runs a build synchronously, bypassing the BUSY queue. Used by tests
// and by the startup manifest-recovery path which always runs alone.
func (o *Orchestrator) Build(ctx context.Context, pc models.ProjectContext, mode Mode) (Result, error) {
	return o.build(ctx, pc, mode, uuid.NewString())
}

func (o *Orchestrator) build(ctx context.Context, pc models.ProjectContext, mode Mode, txID string) (Result, error) {
	start := time.Now()
	rec := models.TransactionRecord{
		ID:        txID,
		ProjectID: pc.ProjectID,
		Kind:      string(mode),
		StartedAt: start,
	}

	idx, err := o.indices.Get(ctx, pc.ProjectID)
	if err != nil {
		return Result{}, xerrors.InternalErrorf("loading project index: %v", err)
	}

	if mode == ModeFull {
		if err := o.graph.DeleteProject(ctx, pc.ProjectID); err != nil {
			o.finishTx(ctx, &rec, err)
			return Result{}, xerrors.DatabaseErrorf("clearing graph for full build: %w", err)
		}
		if o.vectors != nil {
			if err := o.vectors.DeleteProject(ctx, pc.ProjectID); err != nil {
				o.finishTx(ctx, &rec, err)
				return Result{}, xerrors.DatabaseErrorf("clearing vectors for full build: %w", err)
			}
		}
		idx.Clear()
	}

	sourceRoot := pc.SourceRoot()
	relFiles, err := walkSourceFiles(sourceRoot)
	if err != nil {
		o.finishTx(ctx, &rec, err)
		return Result{}, xerrors.FileSystemErrorf("walking %s: %w", sourceRoot, err)
	}

	toProcess := relFiles
	if mode == ModeIncremental {
		toProcess, err = o.changedFiles(ctx, pc.ProjectID, idx, sourceRoot, relFiles)
		if err != nil {
			o.finishTx(ctx, &rec, err)
			return Result{}, err
		}
	}

	resolver := newPathResolver(relFiles)
	builder := build.New(resolver)

	parsed, parseErrors := o.parseFilesParallel(ctx, pc.ProjectID, sourceRoot, toProcess)

	var mutations build.Mutations
	now := time.Now()
	for _, pf := range parsed {
		m, err := builder.Build(pf, now)
		if err != nil {
			parseErrors = append(parseErrors, fmt.Sprintf("%s: %v", pf.Path, err))
			continue
		}
		mutations.Nodes = append(mutations.Nodes, m.Nodes...)
		mutations.Edges = append(mutations.Edges, m.Edges...)
	}

	if len(mutations.Nodes) > 0 {
		if _, err := o.graph.CreateNodes(ctx, mutations.Nodes); err != nil {
			o.finishTx(ctx, &rec, err)
			return Result{}, xerrors.DatabaseErrorf("writing %d nodes: %w", len(mutations.Nodes), err)
		}
	}
	if len(mutations.Edges) > 0 {
		if err := o.graph.CreateEdges(ctx, mutations.Edges); err != nil {
			o.finishTx(ctx, &rec, err)
			return Result{}, xerrors.DatabaseErrorf("writing %d edges: %w", len(mutations.Edges), err)
		}
	}

	for _, n := range mutations.Nodes {
		idx.AddNode(n)
	}
	for _, e := range mutations.Edges {
		idx.AddEdge(e)
	}

	o.runPostBuildHooks(ctx, pc.ProjectID, idx, mutations.Nodes)

	rec.FilesTotal = len(toProcess)
	rec.FilesFailed = len(parseErrors)
	rec.FinishedAt = time.Now()
	if o.txs != nil {
		if err := o.txs.Record(ctx, rec); err != nil {
			o.logger.Warn("failed to record transaction", "tx_id", txID, "error", err)
		}
	}

	o.updateManifest(pc, mode, mutations.Nodes)
	if o.metrics != nil {
		o.metrics.ObserveBuild(pc.ProjectID, string(mode), len(toProcess), len(parseErrors), time.Since(start))
	}

	return Result{
		TxID:           txID,
		Mode:           mode,
		FilesProcessed: len(toProcess),
		NodesCreated:   len(mutations.Nodes),
		EdgesCreated:   len(mutations.Edges),
		DurationMS:     time.Since(start).Milliseconds(),
		Errors:         parseErrors,
	}, nil
}

func (o *Orchestrator) finishTx(ctx context.Context, rec *models.TransactionRecord, err error) {
	rec.FinishedAt = time.Now()
	rec.Err = err.Error()
	if o.txs != nil {
		_ = o.txs.Record(ctx, *rec)
	}
}

// changedFiles compares each discovered file's content hash against the
// FILE node already recorded in the resident index, returning only new or
// modified paths. Files with no change are left completely untouched, so
// their nodes' valid_from is never rewritten.
func (o *Orchestrator) changedFiles(ctx context.Context, projectID string, idx *index.Index, sourceRoot string, relFiles []string) ([]string, error) {
	var changed []string
	for _, rel := range relFiles {
		id := build.NodeID(projectID, models.LabelFile, rel)
		existing, ok := idx.GetNode(id)
		if !ok {
			changed = append(changed, rel)
			continue
		}
		hash, err := o.parser.HashFile(filepath.Join(sourceRoot, rel))
		if err != nil {
			changed = append(changed, rel)
			continue
		}
		if existing.Properties["content_hash"] != hash {
			changed = append(changed, rel)
		}
	}
	return changed, nil
}

// runPostBuildHooks runs the ordered post-batch sequence: claim staleness
// invalidation, then community detection, then embedding generation. The
// order matters — staleness must see the nodes exactly as the batch wrote
// them, and embeddings are last because they are the slowest and purely
// additive. A failed hook is logged, never fatal to the build.
func (o *Orchestrator) runPostBuildHooks(ctx context.Context, projectID string, idx *index.Index, touched []models.GraphNode) {
	if o.staleness != nil {
		if err := o.staleness.InvalidateStale(ctx, projectID, touched); err != nil {
			o.logger.Warn("staleness hook failed", "project_id", projectID, "error", err)
		}
	}
	if err := o.detectCommunities(ctx, projectID, idx); err != nil {
		o.logger.Warn("community detection failed", "project_id", projectID, "error", err)
	}
	if o.embedder != nil && len(touched) > 0 {
		if err := o.embedder.EmbedNodes(ctx, projectID, touched); err != nil {
			o.logger.Warn("embedding hook failed", "project_id", projectID, "error", err)
		}
	}
}

// parseFilesParallel parses files with a bounded worker pool. Results
// arrive in completion order; callers that need determinism sort later.
func (o *Orchestrator) parseFilesParallel(ctx context.Context, projectID, sourceRoot string, relFiles []string) ([]models.ParsedFile, []string) {
	files := make(chan string, len(relFiles))
	for _, f := range relFiles {
		files <- f
	}
	close(files)

	results := make(chan models.ParsedFile, o.cfg.Workers)
	var wg sync.WaitGroup

	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range files {
				select {
				case <-ctx.Done():
					return
				default:
				}
				pf := o.parser.ParseFile(projectID, rel, filepath.Join(sourceRoot, rel))
				results <- pf
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var parsed []models.ParsedFile
	var errs []string
	for pf := range results {
		if pf.Err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", pf.Path, pf.Err))
			continue
		}
		parsed = append(parsed, pf)
	}
	return parsed, errs
}
