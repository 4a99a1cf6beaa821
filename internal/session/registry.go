// Package session implements the SessionRegistry: per-session project
// contexts keyed by session identity, with the workspace-set lifecycle
// that clears the project's in-memory index and (re)starts a file watcher
// on project change. A nil/empty session id maps to the process-wide
// default context with identical semantics but no isolation.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/xerrors"
)

// defaultSessionKey is the registry key behind session_id=null.
const defaultSessionKey = ""

// TriggerFunc enqueues a non-blocking incremental build for pc; the
// entrypoint wires it to the orchestrator's TriggerBuild. A func type
// rather than an interface keeps the registry free of any import-time
// dependency on the build pipeline.
type TriggerFunc func(pc models.ProjectContext)

// entry is one session's state. Mutation is guarded per entry so a slow
// workspace switch in one session never blocks another session's lookups.
type entry struct {
	mu      sync.Mutex
	ctx     models.ProjectContext
	bound   bool
	watcher *Watcher
}

// Registry is the concurrent session map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	indices *index.Registry
	trigger TriggerFunc
	watch   bool
	logger  *slog.Logger
}

// NewRegistry wires a Registry. trigger may be nil (no watcher-driven
// rebuilds, e.g. tests); watch=false disables file watching entirely.
func NewRegistry(indices *index.Registry, trigger TriggerFunc, watch bool, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		indices: indices,
		trigger: trigger,
		watch:   watch,
		logger:  logger.With("component", "session"),
	}
}

// SetWorkspace binds sessionID to pc, replacing any previous binding. On a
// project change the old project's resident index is dropped and a fresh
// watcher is started on the new workspace root.
func (r *Registry) SetWorkspace(ctx context.Context, sessionID string, pc models.ProjectContext) (models.ProjectContext, error) {
	if pc.RootPath == "" {
		return models.ProjectContext{}, xerrors.InvalidArgumentsf("workspace_root is required")
	}
	pc.ProjectID = NormalizeProjectID(pc.ProjectID, pc.RootPath)
	pc.BoundAt = time.Now().UTC()

	e := r.entry(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bound && e.ctx.Equal(pc) {
		return e.ctx, nil
	}

	if e.bound && e.ctx.ProjectID != pc.ProjectID && r.indices != nil {
		r.indices.Evict(e.ctx.ProjectID)
	}
	if e.watcher != nil {
		e.watcher.Stop()
		e.watcher = nil
	}

	e.ctx = pc
	e.bound = true

	if r.watch && r.trigger != nil {
		w, err := NewWatcher(pc, r.trigger, r.logger)
		if err != nil {
			r.logger.Warn("file watcher unavailable", "project_id", pc.ProjectID, "error", err)
		} else {
			e.watcher = w
			w.Start()
		}
	}

	return pc, nil
}

// Resolve returns the context bound to sessionID, falling back to the
// default context when the session has none of its own.
func (r *Registry) Resolve(sessionID string) (models.ProjectContext, bool) {
	key := sessionKey(sessionID)

	r.mu.RLock()
	e, ok := r.entries[key]
	if !ok && key != defaultSessionKey {
		e, ok = r.entries[defaultSessionKey]
	}
	r.mu.RUnlock()
	if !ok {
		return models.ProjectContext{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.bound {
		return models.ProjectContext{}, false
	}
	return e.ctx, true
}

// Terminate drops sessionID's binding and stops its watcher. The project's
// graph data is untouched; only the session-side state dies with it.
func (r *Registry) Terminate(sessionID string) {
	key := sessionKey(sessionID)

	r.mu.Lock()
	e, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watcher != nil {
		e.watcher.Stop()
		e.watcher = nil
	}
	e.bound = false
}

// Sessions lists the currently bound session keys, default first if bound.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	return out
}

// Close stops every watcher.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.watcher != nil {
			e.watcher.Stop()
			e.watcher = nil
		}
		e.mu.Unlock()
	}
}

func (r *Registry) entry(sessionID string) *entry {
	key := sessionKey(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	return e
}

func sessionKey(sessionID string) string {
	return strings.TrimSpace(sessionID)
}

// NormalizeProjectID lowercases the configured project id, deriving one
// from the workspace basename when none was given.
func NormalizeProjectID(projectID, rootPath string) string {
	id := strings.TrimSpace(projectID)
	if id == "" {
		segs := strings.Split(strings.TrimRight(strings.ReplaceAll(rootPath, "\\", "/"), "/"), "/")
		id = segs[len(segs)-1]
	}
	return strings.ToLower(id)
}
