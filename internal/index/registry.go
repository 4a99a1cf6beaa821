package index

import (
	"container/list"
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/codeintel/server/internal/models"
)

// DefaultMaxProjects is the LRU bound on simultaneously-resident project
// indices.
const DefaultMaxProjects = 5

// Loader rebuilds a project's index from the source of truth after an
// eviction, reading every code-bearing label from the graph store.
type Loader func(ctx context.Context, projectID string) (*Index, error)

// Registry owns the bounded set of in-memory project indices. Eviction
// order is tracked with container/list for exact LRU semantics;
// patrickmn/go-cache runs alongside purely to time out "hotness" entries
// and log when a project has gone cold, since go-cache has no built-in
// bounded-count eviction to enforce the N=5 cap on its own.
type Registry struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	hot     *gocache.Cache
	loader  Loader
}

type entry struct {
	projectID string
	idx       *Index
}

// NewRegistry creates a registry bounded at maxSize resident projects
// (<=0 uses DefaultMaxProjects). loader may be nil; a nil loader makes a
// post-eviction Get return a fresh empty index instead of reloading.
func NewRegistry(maxSize int, loader Loader) *Registry {
	if maxSize <= 0 {
		maxSize = DefaultMaxProjects
	}
	return &Registry{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		hot:     gocache.New(30*time.Minute, 5*time.Minute),
		loader:  loader,
	}
}

// Get returns the index for projectID, marking it most-recently-used.
// If the project isn't resident, it is reloaded via Loader (or created
// empty) and, if the registry is now over capacity, the least-recently-used
// project is evicted.
func (r *Registry) Get(ctx context.Context, projectID string) (*Index, error) {
	r.mu.Lock()
	if el, ok := r.entries[projectID]; ok {
		r.order.MoveToFront(el)
		r.hot.Set(projectID, time.Now(), gocache.DefaultExpiration)
		idx := el.Value.(*entry).idx
		r.mu.Unlock()
		return idx, nil
	}
	r.mu.Unlock()

	idx, err := r.reload(ctx, projectID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.entries[projectID]; ok {
		r.order.MoveToFront(el)
		return el.Value.(*entry).idx, nil
	}
	el := r.order.PushFront(&entry{projectID: projectID, idx: idx})
	r.entries[projectID] = el
	r.hot.Set(projectID, time.Now(), gocache.DefaultExpiration)

	for r.order.Len() > r.maxSize {
		back := r.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*entry)
		r.order.Remove(back)
		delete(r.entries, evicted.projectID)
		r.hot.Delete(evicted.projectID)
	}
	return idx, nil
}

// Evict forcibly drops a project's resident index, e.g. after DeleteProject.
func (r *Registry) Evict(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.entries[projectID]; ok {
		r.order.Remove(el)
		delete(r.entries, projectID)
		r.hot.Delete(projectID)
	}
}

// Resident reports which projects currently hold an in-memory index, most
// recently used first.
func (r *Registry) Resident() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, r.order.Len())
	for el := r.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).projectID)
	}
	return out
}

func (r *Registry) reload(ctx context.Context, projectID string) (*Index, error) {
	if r.loader == nil {
		return New(), nil
	}
	return r.loader(ctx, projectID)
}

// BuildLoader adapts a graph-backed NodesByLabel lookup into a Loader,
// reconstructing a project's index from FILE/FUNCTION/CLASS/IMPORT nodes.
// Edges are not replayed on reload since the index only needs them for
// GetEdgesFrom, which degrades gracefully to empty until the next build.
func BuildLoader(nodesByLabel func(ctx context.Context, projectID string, label models.NodeLabel) ([]models.GraphNode, error)) Loader {
	labels := []models.NodeLabel{
		models.LabelFile, models.LabelFunction, models.LabelClass, models.LabelImport,
		models.LabelEpisode, models.LabelClaim, models.LabelLearning, models.LabelCommunity,
		models.LabelFeature, models.LabelTask, models.LabelSection, models.LabelDocument, models.LabelRule,
	}
	return func(ctx context.Context, projectID string) (*Index, error) {
		idx := New()
		for _, label := range labels {
			nodes, err := nodesByLabel(ctx, projectID, label)
			if err != nil {
				return nil, err
			}
			for _, n := range nodes {
				idx.AddNode(n)
			}
		}
		return idx, nil
	}
}
