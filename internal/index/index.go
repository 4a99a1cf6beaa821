// Package index implements the project-scoped in-memory secondary index:
// fast node-by-id, node-by-label, and outgoing-edge lookups backing engines
// that cannot afford a GraphStore round trip on every call.
package index

import (
	"sync"

	"github.com/codeintel/server/internal/models"
)

// Stats summarizes one project's index contents.
type Stats struct {
	NodesByLabel map[models.NodeLabel]int
	NodeCount    int
	EdgeCount    int
}

// Index is a single project's in-memory view of the graph. Safe for
// concurrent use: reads (engine queries) vastly outnumber writes
// (index sync after a build batch).
type Index struct {
	mu           sync.RWMutex
	nodesByID    map[string]models.GraphNode
	nodesByLabel map[models.NodeLabel][]string
	edgesFrom    map[string][]models.GraphEdge
}

// New returns an empty index.
func New() *Index {
	return &Index{
		nodesByID:    make(map[string]models.GraphNode),
		nodesByLabel: make(map[models.NodeLabel][]string),
		edgesFrom:    make(map[string][]models.GraphEdge),
	}
}

// AddNode inserts or replaces a node. Replacing an existing id does not
// duplicate its label bucket entry.
func (idx *Index) AddNode(node models.GraphNode) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.nodesByID[node.ID]; !exists {
		idx.nodesByLabel[node.Label] = append(idx.nodesByLabel[node.Label], node.ID)
	}
	idx.nodesByID[node.ID] = node
}

// AddEdge records an outgoing edge from edge.From.
func (idx *Index) AddEdge(edge models.GraphEdge) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.edgesFrom[edge.From] = append(idx.edgesFrom[edge.From], edge)
}

// GetNode returns a node by id.
func (idx *Index) GetNode(id string) (models.GraphNode, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.nodesByID[id]
	return n, ok
}

// GetNodesByLabel returns every node with the given label.
func (idx *Index) GetNodesByLabel(label models.NodeLabel) []models.GraphNode {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := idx.nodesByLabel[label]
	out := make([]models.GraphNode, 0, len(ids))
	for _, id := range ids {
		if n, ok := idx.nodesByID[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// GetEdgesFrom returns every outgoing edge recorded for id.
func (idx *Index) GetEdgesFrom(id string) []models.GraphEdge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]models.GraphEdge(nil), idx.edgesFrom[id]...)
}

// Clear empties the index in place, used at the start of a full rebuild.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.nodesByID = make(map[string]models.GraphNode)
	idx.nodesByLabel = make(map[models.NodeLabel][]string)
	idx.edgesFrom = make(map[string][]models.GraphEdge)
}

// Statistics reports node/edge counts for the health and get_statistics tools.
func (idx *Index) Statistics() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byLabel := make(map[models.NodeLabel]int, len(idx.nodesByLabel))
	for label, ids := range idx.nodesByLabel {
		byLabel[label] = len(ids)
	}
	edgeCount := 0
	for _, edges := range idx.edgesFrom {
		edgeCount += len(edges)
	}
	return Stats{NodesByLabel: byLabel, NodeCount: len(idx.nodesByID), EdgeCount: edgeCount}
}
