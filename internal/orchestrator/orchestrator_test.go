package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/parser"
)

type fakeGraph struct {
	nodes map[string]models.GraphNode
	edges []models.GraphEdge
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: make(map[string]models.GraphNode)}
}

func (f *fakeGraph) CreateNode(ctx context.Context, node models.GraphNode) (string, error) {
	f.nodes[node.ID] = node
	return node.ID, nil
}
func (f *fakeGraph) CreateNodes(ctx context.Context, nodes []models.GraphNode) ([]string, error) {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		f.nodes[n.ID] = n
		ids[i] = n.ID
	}
	return ids, nil
}
func (f *fakeGraph) CreateEdge(ctx context.Context, edge models.GraphEdge) error {
	f.edges = append(f.edges, edge)
	return nil
}
func (f *fakeGraph) CreateEdges(ctx context.Context, edges []models.GraphEdge) error {
	f.edges = append(f.edges, edges...)
	return nil
}
func (f *fakeGraph) GetNode(ctx context.Context, projectID, id string) (models.GraphNode, bool, error) {
	n, ok := f.nodes[id]
	if !ok || n.ProjectID != projectID {
		return models.GraphNode{}, false, nil
	}
	return n, true, nil
}
func (f *fakeGraph) DeleteProject(ctx context.Context, projectID string) error {
	for id, n := range f.nodes {
		if n.ProjectID == projectID {
			delete(f.nodes, id)
		}
	}
	return nil
}
func (f *fakeGraph) NodesByLabel(ctx context.Context, projectID string, label models.NodeLabel) ([]models.GraphNode, error) {
	var out []models.GraphNode
	for _, n := range f.nodes {
		if n.ProjectID == projectID && n.Label == label {
			out = append(out, n)
		}
	}
	return out, nil
}
func (f *fakeGraph) Neighbors(ctx context.Context, projectID, id string, edgeTypes []models.EdgeType, depth int) ([]models.GraphNode, error) {
	return nil, nil
}
func (f *fakeGraph) ExecuteBatch(ctx context.Context, commands []string) error { return nil }
func (f *fakeGraph) Query(ctx context.Context, query string) (interface{}, error) {
	return nil, nil
}
func (f *fakeGraph) QueryWithParams(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return nil, nil
}
func (f *fakeGraph) Close(ctx context.Context) error { return nil }

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc Run() {}\n"), 0o644))
	return dir
}

func TestBuildFullCreatesFileAndFunctionNodes(t *testing.T) {
	root := writeProject(t)
	g := newFakeGraph()
	o := New(DefaultConfig(), g, nil, parser.NewRegistry(), index.NewRegistry(5, nil), nil, nil, nil, nil)

	pc := models.ProjectContext{ProjectID: "proj1", RootPath: root, BoundAt: time.Now()}
	result, err := o.Build(context.Background(), pc, ModeFull)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesProcessed)
	assert.GreaterOrEqual(t, result.NodesCreated, 2)

	var sawFunction bool
	for _, n := range g.nodes {
		if n.Label == models.LabelFunction && n.Properties["name"] == "Run" {
			sawFunction = true
		}
	}
	assert.True(t, sawFunction, "expected a FUNCTION node named Run")
}

func TestTriggerBuildReturnsBusyWhileRunning(t *testing.T) {
	root := writeProject(t)
	g := newFakeGraph()
	o := New(DefaultConfig(), g, nil, parser.NewRegistry(), index.NewRegistry(5, nil), nil, nil, nil, nil)

	pc := models.ProjectContext{ProjectID: "proj1", RootPath: root, BoundAt: time.Now()}
	o.mu.Lock()
	o.running["proj1"] = "tx-already-running"
	o.mu.Unlock()

	status, txID := o.TriggerBuild(pc, ModeFull)
	assert.Equal(t, StatusBusy, status)
	assert.Equal(t, "tx-already-running", txID)
}

func TestIncrementalBuildSkipsUnchangedFiles(t *testing.T) {
	root := writeProject(t)
	g := newFakeGraph()
	reg := index.NewRegistry(5, nil)
	o := New(DefaultConfig(), g, nil, parser.NewRegistry(), reg, nil, nil, nil, nil)
	pc := models.ProjectContext{ProjectID: "proj1", RootPath: root, BoundAt: time.Now()}

	_, err := o.Build(context.Background(), pc, ModeFull)
	require.NoError(t, err)

	result, err := o.Build(context.Background(), pc, ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesProcessed, "no files changed since the full build")
}
