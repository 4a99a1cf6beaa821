package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/build"
	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/parser"
)

func manifestOrchestrator(g *fakeGraph) *Orchestrator {
	return New(DefaultConfig(), g, nil, parser.NewRegistry(), index.NewRegistry(5, nil), nil, nil, nil, nil)
}

func fileNode(projectID, path, hash string) models.GraphNode {
	return models.GraphNode{
		ID:        build.NodeID(projectID, models.LabelFile, path),
		ProjectID: projectID,
		Label:     models.LabelFile,
		Properties: map[string]interface{}{
			"path":         path,
			"content_hash": hash,
		},
	}
}

func TestManifestWriteAndLoad(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, WriteManifest(root, Manifest{
		ProjectID: "p1",
		Hashes:    map[string]string{"a.go": "h1"},
	}))

	m, err := LoadManifest(root)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "p1", m.ProjectID)
	assert.Equal(t, "h1", m.Hashes["a.go"])
}

func TestLoadManifestMissingIsNil(t *testing.T) {
	m, err := LoadManifest(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestLoadManifestCorruptIsNil(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, manifestDir), 0o755))
	require.NoError(t, os.WriteFile(manifestPath(root), []byte("not json"), 0o644))

	m, err := LoadManifest(root)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestRebuildManifestFromGraph(t *testing.T) {
	g := newFakeGraph()
	_, err := g.CreateNode(context.Background(), fileNode("p1", "src/a.go", "h1"))
	require.NoError(t, err)
	_, err = g.CreateNode(context.Background(), fileNode("p1", "src/b.go", "h2"))
	require.NoError(t, err)

	o := manifestOrchestrator(g)
	root := t.TempDir()
	pc := models.ProjectContext{ProjectID: "p1", RootPath: root}

	m, err := o.RebuildManifest(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"src/a.go": "h1", "src/b.go": "h2"}, m.Hashes)

	// The rebuilt manifest is persisted.
	loaded, err := LoadManifest(root)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, m.Hashes, loaded.Hashes)
}

func TestDetectDriftCountsDisagreements(t *testing.T) {
	g := newFakeGraph()
	_, err := g.CreateNode(context.Background(), fileNode("p1", "src/a.go", "h1"))
	require.NoError(t, err)
	_, err = g.CreateNode(context.Background(), fileNode("p1", "src/b.go", "h2"))
	require.NoError(t, err)

	o := manifestOrchestrator(g)
	root := t.TempDir()
	pc := models.ProjectContext{ProjectID: "p1", RootPath: root}

	// Manifest agrees on a.go, disagrees on b.go, and has one extra file.
	require.NoError(t, WriteManifest(root, Manifest{
		ProjectID: "p1",
		Hashes: map[string]string{
			"src/a.go":    "h1",
			"src/b.go":    "stale",
			"src/gone.go": "h9",
		},
	}))

	drift, err := o.DetectDrift(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 2, drift)
}

func TestDetectDriftRebuildsMissingManifest(t *testing.T) {
	g := newFakeGraph()
	_, err := g.CreateNode(context.Background(), fileNode("p1", "src/a.go", "h1"))
	require.NoError(t, err)

	o := manifestOrchestrator(g)
	root := t.TempDir()
	pc := models.ProjectContext{ProjectID: "p1", RootPath: root}

	drift, err := o.DetectDrift(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, 0, drift)

	loaded, err := LoadManifest(root)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "h1", loaded.Hashes["src/a.go"])
}
