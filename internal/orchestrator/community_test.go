package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/build"
	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/parser"
)

func seedFileGraph(idx *index.Index, projectID string, deps map[string][]string) {
	for path := range deps {
		idx.AddNode(models.GraphNode{
			ID:         build.NodeID(projectID, models.LabelFile, path),
			ProjectID:  projectID,
			Label:      models.LabelFile,
			Properties: map[string]interface{}{"path": path},
		})
	}
	for from, targets := range deps {
		for _, to := range targets {
			idx.AddEdge(models.GraphEdge{
				ProjectID: projectID,
				Type:      models.EdgeDependsOn,
				From:      build.NodeID(projectID, models.LabelFile, from),
				To:        build.NodeID(projectID, models.LabelFile, to),
			})
		}
	}
}

func TestDetectCommunitiesGroupsConnectedFiles(t *testing.T) {
	g := newFakeGraph()
	o := New(DefaultConfig(), g, nil, parser.NewRegistry(), index.NewRegistry(5, nil), nil, nil, nil, nil)
	idx := index.New()

	// Two components: {a,b,c} linked by imports, {d,e} linked, f isolated.
	seedFileGraph(idx, "p1", map[string][]string{
		"src/a.ts": {"src/b.ts"},
		"src/b.ts": {"src/c.ts"},
		"src/c.ts": {},
		"src/d.ts": {"src/e.ts"},
		"src/e.ts": {},
		"src/f.ts": {},
	})

	require.NoError(t, o.detectCommunities(context.Background(), "p1", idx))

	communities := idx.GetNodesByLabel(models.LabelCommunity)
	require.Len(t, communities, 2)

	sizes := map[string]int{}
	for _, c := range communities {
		anchor := c.Properties["anchor"].(string)
		sizes[anchor] = c.Properties["size"].(int)
	}
	assert.Equal(t, map[string]int{"src/a.ts": 3, "src/d.ts": 2}, sizes)

	// Every member is linked to its community; the isolated file is not.
	belongs := 0
	for _, path := range []string{"src/a.ts", "src/b.ts", "src/c.ts", "src/d.ts", "src/e.ts", "src/f.ts"} {
		id := build.NodeID("p1", models.LabelFile, path)
		for _, e := range idx.GetEdgesFrom(id) {
			if e.Type == models.EdgeBelongsTo {
				belongs++
				assert.NotEqual(t, "src/f.ts", path)
			}
		}
	}
	assert.Equal(t, 5, belongs)

	// The community nodes were persisted, not just indexed.
	persisted := 0
	for _, n := range g.nodes {
		if n.Label == models.LabelCommunity {
			persisted++
		}
	}
	assert.Equal(t, 2, persisted)
}

func TestDetectCommunitiesIsStableAcrossRebuilds(t *testing.T) {
	g := newFakeGraph()
	o := New(DefaultConfig(), g, nil, parser.NewRegistry(), index.NewRegistry(5, nil), nil, nil, nil, nil)
	idx := index.New()

	seedFileGraph(idx, "p1", map[string][]string{
		"src/a.ts": {"src/b.ts"},
		"src/b.ts": {},
	})

	require.NoError(t, o.detectCommunities(context.Background(), "p1", idx))
	first := idx.GetNodesByLabel(models.LabelCommunity)
	require.Len(t, first, 1)

	require.NoError(t, o.detectCommunities(context.Background(), "p1", idx))
	second := idx.GetNodesByLabel(models.LabelCommunity)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestDetectCommunitiesNoFilesIsNoop(t *testing.T) {
	g := newFakeGraph()
	o := New(DefaultConfig(), g, nil, parser.NewRegistry(), index.NewRegistry(5, nil), nil, nil, nil, nil)
	assert.NoError(t, o.detectCommunities(context.Background(), "p1", index.New()))
}
