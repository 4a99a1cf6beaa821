package episode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/models"
)

const testProject = "proj-1"

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

func (f *fakeGraph) edgesOfType(t models.EdgeType) []models.GraphEdge {
	var out []models.GraphEdge
	for _, e := range f.edges {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func addFileNode(f *fakeGraph, id string) {
	f.nodes[id] = models.GraphNode{
		ID:        id,
		ProjectID: testProject,
		Label:     models.LabelFile,
		Properties: map[string]interface{}{
			"path": id,
		},
	}
}

func TestAddChainsNextEpisode(t *testing.T) {
	g := newFakeGraph()
	engine := New(g, nil)
	ctx := context.Background()

	first, err := engine.Add(ctx, testProject, AddInput{
		AgentID: "agent-x", SessionID: "s1", Type: models.EpisodeObservation, Content: "looked at auth flow",
	})
	require.NoError(t, err)

	second, err := engine.Add(ctx, testProject, AddInput{
		AgentID: "agent-x", SessionID: "s1", Type: models.EpisodeEdit, Content: "changed token refresh",
	})
	require.NoError(t, err)

	chains := g.edgesOfType(models.EdgeNextEpisode)
	require.Len(t, chains, 1)
	assert.Equal(t, first, chains[0].From)
	assert.Equal(t, second, chains[0].To)
}

func TestAddDoesNotChainAcrossSessions(t *testing.T) {
	g := newFakeGraph()
	engine := New(g, nil)
	ctx := context.Background()

	_, err := engine.Add(ctx, testProject, AddInput{AgentID: "agent-x", SessionID: "s1", Content: "a"})
	require.NoError(t, err)
	_, err = engine.Add(ctx, testProject, AddInput{AgentID: "agent-x", SessionID: "s2", Content: "b"})
	require.NoError(t, err)

	assert.Empty(t, g.edgesOfType(models.EdgeNextEpisode))
}

func TestAddLinksExistingEntitiesOnly(t *testing.T) {
	g := newFakeGraph()
	addFileNode(g, testProject+":FILE:src/auth.ts")
	engine := New(g, nil)

	_, err := engine.Add(context.Background(), testProject, AddInput{
		AgentID: "agent-x", SessionID: "s1", Content: "touched auth",
		Entities: []string{testProject + ":FILE:src/auth.ts", testProject + ":FILE:missing.ts"},
	})
	require.NoError(t, err)

	involves := g.edgesOfType(models.EdgeInvolves)
	require.Len(t, involves, 1)
	assert.Equal(t, testProject+":FILE:src/auth.ts", involves[0].To)
}

func TestRecallExcludesSensitive(t *testing.T) {
	g := newFakeGraph()
	engine := New(g, nil)
	ctx := context.Background()

	_, err := engine.Add(ctx, testProject, AddInput{AgentID: "agent-x", SessionID: "s1", Content: "public fact"})
	require.NoError(t, err)
	_, err = engine.Add(ctx, testProject, AddInput{AgentID: "agent-x", SessionID: "s1", Content: "secret token value", Sensitive: true})
	require.NoError(t, err)

	got, err := engine.Recall(ctx, RecallQuery{ProjectID: testProject, AgentID: "agent-x", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "public fact", got[0].Content)
}

func TestRecallRanksLexicalMatchesFirst(t *testing.T) {
	g := newFakeGraph()
	engine := New(g, nil)
	ctx := context.Background()

	_, err := engine.Add(ctx, testProject, AddInput{AgentID: "agent-x", SessionID: "s1", Content: "refactored payment retry logic"})
	require.NoError(t, err)
	_, err = engine.Add(ctx, testProject, AddInput{AgentID: "agent-x", SessionID: "s1", Content: "reviewed dashboard styles"})
	require.NoError(t, err)

	got, err := engine.Recall(ctx, RecallQuery{ProjectID: testProject, AgentID: "agent-x", Text: "payment retry", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got[0].Content, "payment")
}

func TestRecallFiltersByTypeAndSince(t *testing.T) {
	g := newFakeGraph()
	engine := New(g, nil)
	ctx := context.Background()

	_, err := engine.Add(ctx, testProject, AddInput{AgentID: "agent-x", SessionID: "s1", Type: models.EpisodeError, Content: "build broke"})
	require.NoError(t, err)
	_, err = engine.Add(ctx, testProject, AddInput{AgentID: "agent-x", SessionID: "s1", Type: models.EpisodeDecision, Content: "chose sqlite"})
	require.NoError(t, err)

	got, err := engine.Recall(ctx, RecallQuery{
		ProjectID: testProject, AgentID: "agent-x",
		Types: []models.EpisodeType{models.EpisodeError}, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.EpisodeError, got[0].Type)

	got, err = engine.Recall(ctx, RecallQuery{
		ProjectID: testProject, AgentID: "agent-x",
		Since: time.Now().Add(time.Hour), Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReflectEmitsPatternsAndLearnings(t *testing.T) {
	g := newFakeGraph()
	authID := testProject + ":FILE:src/auth.ts"
	userID := testProject + ":FILE:src/user.ts"
	addFileNode(g, authID)
	addFileNode(g, userID)
	engine := New(g, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := engine.Add(ctx, testProject, AddInput{
			AgentID: "agent-x", SessionID: "s1", Content: "worked on auth", Entities: []string{authID},
		})
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := engine.Add(ctx, testProject, AddInput{
			AgentID: "agent-x", SessionID: "s1", Content: "worked on user", Entities: []string{userID},
		})
		require.NoError(t, err)
	}

	result, err := engine.Reflect(ctx, ReflectScope{ProjectID: testProject, AgentID: "agent-x", SessionID: "s1"})
	require.NoError(t, err)

	require.NotEmpty(t, result.Patterns)
	assert.Equal(t, EntityPattern{Entity: authID, Count: 6}, result.Patterns[0])
	assert.Equal(t, EntityPattern{Entity: userID, Count: 2}, result.Patterns[1])
	assert.LessOrEqual(t, len(result.LearningIDs), 3)
	require.NotEmpty(t, result.LearningIDs)

	reflection, ok := g.nodes[result.EpisodeID]
	require.True(t, ok)
	assert.Equal(t, string(models.EpisodeReflection), reflection.Properties["type"])

	var applies int
	for _, e := range g.edgesOfType(models.EdgeAppliesTo) {
		if e.To == authID || e.To == userID {
			applies++
		}
	}
	assert.Equal(t, len(result.LearningIDs), applies)
}

func TestReflectWithNoEpisodesIsNotFound(t *testing.T) {
	engine := New(newFakeGraph(), nil)
	_, err := engine.Reflect(context.Background(), ReflectScope{ProjectID: testProject, AgentID: "ghost"})
	assert.Error(t, err)
}
