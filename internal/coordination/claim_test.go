package coordination

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

func TestClaimSucceedsOnUnheldTarget(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)

	res, err := e.Claim(context.Background(), testProject, ClaimInput{
		AgentID: "agent-a", TargetID: "fn-1", Intent: "refactor",
	})
	require.NoError(t, err)
	assert.Equal(t, ClaimStatusOK, res.Status)
	assert.NotEmpty(t, res.ClaimID)
	assert.Equal(t, unknownVersion, res.TargetVersionSHA)
}

func TestClaimConflictsWithDifferentAgent(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)
	ctx := context.Background()

	_, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", Intent: "refactor"})
	require.NoError(t, err)

	res, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-b", TargetID: "fn-1", Intent: "rewrite"})
	require.NoError(t, err)
	assert.Equal(t, ClaimStatusConflict, res.Status)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, "agent-a", res.Conflict.AgentID)
}

func TestClaimAllowsSameAgentReclaim(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)
	ctx := context.Background()

	_, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", Intent: "refactor"})
	require.NoError(t, err)

	res, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", Intent: "refactor again"})
	require.NoError(t, err)
	assert.Equal(t, ClaimStatusOK, res.Status)
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)
	ctx := context.Background()

	claim, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", Intent: "refactor"})
	require.NoError(t, err)

	first, err := e.Release(ctx, testProject, claim.ClaimID, "done")
	require.NoError(t, err)
	assert.True(t, first.Found)
	assert.False(t, first.AlreadyClosed)

	second, err := e.Release(ctx, testProject, claim.ClaimID, "done")
	require.NoError(t, err)
	assert.True(t, second.Found)
	assert.True(t, second.AlreadyClosed)
}

func TestReleaseUnknownClaim(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)

	res, err := e.Release(context.Background(), testProject, "missing", "done")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestInvalidateStaleClosesClaimsBehindTouchedTarget(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)
	ctx := context.Background()

	g.nodes["fn-1"] = models.GraphNode{
		ID: "fn-1", ProjectID: testProject, Label: models.LabelFunction,
		Properties: map[string]interface{}{"valid_from": time.Now().Add(-time.Hour).Format(time.RFC3339)},
	}
	claim, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", Intent: "refactor"})
	require.NoError(t, err)

	touched := models.GraphNode{
		ID: "fn-1", ProjectID: testProject, Label: models.LabelFunction,
		Properties: map[string]interface{}{"valid_from": time.Now().Add(time.Hour).Format(time.RFC3339)},
	}
	require.NoError(t, e.InvalidateStale(ctx, testProject, []models.GraphNode{touched}))

	node, ok, err := g.GetNode(ctx, testProject, claim.ClaimID)
	require.NoError(t, err)
	require.True(t, ok)
	closed := nodeToClaim(node)
	assert.False(t, closed.Open())
	assert.Equal(t, models.InvalidationCodeChanged, closed.InvalidationReason)
}

func TestExpireOldClosesOldClaims(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)
	ctx := context.Background()

	claim, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", Intent: "refactor"})
	require.NoError(t, err)

	count, err := e.ExpireOld(ctx, testProject, -time.Hour) // anything is "older" than now+1h
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	node, _, err := g.GetNode(ctx, testProject, claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.InvalidationExpired, nodeToClaim(node).InvalidationReason)
}

func TestOnTaskCompletedClosesMatchingClaims(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)
	ctx := context.Background()

	claim, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", TaskID: "task-1", Intent: "refactor"})
	require.NoError(t, err)

	require.NoError(t, e.OnTaskCompleted(ctx, testProject, "task-1", "agent-a"))

	node, _, err := g.GetNode(ctx, testProject, claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.InvalidationTaskCompleted, nodeToClaim(node).InvalidationReason)
}

func TestOverviewReportsConflictingPairs(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)
	ctx := context.Background()

	_, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", Intent: "a"})
	require.NoError(t, err)
	// second agent can't claim the same target (conflict), so seed a second
	// claim directly on a node to exercise overview's conflict-pair logic
	// without relying on Claim's own conflict rejection.
	other := models.Claim{
		ID: "proj-1:claim:manual", ProjectID: testProject, AgentID: "agent-b",
		TargetID: "fn-1", Intent: "b", ValidFrom: time.Now(),
	}
	_, err = g.CreateNode(ctx, claimToNode(other))
	require.NoError(t, err)

	overview, err := e.Overview(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, 2, overview.Total)
	require.Len(t, overview.Conflicting, 1)
	assert.Len(t, overview.PerAgent, 2)
}

func TestStatusReportsActiveClaimsAndCurrentTask(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)
	ctx := context.Background()

	_, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", TaskID: "task-9", Intent: "refactor"})
	require.NoError(t, err)

	status, err := e.Status(ctx, testProject, "agent-a")
	require.NoError(t, err)
	require.Len(t, status.ActiveClaims, 1)
	assert.Equal(t, "task-9", status.CurrentTask)
}

func TestExpireOldAfterRetainsOtherClaimUntouched(t *testing.T) {
	g := newFakeGraph()
	e := New(g, nil)
	ctx := context.Background()

	_, err := e.Claim(ctx, testProject, ClaimInput{AgentID: "agent-a", TargetID: "fn-1", Intent: "refactor"})
	require.NoError(t, err)

	count, err := e.ExpireOld(ctx, testProject, time.Hour) // claim just created, not older than 1h ago
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
