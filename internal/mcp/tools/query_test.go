package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/build"
	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
)

const testProject = "proj-1"

func seedIndex(t *testing.T) *index.Registry {
	t.Helper()
	reg := index.NewRegistry(0, nil)
	idx, err := reg.Get(context.Background(), testProject)
	require.NoError(t, err)

	addFile := func(path string) string {
		id := build.NodeID(testProject, models.LabelFile, path)
		idx.AddNode(models.GraphNode{
			ID: id, ProjectID: testProject, Label: models.LabelFile,
			Properties: map[string]interface{}{"path": path},
		})
		return id
	}

	a := addFile("src/a.ts")
	b := addFile("src/b.ts")
	c := addFile("src/c.ts")
	test := addFile("src/__tests__/a.test.ts")

	// b depends on a, c depends on b, the test imports a.
	idx.AddEdge(models.GraphEdge{ProjectID: testProject, Type: models.EdgeDependsOn, From: b, To: a})
	idx.AddEdge(models.GraphEdge{ProjectID: testProject, Type: models.EdgeDependsOn, From: c, To: b})
	idx.AddEdge(models.GraphEdge{ProjectID: testProject, Type: models.EdgeDependsOn, From: test, To: a})

	fn := build.NodeID(testProject, models.LabelFunction, "a.ts:handleLogin:10")
	idx.AddNode(models.GraphNode{
		ID: fn, ProjectID: testProject, Label: models.LabelFunction,
		Properties: map[string]interface{}{"name": "handleLogin", "start_line": 10, "end_line": 30},
	})

	return reg
}

func boundCall(params map[string]interface{}) Call {
	return Call{
		SessionID: "s1",
		Project:   models.ProjectContext{ProjectID: testProject, RootPath: "/tmp/p"},
		Bound:     true,
		Params:    params,
	}
}

func TestImpactAnalyzeTransitiveDependents(t *testing.T) {
	tool := &ImpactAnalyze{Indices: seedIndex(t)}

	result, err := tool.Execute(context.Background(), boundCall(map[string]interface{}{
		"changed_files": []interface{}{"src/a.ts"},
	}))
	require.NoError(t, err)

	out := result.(map[string]interface{})
	dependents := out["dependents"].([]string)
	assert.ElementsMatch(t, []string{"src/b.ts", "src/c.ts", "src/__tests__/a.test.ts"}, dependents)

	tests := out["affected_tests"].([]string)
	assert.Equal(t, []string{"src/__tests__/a.test.ts"}, tests)
}

func TestImpactAnalyzeRequiresChangedFiles(t *testing.T) {
	tool := &ImpactAnalyze{Indices: seedIndex(t)}
	_, err := tool.Execute(context.Background(), boundCall(map[string]interface{}{}))
	assert.Error(t, err)
}

func TestResolveSymbolByCompositeID(t *testing.T) {
	reg := seedIndex(t)
	idx, err := reg.Get(context.Background(), testProject)
	require.NoError(t, err)

	id := build.NodeID(testProject, models.LabelFunction, "a.ts:handleLogin:10")
	node, ok := resolveSymbol(idx, testProject, id)
	require.True(t, ok)
	assert.Equal(t, id, node.ID)
}

func TestResolveSymbolByInferredName(t *testing.T) {
	reg := seedIndex(t)
	idx, err := reg.Get(context.Background(), testProject)
	require.NoError(t, err)

	// basename:name:line form: the name is the second-to-last segment when
	// the last segment is numeric.
	node, ok := resolveSymbol(idx, testProject, "a.ts:handleLogin:10")
	require.True(t, ok)
	assert.Equal(t, "handleLogin", node.Properties["name"])
}

func TestResolveSymbolMissing(t *testing.T) {
	reg := seedIndex(t)
	idx, err := reg.Get(context.Background(), testProject)
	require.NoError(t, err)

	_, ok := resolveSymbol(idx, testProject, "nothing:here:now")
	assert.False(t, ok)
}

func TestIsTestPath(t *testing.T) {
	cases := map[string]bool{
		"src/a_test.go":               true,
		"src/a.test.ts":               true,
		"src/__tests__/a.ts":          true,
		"tests/test_auth.py":          true,
		"src/a.ts":                    false,
		"src/contest.ts":              false,
	}
	for path, want := range cases {
		assert.Equal(t, want, isTestPath(path), path)
	}
}

func TestIntParamBoundsChecks(t *testing.T) {
	got, err := intParam(map[string]interface{}{"limit": float64(5)}, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	got, err = intParam(map[string]interface{}{}, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	_, err = intParam(map[string]interface{}{"limit": 2.5}, "limit", 10)
	assert.Error(t, err)

	_, err = intParam(map[string]interface{}{"limit": "five"}, "limit", 10)
	assert.Error(t, err)

	_, err = intParam(map[string]interface{}{"limit": float64(1 << 60)}, "limit", 10)
	assert.Error(t, err)
}

func TestCallProfileDefaults(t *testing.T) {
	assert.Equal(t, "balanced", Call{Params: map[string]interface{}{}}.Profile())
	assert.Equal(t, "compact", Call{Params: map[string]interface{}{"profile": "compact"}}.Profile())
	assert.Equal(t, "balanced", Call{Params: map[string]interface{}{"profile": "wat"}}.Profile())
}
