package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/vector"
)

const testProject = "proj-1"

type fakeEmbedder struct {
	vector  []float32
	matches []vector.Match
	err     error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) FindSimilar(ctx context.Context, projectID string, queryVector []float32, k int) ([]vector.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func seedIndex(t *testing.T) *index.Registry {
	t.Helper()
	reg := index.NewRegistry(5, nil)
	idx, err := reg.Get(context.Background(), testProject)
	require.NoError(t, err)

	idx.AddNode(models.GraphNode{
		ID: "fn-1", ProjectID: testProject, Label: models.LabelFunction,
		Properties: map[string]interface{}{"name": "FindSimilarNodes", "scope_path": "pkg/retrieval", "signature": "func FindSimilarNodes(ctx context.Context) error"},
	})
	idx.AddNode(models.GraphNode{
		ID: "fn-2", ProjectID: testProject, Label: models.LabelFunction,
		Properties: map[string]interface{}{"name": "WriteFile", "scope_path": "pkg/storage", "signature": "func WriteFile(path string) error"},
	})
	idx.AddNode(models.GraphNode{
		ID: "file-1", ProjectID: testProject, Label: models.LabelFile,
		Properties: map[string]interface{}{"name": "retriever.go", "scope_path": "pkg/retrieval"},
	})
	idx.AddEdge(models.GraphEdge{ProjectID: testProject, Type: models.EdgeCalls, From: "fn-1", To: "fn-2"})
	idx.AddEdge(models.GraphEdge{ProjectID: testProject, Type: models.EdgeContains, From: "file-1", To: "fn-1"})

	return reg
}

func TestQueryTooShortRejected(t *testing.T) {
	reg := seedIndex(t)
	r := New(nil, reg, nil)

	_, err := r.Query(context.Background(), Query{ProjectID: testProject, Text: "a an is"})
	require.Error(t, err)
}

func TestQueryLexicalFallbackWhenNoEmbedder(t *testing.T) {
	reg := seedIndex(t)
	r := New(nil, reg, nil)

	res, err := r.Query(context.Background(), Query{ProjectID: testProject, Text: "find similar nodes", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "lexical_fallback", res.Mode)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "fn-1", res.Hits[0].ID)
}

func TestQueryHybridWithVectorMatches(t *testing.T) {
	reg := seedIndex(t)
	embedder := &fakeEmbedder{
		vector: []float32{0.1, 0.2},
		matches: []vector.Match{
			{OriginalID: "fn-1", Score: 0.95},
		},
	}
	r := New(embedder, reg, nil)

	res, err := r.Query(context.Background(), Query{ProjectID: testProject, Text: "find similar nodes", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "hybrid", res.Mode)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "fn-1", res.Hits[0].ID)
}

func TestQueryEmptyIndexReturnsNoHitsNotError(t *testing.T) {
	reg := index.NewRegistry(5, nil)
	r := New(nil, reg, nil)

	res, err := r.Query(context.Background(), Query{ProjectID: "empty-project", Text: "find similar nodes"})
	require.NoError(t, err)
	assert.Equal(t, "lexical_fallback", res.Mode)
	assert.Empty(t, res.Hits)
}

func TestQueryDebugProfileIncludesPayload(t *testing.T) {
	reg := seedIndex(t)
	r := New(nil, reg, nil)

	res, err := r.Query(context.Background(), Query{ProjectID: testProject, Text: "find similar nodes", Profile: ProfileDebug})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.NotNil(t, res.Hits[0].Payload)
}
