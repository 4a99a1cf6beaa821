package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/llm"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/vector"
)

type fakeClient struct {
	enabled bool
	vectors map[string][]float32 // text -> vector
}

func (f *fakeClient) IsEnabled() bool { return f.enabled }

func (f *fakeClient) Embed(ctx context.Context, texts []string) ([]llm.EmbeddingResult, error) {
	out := make([]llm.EmbeddingResult, len(texts))
	for i, t := range texts {
		out[i] = llm.EmbeddingResult{Index: i, Vector: f.vectors[t], TokensUsed: len(t)}
	}
	return out, nil
}

type fakeStore struct {
	upserts []models.Embedding
}

func (f *fakeStore) Upsert(ctx context.Context, embeddings []models.Embedding) error {
	f.upserts = append(f.upserts, embeddings...)
	return nil
}
func (f *fakeStore) Query(ctx context.Context, projectID string, queryVector []float32, kind string, topK int) ([]vector.Match, error) {
	return nil, nil
}
func (f *fakeStore) CountProject(ctx context.Context, projectID string) (int, error) {
	count := 0
	for _, e := range f.upserts {
		if e.ProjectID == projectID {
			count++
		}
	}
	return count, nil
}
func (f *fakeStore) DeleteProject(ctx context.Context, projectID string) error { return nil }
func (f *fakeStore) HealthCheck(ctx context.Context) error                     { return nil }
func (f *fakeStore) Close()                                                   {}

func TestEmbedNodesSkipsWhenClientDisabled(t *testing.T) {
	store := &fakeStore{}
	e := New(&fakeClient{enabled: false}, store, nil, Config{}, nil)

	err := e.EmbedNodes(context.Background(), "proj1", []models.GraphNode{
		{ID: "proj1:FUNCTION:foo.go:Run:1", ProjectID: "proj1", Label: models.LabelFunction, Properties: map[string]interface{}{"name": "Run"}},
	})
	require.NoError(t, err)
	assert.Empty(t, store.upserts)
}

func TestEmbedNodesOnlyEmbedsCodeSymbols(t *testing.T) {
	fileNode := models.GraphNode{ID: "proj1:FILE:foo.go", ProjectID: "proj1", Label: models.LabelFile}
	fnNode := models.GraphNode{
		ID: "proj1:FUNCTION:foo.go:Run:1", ProjectID: "proj1", Label: models.LabelFunction,
		Properties: map[string]interface{}{"name": "Run", "scope_path": "foo.go"},
	}
	text := textForNode(fnNode)

	client := &fakeClient{enabled: true, vectors: map[string][]float32{text: {1, 0, 0}}}
	store := &fakeStore{}
	e := New(client, store, nil, Config{}, nil)

	err := e.EmbedNodes(context.Background(), "proj1", []models.GraphNode{fileNode, fnNode})
	require.NoError(t, err)
	require.Len(t, store.upserts, 1)
	assert.Equal(t, fnNode.ID, store.upserts[0].OriginalID)
	assert.Equal(t, "proj1", store.upserts[0].ProjectID)
}

func TestFindSimilarFallsBackToCacheWhenStoreEmpty(t *testing.T) {
	fnNode := models.GraphNode{
		ID: "proj1:FUNCTION:foo.go:Run:1", ProjectID: "proj1", Label: models.LabelFunction,
		Properties: map[string]interface{}{"name": "Run", "scope_path": "foo.go"},
	}
	text := textForNode(fnNode)
	client := &fakeClient{enabled: true, vectors: map[string][]float32{text: {1, 0, 0}}}
	store := &fakeStore{}
	e := New(client, store, nil, Config{}, nil)

	require.NoError(t, e.EmbedNodes(context.Background(), "proj1", []models.GraphNode{fnNode}))

	matches, err := e.FindSimilar(context.Background(), "proj1", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, fnNode.ID, matches[0].OriginalID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestFindSimilarBySymbolNotFound(t *testing.T) {
	e := New(&fakeClient{enabled: true}, &fakeStore{}, nil, Config{}, nil)
	_, err := e.FindSimilarBySymbol(context.Background(), "proj1", "proj1:FUNCTION:missing", 5)
	assert.Error(t, err)
}

func TestHashIDStable(t *testing.T) {
	a := HashID("proj1:FUNCTION:foo.go:Run:1")
	b := HashID("proj1:FUNCTION:foo.go:Run:1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashID("proj1:FUNCTION:foo.go:Other:2"))
}
