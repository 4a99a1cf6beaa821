package build

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/models"
)

type fakeResolver struct {
	resolved map[string]string
}

func (f fakeResolver) Resolve(fromPath, raw string) (string, bool) {
	p, ok := f.resolved[raw]
	return p, ok
}

func TestNodeIDRoundTrip(t *testing.T) {
	id := NodeID("proj1", models.LabelFunction, "main.go:Run:42")
	projectID, kind, local, err := ParseNodeID(id)
	require.NoError(t, err)
	assert.Equal(t, "proj1", projectID)
	assert.Equal(t, models.LabelFunction, kind)
	assert.Equal(t, "main.go:Run:42", local)
}

func TestInferredName(t *testing.T) {
	assert.Equal(t, "Run", InferredName("main.go:Run:42"))
	assert.Equal(t, "opaque", InferredName("opaque"))
}

func TestBuildProducesFileFunctionAndContainsEdge(t *testing.T) {
	b := New(fakeResolver{})
	pf := models.ParsedFile{
		ProjectID:   "proj1",
		Path:        "pkg/server.go",
		Language:    "go",
		ContentHash: "abc123",
		Symbols: []models.Symbol{
			{Kind: models.LabelFunction, Name: "Serve", ScopePath: "pkg", StartLine: 10, EndLine: 20, Signature: "func Serve()"},
		},
	}

	m, err := b.Build(pf, time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, m.Nodes, 2)
	require.Len(t, m.Edges, 1)

	fileNode := m.Nodes[0]
	assert.Equal(t, models.LabelFile, fileNode.Label)
	assert.Equal(t, "proj1:FILE:pkg/server.go", fileNode.ID)

	fnNode := m.Nodes[1]
	assert.Equal(t, models.LabelFunction, fnNode.Label)
	assert.Equal(t, "Serve", fnNode.Properties["name"])

	edge := m.Edges[0]
	assert.Equal(t, models.EdgeContains, edge.Type)
	assert.Equal(t, fileNode.ID, edge.From)
	assert.Equal(t, fnNode.ID, edge.To)
}

func TestBuildStampsSymbolVersions(t *testing.T) {
	b := New(fakeResolver{})
	pf := models.ParsedFile{
		ProjectID:   "proj1",
		Path:        "pkg/server.go",
		Language:    "go",
		ContentHash: "abc123",
		Symbols: []models.Symbol{
			{Kind: models.LabelFunction, Name: "Serve", StartLine: 10, EndLine: 20},
			{Kind: models.LabelClass, Name: "Handler", ScopePath: "pkg", StartLine: 30, EndLine: 60},
		},
	}

	m, err := b.Build(pf, time.Unix(1000, 0))
	require.NoError(t, err)
	require.Len(t, m.Nodes, 3)

	fn := m.Nodes[1]
	assert.Equal(t, "abc123", fn.Properties["content_hash"])
	assert.NotEmpty(t, fn.Properties["valid_from"])
	assert.Equal(t, "pkg/server.go::Serve", fn.Properties["scip_id"])

	cls := m.Nodes[2]
	assert.Equal(t, "pkg/server.go#pkg.Handler", cls.Properties["scip_id"])
}

func TestBuildDependsOnEdgeForResolvedImport(t *testing.T) {
	resolver := fakeResolver{resolved: map[string]string{"./util": "pkg/util.go"}}
	b := New(resolver)
	pf := models.ParsedFile{
		ProjectID: "proj1",
		Path:      "pkg/server.go",
		Language:  "go",
		Imports:   []models.ImportRef{{Raw: "./util", StartLine: 1, EndLine: 1}},
	}

	m, err := b.Build(pf, time.Unix(0, 0))
	require.NoError(t, err)

	var sawDependsOn bool
	for _, e := range m.Edges {
		if e.Type == models.EdgeDependsOn {
			sawDependsOn = true
			assert.Equal(t, "proj1:FILE:pkg/util.go", e.To)
		}
	}
	assert.True(t, sawDependsOn, "expected a DEPENDS_ON edge for a resolved import")
}

func TestBuildFailsForParseError(t *testing.T) {
	b := New(nil)
	_, err := b.Build(models.ParsedFile{Path: "broken.go", Err: assertErr{}}, time.Now())
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "parse failed" }
