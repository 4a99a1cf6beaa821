package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/models"
)

func newTestRegistry() *Registry {
	return NewRegistry(index.NewRegistry(0, nil), nil, false, nil)
}

func TestSetWorkspaceNormalizesProjectID(t *testing.T) {
	r := newTestRegistry()

	pc, err := r.SetWorkspace(context.Background(), "s1", models.ProjectContext{
		ProjectID: "MyApp", RootPath: "/tmp/myapp",
	})
	require.NoError(t, err)
	assert.Equal(t, "myapp", pc.ProjectID)
}

func TestSetWorkspaceDerivesProjectIDFromRoot(t *testing.T) {
	r := newTestRegistry()

	pc, err := r.SetWorkspace(context.Background(), "s1", models.ProjectContext{
		RootPath: "/home/dev/Billing-Service",
	})
	require.NoError(t, err)
	assert.Equal(t, "billing-service", pc.ProjectID)
}

func TestSetWorkspaceRequiresRoot(t *testing.T) {
	r := newTestRegistry()
	_, err := r.SetWorkspace(context.Background(), "s1", models.ProjectContext{ProjectID: "x"})
	assert.Error(t, err)
}

func TestResolvePerSessionIsolation(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.SetWorkspace(ctx, "s1", models.ProjectContext{ProjectID: "a", RootPath: "/tmp/a"})
	require.NoError(t, err)
	_, err = r.SetWorkspace(ctx, "s2", models.ProjectContext{ProjectID: "b", RootPath: "/tmp/b"})
	require.NoError(t, err)

	got1, ok := r.Resolve("s1")
	require.True(t, ok)
	assert.Equal(t, "a", got1.ProjectID)

	got2, ok := r.Resolve("s2")
	require.True(t, ok)
	assert.Equal(t, "b", got2.ProjectID)
}

func TestResolveFallsBackToDefaultContext(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.SetWorkspace(ctx, "", models.ProjectContext{ProjectID: "shared", RootPath: "/tmp/shared"})
	require.NoError(t, err)

	got, ok := r.Resolve("unseen-session")
	require.True(t, ok)
	assert.Equal(t, "shared", got.ProjectID)
}

func TestResolveUnboundSession(t *testing.T) {
	r := newTestRegistry()
	_, ok := r.Resolve("nope")
	assert.False(t, ok)
}

func TestTerminateDropsBinding(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.SetWorkspace(ctx, "s1", models.ProjectContext{ProjectID: "a", RootPath: "/tmp/a"})
	require.NoError(t, err)

	r.Terminate("s1")
	_, ok := r.Resolve("s1")
	assert.False(t, ok)
}

func TestSetWorkspaceReplacementIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	first, err := r.SetWorkspace(ctx, "s1", models.ProjectContext{ProjectID: "a", RootPath: "/tmp/a"})
	require.NoError(t, err)
	second, err := r.SetWorkspace(ctx, "s1", models.ProjectContext{ProjectID: "a", RootPath: "/tmp/a"})
	require.NoError(t, err)

	assert.Equal(t, first.BoundAt, second.BoundAt)
}
