package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	r := NewRegistry(2, nil)
	ctx := context.Background()

	_, err := r.Get(ctx, "a")
	require.NoError(t, err)
	_, err = r.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, r.Resident())

	// touching "a" makes it most-recently-used
	_, err = r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.Resident())

	// "c" pushes out the least-recently-used ("b")
	_, err = r.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, r.Resident())
}

func TestRegistryEvictForcesReload(t *testing.T) {
	calls := 0
	loader := func(ctx context.Context, projectID string) (*Index, error) {
		calls++
		return New(), nil
	}
	r := NewRegistry(5, loader)
	ctx := context.Background()

	_, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second Get should hit the resident entry, not reload")

	r.Evict("a")
	_, err = r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "Get after Evict should reload")
}
