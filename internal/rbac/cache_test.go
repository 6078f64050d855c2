package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingOverrides struct {
	rows  []Override
	calls int
}

func (c *countingOverrides) Overrides(ctx context.Context, role Role) ([]Override, error) {
	c.calls++
	return c.rows, nil
}

func TestCachedOverrideStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := &countingOverrides{rows: []Override{
		{Capability: Capability{"trips", "approve"}, Granted: true},
	}}
	store := NewCachedOverrideStore(backing, client, time.Minute)
	ctx := context.Background()

	first, err := store.Overrides(ctx, RoleSupervisor)
	require.NoError(t, err)
	require.Equal(t, backing.rows, first)
	require.Equal(t, 1, backing.calls)

	second, err := store.Overrides(ctx, RoleSupervisor)
	require.NoError(t, err)
	require.Equal(t, backing.rows, second)
	require.Equal(t, 1, backing.calls, "second read should hit the cache")

	require.NoError(t, store.Invalidate(ctx, RoleSupervisor))
	_, err = store.Overrides(ctx, RoleSupervisor)
	require.NoError(t, err)
	require.Equal(t, 2, backing.calls)
}

func TestCachedOverrideStoreRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	backing := &countingOverrides{rows: []Override{
		{Capability: Capability{"documents", "review"}, Granted: true},
	}}
	store := NewCachedOverrideStore(backing, client, time.Minute)

	rows, err := store.Overrides(context.Background(), RoleSupervisor)
	require.NoError(t, err)
	require.Equal(t, backing.rows, rows)
}
