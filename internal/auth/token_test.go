package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mbyo2/vehicle-log-sys/internal/shared"
	_ "github.com/mbyo2/vehicle-log-sys/internal/testing/guard"
)

func testTokenStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, time.Hour), mr
}

func TestTokenIssueResolve(t *testing.T) {
	store, _ := testTokenStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "u-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "u-1", userID)
}

func TestTokenRevoke(t *testing.T) {
	store, _ := testTokenStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "u-1")
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, token))

	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTokenExpiry(t *testing.T) {
	store, mr := testTokenStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "u-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveUnknownToken(t *testing.T) {
	store, _ := testTokenStore(t)
	_, err := store.Resolve(context.Background(), "bogus")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
