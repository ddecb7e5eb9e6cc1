package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	target := Target{Store: "players", Scope: "global", Key: "p1"}

	_, err := store.Get(ctx, target)
	assert.True(t, IsNotFound(err))

	require.NoError(t, store.Set(ctx, target, []byte("v1")))

	val, err := store.Get(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)

	require.NoError(t, store.Set(ctx, target, []byte("v2")))

	val, err = store.Get(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), val)

	require.NoError(t, store.Delete(ctx, target))
	require.NoError(t, store.Delete(ctx, target))

	_, err = store.Get(ctx, target)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	target := Target{Store: "players", Scope: "global", Key: "p1"}
	input := []byte("original")

	require.NoError(t, store.Set(ctx, target, input))
	input[0] = 'X'

	val, err := store.Get(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), val)

	val[0] = 'Y'

	again, err := store.Get(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestMemoryStore_ListKeysPagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, key := range []string{"a1", "a2", "a3", "b1"} {
		require.NoError(t, store.Set(ctx, Target{Store: "players", Scope: "global", Key: key}, []byte("v")))
	}

	page, err := store.ListKeys(ctx, "players", "global", "a", 2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, page.Keys)
	require.NotEmpty(t, page.Cursor)

	page, err = store.ListKeys(ctx, "players", "global", "a", 2, page.Cursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"a3"}, page.Keys)
	assert.Empty(t, page.Cursor)
}

func TestMemoryStore_ListKeysBadCursor(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.ListKeys(context.Background(), "players", "global", "", 10, "bogus")
	require.Error(t, err)

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, code)
}

func TestMemoryStore_FaultInjection(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	target := Target{Store: "players", Scope: "global", Key: "p1"}
	injected := NewStoreError(CodeUnavailable, "set", target, errors.New("connection reset"))

	store.FailNext("set", injected, injected)

	require.ErrorIs(t, store.Set(ctx, target, []byte("v")), injected)
	require.ErrorIs(t, store.Set(ctx, target, []byte("v")), injected)

	// Queue drained, calls succeed again.
	require.NoError(t, store.Set(ctx, target, []byte("v")))
}

func TestMemoryStore_LatencyHonorsContext(t *testing.T) {
	store := NewMemoryStore()
	store.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := store.Get(ctx, Target{Store: "players", Scope: "global", Key: "p1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
