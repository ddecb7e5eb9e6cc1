package datastore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborkv/dsgate/internal/testutil"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, client := testutil.NewMiniredisClient(t)

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	return NewRedisStoreWithClient(log, client, "dsgate"), mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	target := Target{Store: "players", Scope: "global", Key: "p1"}

	require.NoError(t, store.Set(ctx, target, []byte(`{"name":"alice"}`)))

	// Stored under the namespaced key.
	raw, err := mr.Get("dsgate:players:global:p1")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"alice"}`, raw)

	val, err := store.Get(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"name":"alice"}`), val)
}

func TestRedisStore_GetMissingIsNotFound(t *testing.T) {
	store, _ := newRedisTestStore(t)

	_, err := store.Get(context.Background(), Target{Store: "players", Scope: "global", Key: "absent"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, code)
}

func TestRedisStore_DeleteIsIdempotent(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	target := Target{Store: "players", Scope: "global", Key: "p1"}
	require.NoError(t, store.Set(ctx, target, []byte("x")))

	require.NoError(t, store.Delete(ctx, target))
	require.NoError(t, store.Delete(ctx, target), "deleting an absent key is not an error")

	_, err := store.Get(ctx, target)
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_ListKeys(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"alpha", "beta", "alpine"} {
		require.NoError(t, store.Set(ctx, Target{Store: "players", Scope: "global", Key: key}, []byte("v")))
	}

	// Other scopes and stores never leak into the listing.
	require.NoError(t, store.Set(ctx, Target{Store: "players", Scope: "eu", Key: "alpha"}, []byte("v")))
	require.NoError(t, store.Set(ctx, Target{Store: "items", Scope: "global", Key: "alpha"}, []byte("v")))

	collected := make(map[string]bool)
	cursor := ""

	for {
		page, err := store.ListKeys(ctx, "players", "global", "al", 100, cursor)
		require.NoError(t, err)

		for _, key := range page.Keys {
			collected[key] = true
		}

		if page.Cursor == "" {
			break
		}

		cursor = page.Cursor
	}

	assert.Equal(t, map[string]bool{"alpha": true, "alpine": true}, collected)
}

func TestRedisStore_ListKeysBadCursor(t *testing.T) {
	store, _ := newRedisTestStore(t)

	_, err := store.ListKeys(context.Background(), "players", "global", "", 10, "not-a-cursor")
	require.Error(t, err)

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, code)
}

func TestRedisStore_ConnectionFailureIsUnavailable(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	target := Target{Store: "players", Scope: "global", Key: "p1"}
	require.NoError(t, store.Set(ctx, target, []byte("x")))

	mr.Close()

	_, err := store.Get(ctx, target)
	require.Error(t, err)

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeUnavailable, code)
}

func TestClassifyRedisError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{name: "oom", err: errors.New("OOM command not allowed when used memory > 'maxmemory'"), expected: CodeThrottled},
		{name: "max requests", err: errors.New("ERR max requests limit exceeded"), expected: CodeThrottled},
		{name: "loading", err: errors.New("LOADING Redis is loading the dataset in memory"), expected: CodeUnavailable},
		{name: "timeout", err: errors.New("i/o timeout"), expected: CodeUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, expected: CodeUnavailable},
		{name: "unknown", err: errors.New("ERR unknown command"), expected: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyRedisError(tt.err))
		})
	}
}
