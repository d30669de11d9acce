package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, opts...), mr
}

func TestRedisPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, WithPrefix("test"))

	bp := testBlueprint("sess-1", "chain-1")
	require.NoError(t, store.PutBlueprint(ctx, bp))

	got, err := store.GetBlueprint(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, bp.Command, got.Command)
	assert.Equal(t, bp.Plan, got.Plan)

	byChain, err := store.GetBlueprintByChainID(ctx, "chain-1", false)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", byChain.SessionID)
}

func TestRedisNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	_, err := store.GetBlueprint(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetBlueprintByChainID(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteBlueprint(ctx, "missing"), ErrNotFound)
	_, err = store.GetBlueprint(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestRedisTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, WithTTL(time.Minute))

	require.NoError(t, store.PutBlueprint(ctx, testBlueprint("sess-1", "chain-1")))
	mr.FastForward(2 * time.Minute)

	_, err := store.GetBlueprint(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetBlueprintByChainID(ctx, "chain-1", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisDormantOnCompletion(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	bp := testBlueprint("sess-1", "chain-1")
	bp.CurrentStep = 3
	require.NoError(t, store.PutBlueprint(ctx, bp))

	_, err := store.GetBlueprintByChainID(ctx, "chain-1", false)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := store.GetBlueprintByChainID(ctx, "chain-1", true)
	require.NoError(t, err)
	assert.True(t, got.Dormant)
}

func TestRedisCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	require.NoError(t, store.PutBlueprint(ctx, testBlueprint("sess-1", "chain-1")))

	advanced := testBlueprint("sess-1", "chain-1")
	advanced.CurrentStep = 2
	require.NoError(t, store.CompareAndSwap(ctx, "sess-1", 1, advanced))

	got, err := store.GetBlueprint(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStep)

	stale := testBlueprint("sess-1", "chain-1")
	stale.CurrentStep = 2
	assert.ErrorIs(t, store.CompareAndSwap(ctx, "sess-1", 1, stale), ErrConflict)
	assert.ErrorIs(t, store.CompareAndSwap(ctx, "missing", 1, advanced), ErrNotFound)
}

func TestRedisConcurrentCASSingleWinner(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	require.NoError(t, store.PutBlueprint(ctx, testBlueprint("sess-1", "chain-1")))

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bp := testBlueprint("sess-1", "chain-1")
			bp.CurrentStep = 2
			results <- store.CompareAndSwap(ctx, "sess-1", 1, bp)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)

	got, err := store.GetBlueprint(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStep)
}

func TestRedisChainContext(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	bp := testBlueprint("sess-1", "chain-1")
	bp.RecordStepResult("draft", "output one")
	require.NoError(t, store.PutBlueprint(ctx, bp))

	vars, err := store.GetChainContext(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"draft": "output one"}, vars)
}
