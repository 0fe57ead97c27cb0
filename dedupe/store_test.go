package dedupe

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/michaelpento.lv/flashscan/cache"
	"github.com/michaelpento.lv/flashscan/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreReserveFinalize(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	store, err := NewDefaultMemoryStore(time.Minute, cache.WithClock(clock))
	require.NoError(t, err)
	ctx := context.Background()

	rec := &types.SubmissionRecord{ID: "0xabc", State: types.RecordExecuting}
	ok, err := store.Reserve(ctx, rec.ID, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, rec.ID, &types.SubmissionRecord{ID: rec.ID})
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must be refused")

	done := *rec
	done.State = types.RecordFailed
	require.NoError(t, store.Finalize(ctx, rec.ID, &done))

	got, ok, err := store.Lookup(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RecordFailed, got.State)

	now = now.Add(time.Minute)
	_, ok, err = store.Lookup(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreFullRefusesReservation(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store, err := NewDefaultMemoryStore(time.Minute,
		cache.WithClock(func() time.Time { return now }),
		cache.WithShards(1), cache.WithCapacity(2))
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		ok, err := store.Reserve(ctx, id, &types.SubmissionRecord{ID: id})
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := store.Reserve(ctx, "c", &types.SubmissionRecord{ID: "c"})
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cache.ErrFull)
	assert.False(t, ok)

	// the earlier reservations are untouched
	ok, err = store.Reserve(ctx, "a", &types.SubmissionRecord{ID: "a"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreFinalizeAfterExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store, err := NewDefaultMemoryStore(time.Second, cache.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Reserve(ctx, "id", &types.SubmissionRecord{ID: "id"})
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	assert.NoError(t, store.Finalize(ctx, "id", &types.SubmissionRecord{ID: "id", State: types.RecordExecuted}))
	assert.Equal(t, 0, store.Cache().Len())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("FLASHSCAN_TEST_REDIS")
	if addr == "" {
		t.Skip("FLASHSCAN_TEST_REDIS not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{Addr: addr, KeyPrefix: "flashscan:test:"}, 2*time.Second)
	require.NoError(t, err)
	defer store.Close()

	id := uuid.NewString()
	rec := &types.SubmissionRecord{ID: id, State: types.RecordExecuting}

	ok, err := store.Reserve(ctx, id, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, id, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	rec.State = types.RecordExecuted
	require.NoError(t, store.Finalize(ctx, id, rec))

	got, ok, err := store.Lookup(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RecordExecuted, got.State)

	ttl, err := store.rdb.TTL(ctx, store.key(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "finalize must keep the reservation ttl")

	require.NoError(t, store.Finalize(ctx, uuid.NewString(), rec), "finalizing an unknown id is not an error")
}
