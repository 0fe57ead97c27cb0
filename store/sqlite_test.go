package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flashscan/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, state types.RecordState, at time.Time) *types.SubmissionRecord {
	return &types.SubmissionRecord{
		ID:         id,
		TokenIn:    "0x01",
		TokenOut:   "0x02",
		AmountIn:   "100",
		Profit:     "50",
		State:      state,
		ReservedAt: at,
		UpdatedAt:  at,
	}
}

func TestSaveAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	require.NoError(t, s.SaveRecord(ctx, record("a", types.RecordExecuted, base)))
	require.NoError(t, s.SaveRecord(ctx, record("b", types.RecordFailed, base.Add(time.Second))))

	recs, err := s.ListRecords(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID, "newest first")
	assert.Equal(t, base, recs[1].UpdatedAt)

	failed, err := s.ListRecords(ctx, ListFilter{State: types.RecordFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].ID)

	limited, err := s.ListRecords(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSaveUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := record("a", types.RecordFailed, now)
	require.NoError(t, s.SaveRecord(ctx, rec))

	rec.State = types.RecordExecuted
	rec.BundleHash = "0xfeed"
	require.NoError(t, s.SaveRecord(ctx, rec))

	recs, err := s.ListRecords(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.RecordExecuted, recs[0].State)
	assert.Equal(t, "0xfeed", recs[0].BundleHash)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveRecord(ctx, record("old", types.RecordExecuted, now.Add(-48*time.Hour))))
	require.NoError(t, s.SaveRecord(ctx, record("new", types.RecordExecuted, now)))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := s.ListRecords(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].ID)
}
