package results

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scylladb/argus-sub001/internal/model"
	"github.com/scylladb/argus-sub001/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestTrackerFirstObservation(t *testing.T) {
	st := newTestStore(t)
	tracker := NewTracker(st)
	ctx := context.Background()
	subjectID := uuid.New()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	snap, err := tracker.Snapshot(ctx, subjectID, "tbl")
	require.NoError(t, err)

	updated, err := tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "throughput:mixed", 1000, day, uuid.New(), true)
	require.NoError(t, err)
	assert.True(t, updated)

	history, err := st.ListBestResults(ctx, subjectID, "tbl")
	require.NoError(t, err)
	require.Len(t, history["throughput:mixed"], 1)
	assert.Equal(t, 1000.0, history["throughput:mixed"][0].Value)
}

func TestTrackerStrictImprovement(t *testing.T) {
	st := newTestStore(t)
	tracker := NewTracker(st)
	ctx := context.Background()
	subjectID := uuid.New()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	snap, err := tracker.Snapshot(ctx, subjectID, "tbl")
	require.NoError(t, err)

	_, err = tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "throughput:mixed", 1000, day(1), uuid.New(), true)
	require.NoError(t, err)

	// Equal value is not an improvement.
	updated, err := tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "throughput:mixed", 1000, day(2), uuid.New(), true)
	require.NoError(t, err)
	assert.False(t, updated)

	// Worse value is rejected.
	updated, err = tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "throughput:mixed", 900, day(3), uuid.New(), true)
	require.NoError(t, err)
	assert.False(t, updated)

	// Strictly better appends without touching history.
	updated, err = tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "throughput:mixed", 1100, day(4), uuid.New(), true)
	require.NoError(t, err)
	assert.True(t, updated)

	history, err := st.ListBestResults(ctx, subjectID, "tbl")
	require.NoError(t, err)
	require.Len(t, history["throughput:mixed"], 2)
	assert.Equal(t, 1000.0, history["throughput:mixed"][0].Value)
	assert.Equal(t, 1100.0, history["throughput:mixed"][1].Value)
}

func TestTrackerLowerIsBetter(t *testing.T) {
	st := newTestStore(t)
	tracker := NewTracker(st)
	ctx := context.Background()
	subjectID := uuid.New()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	snap, err := tracker.Snapshot(ctx, subjectID, "tbl")
	require.NoError(t, err)

	_, err = tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "latency:p99", 20, day(1), uuid.New(), false)
	require.NoError(t, err)

	updated, err := tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "latency:p99", 15, day(2), uuid.New(), false)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "latency:p99", 25, day(3), uuid.New(), false)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestTrackerOutOfOrderRejection(t *testing.T) {
	st := newTestStore(t)
	tracker := NewTracker(st)
	ctx := context.Background()
	subjectID := uuid.New()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	snap, err := tracker.Snapshot(ctx, subjectID, "tbl")
	require.NoError(t, err)

	_, err = tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "throughput:mixed", 1000, day(10), uuid.New(), true)
	require.NoError(t, err)

	// A late arrival with an older logical time never updates the ledger,
	// even with a better value.
	updated, err := tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "throughput:mixed", 5000, day(5), uuid.New(), true)
	require.NoError(t, err)
	assert.False(t, updated)

	history, err := st.ListBestResults(ctx, subjectID, "tbl")
	require.NoError(t, err)
	require.Len(t, history["throughput:mixed"], 1)
	assert.Equal(t, 1000.0, history["throughput:mixed"][0].Value)
}

func TestTrackerConflictReread(t *testing.T) {
	st := newTestStore(t)
	tracker := NewTracker(st)
	ctx := context.Background()
	subjectID := uuid.New()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	snap, err := tracker.Snapshot(ctx, subjectID, "tbl")
	require.NoError(t, err)
	_, err = tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "throughput:mixed", 1000, day(1), uuid.New(), true)
	require.NoError(t, err)

	// A concurrent writer advances the ledger behind this snapshot's back.
	stale := Snapshot{"throughput:mixed": append([]model.BestResult(nil), snap["throughput:mixed"]...)}
	_, err = tracker.ConsiderUpdate(ctx, subjectID, "tbl", snap, "throughput:mixed", 1200, day(2), uuid.New(), true)
	require.NoError(t, err)

	// Beats the stale record but not the concurrent one: resolved by
	// re-reading, no append.
	updated, err := tracker.ConsiderUpdate(ctx, subjectID, "tbl", stale, "throughput:mixed", 1100, day(3), uuid.New(), true)
	require.NoError(t, err)
	assert.False(t, updated)

	// Beats both: accepted on the retry after the conflict.
	stale2 := Snapshot{"throughput:mixed": {snap["throughput:mixed"][0]}}
	updated, err = tracker.ConsiderUpdate(ctx, subjectID, "tbl", stale2, "throughput:mixed", 1300, day(4), uuid.New(), true)
	require.NoError(t, err)
	assert.True(t, updated)

	history, err := st.ListBestResults(ctx, subjectID, "tbl")
	require.NoError(t, err)
	require.Len(t, history["throughput:mixed"], 3)
	assert.Equal(t, 1300.0, history["throughput:mixed"][2].Value)
}
