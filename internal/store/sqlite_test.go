package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scylladb/argus-sub001/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

func sampleMetadata(subjectID uuid.UUID) *model.TableMetadata {
	return &model.TableMetadata{
		SubjectID:      subjectID,
		Name:           "Throughput Results",
		Description:    "steady-state throughput",
		SUTPackageName: "scylla-server",
		ColumnsMeta: []model.ColumnMeta{
			{Name: "throughput", Unit: "ops/s", Type: model.TypeFloat, HigherIsBetter: boolPtr(true)},
			{Name: "notes", Unit: "", Type: model.TypeText},
		},
		RowsMeta: []string{"mixed", "write"},
		ValidationRules: map[string][]model.RuleVersion{
			"throughput": {{ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), BestPct: floatPtr(5)}},
		},
	}
}

func TestSQLiteTableMetadataRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	subjectID := uuid.New()

	_, err := s.GetTableMetadata(ctx, subjectID, "Throughput Results")
	assert.True(t, eris.Is(err, ErrNotFound))

	meta := sampleMetadata(subjectID)
	require.NoError(t, s.PutTableMetadata(ctx, meta))

	got, err := s.GetTableMetadata(ctx, subjectID, "Throughput Results")
	require.NoError(t, err)
	assert.Equal(t, meta.SubjectID, got.SubjectID)
	assert.Equal(t, meta.Description, got.Description)
	assert.Equal(t, meta.SUTPackageName, got.SUTPackageName)
	assert.Equal(t, meta.ColumnsMeta, got.ColumnsMeta)
	assert.Equal(t, meta.RowsMeta, got.RowsMeta)
	require.Len(t, got.ValidationRules["throughput"], 1)
	assert.Equal(t, 5.0, *got.ValidationRules["throughput"][0].BestPct)

	// Upsert replaces in place.
	meta.Description = "updated"
	require.NoError(t, s.PutTableMetadata(ctx, meta))
	got, err = s.GetTableMetadata(ctx, subjectID, "Throughput Results")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)

	list, err := s.ListTableMetadata(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Throughput Results", list[0].Name)
}

func TestSQLiteDataPoints(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	subjectID := uuid.New()
	run1, run2 := uuid.New(), uuid.New()
	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

	points := []model.DataPoint{
		{SubjectID: subjectID, TableName: "tbl", RunID: run1, Column: "throughput", Row: "mixed",
			SUTTimestamp: t1, Value: floatPtr(1000), Status: model.StatusPass},
		{SubjectID: subjectID, TableName: "tbl", RunID: run2, Column: "throughput", Row: "mixed",
			SUTTimestamp: t2, Value: floatPtr(950), Status: model.StatusError},
	}
	require.NoError(t, s.InsertDataPoints(ctx, points))
	require.NoError(t, s.InsertDataPoints(ctx, nil))

	got, err := s.ListDataPoints(ctx, subjectID, "tbl", DataFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, run1, got[0].RunID)
	assert.Equal(t, 1000.0, *got[0].Value)
	assert.Equal(t, model.StatusError, got[1].Status)

	// Date window narrows the scan.
	start := t1.Add(24 * time.Hour)
	got, err = s.ListDataPoints(ctx, subjectID, "tbl", DataFilter{StartDate: &start})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, run2, got[0].RunID)

	got, err = s.ListRunDataPoints(ctx, subjectID, run1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "throughput", got[0].Column)
}

func TestSQLiteBestResultLedger(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	subjectID := uuid.New()
	runID := uuid.New()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := model.BestResult{
		ID: uuid.NewString(), Key: "throughput:mixed", Value: 1000,
		ResultDate: now, SUTTimestamp: now, RunID: runID,
	}
	require.NoError(t, s.AppendBestResult(ctx, subjectID, "tbl", first, ""))

	// The empty-ledger guard no longer matches once a record exists.
	dup := first
	dup.ID = uuid.NewString()
	err := s.AppendBestResult(ctx, subjectID, "tbl", dup, "")
	assert.True(t, eris.Is(err, ErrConflict))

	second := model.BestResult{
		ID: uuid.NewString(), Key: "throughput:mixed", Value: 1100,
		ResultDate: now.Add(time.Hour), SUTTimestamp: now.Add(time.Hour), RunID: uuid.New(),
	}
	require.NoError(t, s.AppendBestResult(ctx, subjectID, "tbl", second, first.ID))

	// Stale expected id loses the race.
	stale := second
	stale.ID = uuid.NewString()
	err = s.AppendBestResult(ctx, subjectID, "tbl", stale, first.ID)
	assert.True(t, eris.Is(err, ErrConflict))

	history, err := s.ListBestResults(ctx, subjectID, "tbl")
	require.NoError(t, err)
	require.Len(t, history["throughput:mixed"], 2)
	assert.Equal(t, 1000.0, history["throughput:mixed"][0].Value)
	assert.Equal(t, 1100.0, history["throughput:mixed"][1].Value)
}

func TestSQLiteRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	subjectID := uuid.New()

	_, err := s.GetRun(ctx, uuid.New())
	assert.True(t, eris.Is(err, ErrNotFound))

	run := &model.Run{
		ID:        uuid.New(),
		SubjectID: subjectID,
		BuildID:   "nightly/123",
		StartedAt: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
		Packages: []model.PackageVersion{
			{Name: "scylla-server", Version: "6.0.1", Date: "2024-02-28"},
		},
	}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.SubjectID, got.SubjectID)
	assert.Equal(t, run.BuildID, got.BuildID)
	require.Len(t, got.Packages, 1)
	assert.Equal(t, "6.0.1", got.Packages[0].Version)
	assert.False(t, got.Ignored)

	require.NoError(t, s.SetRunIgnored(ctx, run.ID, true))
	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got.Ignored)

	err = s.SetRunIgnored(ctx, uuid.New(), true)
	assert.True(t, eris.Is(err, ErrNotFound))

	runs, err := s.ListRuns(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestSQLiteGraphViews(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	subjectID := uuid.New()

	view := &model.GraphView{
		SubjectID:   subjectID,
		ViewID:      uuid.New(),
		Name:        "latency overview",
		Description: "p99 charts",
		Graphs:      []byte(`["tbl - latency"]`),
	}
	require.NoError(t, s.PutGraphView(ctx, view))

	got, err := s.GetGraphView(ctx, subjectID, view.ViewID)
	require.NoError(t, err)
	assert.Equal(t, "latency overview", got.Name)
	assert.Equal(t, view.Graphs, got.Graphs)

	view.Name = "renamed"
	require.NoError(t, s.PutGraphView(ctx, view))
	list, err := s.ListGraphViews(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].Name)

	require.NoError(t, s.DeleteGraphView(ctx, subjectID, view.ViewID))
	_, err = s.GetGraphView(ctx, subjectID, view.ViewID)
	assert.True(t, eris.Is(err, ErrNotFound))
	err = s.DeleteGraphView(ctx, subjectID, view.ViewID)
	assert.True(t, eris.Is(err, ErrNotFound))
}
