package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-rollup/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createTestRun(t *testing.T, st Store, id, date string, created time.Time) {
	t.Helper()
	require.NoError(t, st.CreateRun(context.Background(), model.Run{
		ID:            id,
		PartitionDate: date,
		Status:        model.RunStatusStart,
		CreatedAt:     created,
		UpdatedAt:     created,
	}))
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	createTestRun(t, st, "run-1", "2024-05-01", time.Now().UTC())

	run, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", run.PartitionDate)
	assert.Equal(t, model.RunStatusStart, run.Status)
	assert.Nil(t, run.Report)

	require.NoError(t, st.UpdateRunStatus(ctx, "run-1", model.RunStatusReading))
	require.NoError(t, st.RecordStage(ctx, "run-1", model.StageResult{
		Name: "read", Status: model.StageStatusComplete, Duration: 15, Rows: 4,
	}))
	require.NoError(t, st.UpdateRunStatus(ctx, "run-1", model.RunStatusCleanup))
	require.NoError(t, st.RecordStage(ctx, "run-1", model.StageResult{
		Name: "cleanup", Status: model.StageStatusComplete, Duration: 1,
	}))

	report := &model.Report{
		RunID:         "run-1",
		PartitionDate: "2024-05-01",
		Records:       4,
		FactRows:      4,
		Aggregates: []model.AggregateRow{
			{QuoteID: "A", QuoteCount: 3, IngestionDates: []string{"t1", "t2", "t3"}},
			{QuoteID: "B", QuoteCount: 1, IngestionDates: []string{"t4"}},
		},
		Stats: &model.Dispersion{N: 2, Min: 1, Max: 3, Range: 2, Mean: 2, Variance: 1, StdDev: 1},
	}
	require.NoError(t, st.CompleteRun(ctx, "run-1", report, nil))

	run, err = st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
	assert.Empty(t, run.Error)
	require.NotNil(t, run.Report)
	assert.Equal(t, report.Aggregates, run.Report.Aggregates)
	assert.Equal(t, report.Stats, run.Report.Stats)

	stages, err := st.ListStages(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "read", stages[0].Name)
	assert.Equal(t, 4, stages[0].Rows)
	assert.Equal(t, int64(15), stages[0].Duration)
	assert.Equal(t, "cleanup", stages[1].Name)
}

func TestSQLite_CompleteRun_Failed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	createTestRun(t, st, "run-f", "2024-05-01", time.Now().UTC())
	require.NoError(t, st.RecordStage(ctx, "run-f", model.StageResult{
		Name: "read", Status: model.StageStatusFailed, Error: "store_unavailable: boom",
	}))
	require.NoError(t, st.CompleteRun(ctx, "run-f", nil, errors.New("transform: read: store_unavailable: boom")))

	run, err := st.GetRun(ctx, "run-f")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "store_unavailable")
	assert.Nil(t, run.Report)

	stages, err := st.ListStages(ctx, "run-f")
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, "store_unavailable: boom", stages[0].Error)
}

func TestSQLite_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.Error(t, err)
	assert.Error(t, st.UpdateRunStatus(ctx, "missing", model.RunStatusDone))
	assert.Error(t, st.CompleteRun(ctx, "missing", nil, nil))
}

func TestSQLite_ListRuns_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	createTestRun(t, st, "r1", "2024-04-30", base)
	createTestRun(t, st, "r2", "2024-05-01", base.Add(time.Minute))
	createTestRun(t, st, "r3", "2024-05-01", base.Add(2*time.Minute))
	require.NoError(t, st.CompleteRun(ctx, "r1", &model.Report{}, nil))
	require.NoError(t, st.CompleteRun(ctx, "r2", nil, errors.New("boom")))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID, "newest first")

	byDate, err := st.ListRuns(ctx, RunFilter{PartitionDate: "2024-05-01"})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "r2", failed[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "r2", limited[0].ID)
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var st Store = Nop{}

	assert.NoError(t, st.CreateRun(ctx, model.Run{ID: "x"}))
	assert.NoError(t, st.UpdateRunStatus(ctx, "x", model.RunStatusDone))
	assert.NoError(t, st.RecordStage(ctx, "x", model.StageResult{}))
	assert.NoError(t, st.CompleteRun(ctx, "x", nil, nil))
	assert.NoError(t, st.Migrate(ctx))
	assert.NoError(t, st.Close())

	runs, err := st.ListRuns(ctx, RunFilter{})
	assert.NoError(t, err)
	assert.Empty(t, runs)

	_, err = st.GetRun(ctx, "x")
	assert.Error(t, err)
}
