package transform

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/quote-rollup/internal/model"
	"github.com/sells-group/quote-rollup/internal/store"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ReadPartition(ctx context.Context, date string) ([]model.QuoteRecord, error) {
	args := m.Called(ctx, date)
	recs, _ := args.Get(0).([]model.QuoteRecord)
	return recs, args.Error(1)
}

// recordingLedger captures what a run reports to the ledger.
type recordingLedger struct {
	store.Nop

	mu        sync.Mutex
	created   []model.Run
	statuses  []model.RunStatus
	stages    []model.StageResult
	completed *model.Report
	runErr    error
	completes int
}

func (l *recordingLedger) CreateRun(_ context.Context, run model.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, run)
	return nil
}

func (l *recordingLedger) UpdateRunStatus(_ context.Context, _ string, status model.RunStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, status)
	return nil
}

func (l *recordingLedger) RecordStage(_ context.Context, _ string, stage model.StageResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, stage)
	return nil
}

func (l *recordingLedger) CompleteRun(_ context.Context, _ string, report *model.Report, runErr error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = report
	l.runErr = runErr
	l.completes++
	return nil
}

func (l *recordingLedger) stageNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.stages))
	for i, s := range l.stages {
		names[i] = s.Name
	}
	return names
}
