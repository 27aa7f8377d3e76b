package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-rollup/internal/model"
)

// Nop discards every write. It is used when no durable ledger is configured.
type Nop struct{}

var _ Store = Nop{}

func (Nop) CreateRun(context.Context, model.Run) error                      { return nil }
func (Nop) UpdateRunStatus(context.Context, string, model.RunStatus) error  { return nil }
func (Nop) CompleteRun(context.Context, string, *model.Report, error) error { return nil }
func (Nop) RecordStage(context.Context, string, model.StageResult) error    { return nil }
func (Nop) ListStages(context.Context, string) ([]model.StageResult, error) { return nil, nil }
func (Nop) ListRuns(context.Context, RunFilter) ([]model.Run, error)        { return nil, nil }
func (Nop) Migrate(context.Context) error                                   { return nil }
func (Nop) Close() error                                                    { return nil }

func (Nop) GetRun(_ context.Context, runID string) (*model.Run, error) {
	return nil, eris.Errorf("run not found: %s (ledger disabled)", runID)
}
