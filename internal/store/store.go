package store

import (
	"context"

	"github.com/sells-group/quote-rollup/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status        model.RunStatus `json:"status,omitempty"`
	PartitionDate string          `json:"partition_date,omitempty"`
	Limit         int             `json:"limit,omitempty"`
	Offset        int             `json:"offset,omitempty"`
}

// Store is the run ledger: one row per transform run plus one row per
// executed stage.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, report *model.Report, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	RecordStage(ctx context.Context, runID string, stage model.StageResult) error
	ListStages(ctx context.Context, runID string) ([]model.StageResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// finalStatus maps a run outcome onto its terminal status.
func finalStatus(runErr error) model.RunStatus {
	if runErr != nil {
		return model.RunStatusFailed
	}
	return model.RunStatusDone
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
