package model

import "time"

// RunStatus represents the current state of a transform run.
type RunStatus string

const (
	RunStatusStart         RunStatus = "start"
	RunStatusReading       RunStatus = "reading"
	RunStatusMaterializing RunStatus = "materializing"
	RunStatusFact          RunStatus = "fact"
	RunStatusAggregating   RunStatus = "aggregating"
	RunStatusReporting     RunStatus = "reporting"
	RunStatusCleanup       RunStatus = "cleanup"
	RunStatusDone          RunStatus = "done"
	RunStatusFailed        RunStatus = "failed"
)

// runTransitions lists the forward edge of each non-terminal state. Any
// non-terminal state may additionally fall through to cleanup.
var runTransitions = map[RunStatus]RunStatus{
	RunStatusStart:         RunStatusReading,
	RunStatusReading:       RunStatusMaterializing,
	RunStatusMaterializing: RunStatusFact,
	RunStatusFact:          RunStatusAggregating,
	RunStatusAggregating:   RunStatusReporting,
	RunStatusReporting:     RunStatusCleanup,
}

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// CanTransition reports whether a run may move from s to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	if s.Terminal() {
		return false
	}
	if s == RunStatusCleanup {
		return next == RunStatusDone || next == RunStatusFailed
	}
	return runTransitions[s] == next || next == RunStatusCleanup
}

// StageStatus represents the outcome of a single pipeline stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// StageResult holds the outcome of a pipeline stage.
type StageResult struct {
	Name     string      `json:"name" yaml:"name"`
	Status   StageStatus `json:"status" yaml:"status"`
	Duration int64       `json:"duration_ms" yaml:"duration_ms"`
	Rows     int         `json:"rows" yaml:"rows"`
	Error    string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Run is the ledger entry for one pipeline execution.
type Run struct {
	ID            string    `json:"id"`
	PartitionDate string    `json:"partition_date"`
	Status        RunStatus `json:"status"`
	Report        *Report   `json:"report,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
