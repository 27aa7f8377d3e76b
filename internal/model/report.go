package model

// Report is the output of a successful run. Empty partitions still produce a
// report; their Conditions explain why no statistics are present. Facts is
// only filled on the report returned to the caller, never in the ledger.
type Report struct {
	RunID         string         `json:"run_id" yaml:"run_id"`
	PartitionDate string         `json:"partition_date" yaml:"partition_date"`
	Records       int            `json:"records" yaml:"records"`
	FactRows      int            `json:"fact_rows" yaml:"fact_rows"`
	Facts         []FactRow      `json:"facts,omitempty" yaml:"facts,omitempty"`
	Aggregates    []AggregateRow `json:"aggregates" yaml:"aggregates"`
	Top           *AggregateRow  `json:"top,omitempty" yaml:"top,omitempty"`
	Stats         *Dispersion    `json:"stats,omitempty" yaml:"stats,omitempty"`
	Conditions    []string       `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Stages        []StageResult  `json:"stages" yaml:"stages"`
}

// Empty reports whether the partition had no records.
func (r *Report) Empty() bool {
	return r.Records == 0
}

// HasCondition reports whether a recoverable condition was recorded.
func (r *Report) HasCondition(kind string) bool {
	for _, c := range r.Conditions {
		if c == kind {
			return true
		}
	}
	return false
}
