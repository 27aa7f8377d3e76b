// Package stats computes dispersion statistics over per-quote ingestion counts.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/quote-rollup/internal/failure"
	"github.com/sells-group/quote-rollup/internal/model"
)

// Compute summarizes counts using population (not sample) measures. An empty
// input has no defined statistics and returns a stats_undefined error.
func Compute(counts []float64) (*model.Dispersion, error) {
	if len(counts) == 0 {
		return nil, failure.New(failure.StatsUndefined, nil, "no distinct quotes")
	}

	mean, variance := stat.PopMeanVariance(counts, nil)
	lo, hi := floats.Min(counts), floats.Max(counts)

	// Identical values can leave a tiny negative residue.
	if variance < 0 {
		variance = 0
	}

	return &model.Dispersion{
		N:        len(counts),
		Min:      lo,
		Max:      hi,
		Range:    hi - lo,
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
	}, nil
}
