package transform

import (
	"fmt"
	"strings"

	"github.com/sells-group/quote-rollup/internal/failure"
	"github.com/sells-group/quote-rollup/internal/model"
)

// SuccessMessage is returned to invokers after a run that produced statistics.
const SuccessMessage = "Quotes transformed successfully!"

// EmptyMessage is the degenerate outcome for a partition with no records.
func EmptyMessage(date string) string {
	return fmt.Sprintf("No quotes ingested for partition %s", date)
}

// Summary returns the one-line outcome of a run.
func Summary(r *model.Report) string {
	if r.Empty() {
		return EmptyMessage(r.PartitionDate)
	}
	return SuccessMessage
}

// FormatReport generates the human-readable run summary.
func FormatReport(r *model.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Quote Rollup: %s\n", r.PartitionDate)
	fmt.Fprintf(&b, "Run: %s\n\n", r.RunID)

	if r.Empty() {
		b.WriteString(EmptyMessage(r.PartitionDate))
		b.WriteString("\n\n")
	} else {
		if r.Top != nil {
			fmt.Fprintf(&b, "The most common quote ingested was: %q by %s (%d times)\n\n",
				r.Top.QuoteText, r.Top.Author, r.Top.QuoteCount)
		}

		b.WriteString("## Quote Count Dispersion\n")
		if r.Stats == nil {
			b.WriteString("Statistics undefined.\n\n")
		} else {
			s := r.Stats
			fmt.Fprintf(&b, "- Min: %g\n", s.Min)
			fmt.Fprintf(&b, "- Max: %g\n", s.Max)
			fmt.Fprintf(&b, "- Range: %g\n", s.Range)
			fmt.Fprintf(&b, "- Mean: %.4f\n", s.Mean)
			fmt.Fprintf(&b, "- Variance: %.4f\n", s.Variance)
			fmt.Fprintf(&b, "- Std Dev: %.4f\n", s.StdDev)
			fmt.Fprintf(&b, "- Total Distinct Quotes: %d\n\n", s.N)
		}
	}

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Records: %d\n", r.Records)
	fmt.Fprintf(&b, "- Fact rows: %d\n", r.FactRows)
	fmt.Fprintf(&b, "- Distinct quotes: %d\n", len(r.Aggregates))
	if len(r.Conditions) > 0 {
		fmt.Fprintf(&b, "- Conditions: %s\n", strings.Join(r.Conditions, ", "))
	}
	if r.HasCondition(string(failure.QuoteVariants)) {
		b.WriteString("- Some quote ids appear with more than one text or author\n")
	}
	b.WriteString("\n")

	b.WriteString("## Stages\n")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "- %s: %s (%dms, %d rows)\n", s.Name, s.Status, s.Duration, s.Rows)
		if s.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", s.Error)
		}
	}
	return b.String()
}
