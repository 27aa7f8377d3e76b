package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/quote-rollup/internal/model"
	"github.com/sells-group/quote-rollup/internal/transform"
)

var (
	transformDate   string
	transformOutput string
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Roll up one day's quote partition",
	Long:  "Reads every quote ingested on the partition date, builds the fact and aggregate relations, and reports the most common quote with count dispersion statistics.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		date := transformDate
		if date == "" {
			date = cfg.Transform.PartitionDate
		}
		if date == "" {
			date = transform.YesterdayUTC(time.Now())
		}
		if err := transform.ValidateDate(date); err != nil {
			return err
		}
		if !validOutput(transformOutput) {
			return eris.Errorf("unsupported output format: %s", transformOutput)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), secs(cfg.Transform.TimeoutSecs))
		defer cancel()

		p, release, err := newPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer release()

		report, err := p.Run(ctx, date)
		if err != nil {
			return eris.Wrap(err, "transform")
		}
		return writeReport(os.Stdout, report, transformOutput)
	},
}

func validOutput(format string) bool {
	switch format {
	case "text", "json", "yaml":
		return true
	}
	return false
}

// writeReport renders a run report as text, json, or yaml.
func writeReport(w io.Writer, report *model.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "encode yaml report")
		}
		return enc.Close()
	case "text":
		_, err := fmt.Fprint(w, transform.FormatReport(report))
		return err
	default:
		return eris.Errorf("unsupported output format: %s", format)
	}
}

func init() {
	transformCmd.Flags().StringVar(&transformDate, "date", "", "partition date (YYYY-MM-DD); defaults to yesterday UTC")
	transformCmd.Flags().StringVarP(&transformOutput, "output", "o", "text", "output format (text, json, yaml)")
	rootCmd.AddCommand(transformCmd)
}
