package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quote-rollup/internal/handler"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Sample quotes from the quote API into today's partition",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		svc, err := newIngest(ctx, cfg)
		if err != nil {
			return err
		}

		records, err := svc.Pull(ctx)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		for _, r := range records {
			fmt.Fprintf(os.Stderr, "%s  %s  %s\n", r.IngestedAt, r.QuoteID, r.Author)
		}
		fmt.Println(handler.IngestMessage(len(records)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
