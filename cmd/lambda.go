package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quote-rollup/internal/config"
	"github.com/sells-group/quote-rollup/internal/handler"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve a job as an AWS Lambda function",
	Long:  "Starts the Lambda runtime loop for a scheduled EventBridge job. Only usable inside the Lambda execution environment.",
}

var lambdaTransformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Serve the daily rollup",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := lambdaConfig(cfg)
		lambda.Start(handler.Transform(transformFactory(c), handlerOptions(c)))
		return nil
	},
}

var lambdaIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Serve quote ingestion",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := lambdaConfig(cfg)
		lambda.Start(handler.Ingest(ingestFactory(c), handlerOptions(c)))
		return nil
	},
}

// lambdaConfig disables the file-backed ledger. The function filesystem is
// read-only outside /tmp and does not outlive the instance.
func lambdaConfig(c *config.Config) *config.Config {
	if c.Ledger.Driver != config.DriverSQLite {
		return c
	}
	out := *c
	out.Ledger.Driver = config.DriverNone
	zap.L().Info("lambda: sqlite ledger disabled, runs are not recorded")
	return &out
}

func init() {
	lambdaCmd.AddCommand(lambdaTransformCmd)
	lambdaCmd.AddCommand(lambdaIngestCmd)
	rootCmd.AddCommand(lambdaCmd)
}
