// Package handler adapts the transform and ingest jobs to scheduled
// EventBridge invocations.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quote-rollup/internal/failure"
	"github.com/sells-group/quote-rollup/internal/model"
	"github.com/sells-group/quote-rollup/internal/transform"
)

// Runner executes one transform run.
type Runner interface {
	Run(ctx context.Context, date string) (*model.Report, error)
}

// Puller executes one ingestion pull.
type Puller interface {
	Pull(ctx context.Context) ([]model.QuoteRecord, error)
}

// RunnerFactory builds a fresh runner for one invocation. The returned
// release func is called when the invocation ends.
type RunnerFactory func(ctx context.Context) (Runner, func(), error)

// PullerFactory builds a fresh puller for one invocation.
type PullerFactory func(ctx context.Context) (Puller, func(), error)

// Options configures the handlers.
type Options struct {
	// DefaultDate is used when the event names no partition. Empty means
	// yesterday in UTC.
	DefaultDate string
	// Timeout bounds one invocation. Zero means no bound beyond the
	// invocation deadline.
	Timeout time.Duration
	Now     func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout > 0 {
		return context.WithTimeout(ctx, o.Timeout)
	}
	return context.WithCancel(ctx)
}

// transformDetail is the optional event payload for a transform invocation.
type transformDetail struct {
	PartitionDate string `json:"partition_date"`
}

// PartitionDate resolves the partition for an event: the event detail wins,
// then the configured default, then yesterday in UTC.
func PartitionDate(ev events.CloudWatchEvent, opts Options) (string, error) {
	if len(ev.Detail) > 0 {
		var d transformDetail
		if err := json.Unmarshal(ev.Detail, &d); err != nil {
			return "", eris.Wrap(err, "handler: decode event detail")
		}
		if d.PartitionDate != "" {
			return d.PartitionDate, nil
		}
	}
	if opts.DefaultDate != "" {
		return opts.DefaultDate, nil
	}
	return transform.YesterdayUTC(opts.now()), nil
}

// Transform returns a Lambda handler that rolls up one partition per
// invocation.
func Transform(factory RunnerFactory, opts Options) func(context.Context, events.CloudWatchEvent) (string, error) {
	return func(ctx context.Context, ev events.CloudWatchEvent) (string, error) {
		date, err := PartitionDate(ev, opts)
		if err != nil {
			return "", err
		}
		log := zap.L().With(zap.String("partition", date), zap.String("event_id", ev.ID))

		ctx, cancel := opts.bound(ctx)
		defer cancel()

		runner, release, err := factory(ctx)
		if err != nil {
			return "", eris.Wrap(err, "handler: build transform")
		}
		defer release()

		report, err := runner.Run(ctx, date)
		if err != nil {
			log.Error("handler: transform failed",
				zap.String("kind", string(failure.KindOf(err))),
				zap.Bool("retryable", failure.IsConnectivity(err)),
				zap.Error(err),
			)
			return "", err
		}

		msg := transform.Summary(report)
		log.Info("handler: transform complete",
			zap.String("run_id", report.RunID),
			zap.Strings("conditions", report.Conditions),
		)
		return msg, nil
	}
}

// Ingest returns a Lambda handler that pulls one sample per invocation.
func Ingest(factory PullerFactory, opts Options) func(context.Context, events.CloudWatchEvent) (string, error) {
	return func(ctx context.Context, ev events.CloudWatchEvent) (string, error) {
		ctx, cancel := opts.bound(ctx)
		defer cancel()

		puller, release, err := factory(ctx)
		if err != nil {
			return "", eris.Wrap(err, "handler: build ingest")
		}
		defer release()

		records, err := puller.Pull(ctx)
		if err != nil {
			zap.L().Error("handler: ingest failed",
				zap.String("event_id", ev.ID),
				zap.Bool("retryable", failure.IsConnectivity(err)),
				zap.Error(err),
			)
			return "", err
		}
		return IngestMessage(len(records)), nil
	}
}

// IngestMessage reports how many quotes an ingestion wrote.
func IngestMessage(n int) string {
	return fmt.Sprintf("Ingested %d quote(s)", n)
}
