// Package transform rolls one day's quote partition up into fact and
// aggregate relations and reports dispersion statistics over them.
package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quote-rollup/internal/engine"
	"github.com/sells-group/quote-rollup/internal/failure"
	"github.com/sells-group/quote-rollup/internal/model"
	"github.com/sells-group/quote-rollup/internal/stats"
	"github.com/sells-group/quote-rollup/internal/store"
)

// PartitionReader returns every record stored under one partition date.
type PartitionReader interface {
	ReadPartition(ctx context.Context, date string) ([]model.QuoteRecord, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithScratchDir sets the parent directory of per-run scratch areas.
func WithScratchDir(dir string) Option {
	return func(p *Pipeline) { p.scratchDir = dir }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunID overrides run id generation.
func WithRunID(gen func() string) Option {
	return func(p *Pipeline) { p.newRunID = gen }
}

// Pipeline executes transform runs. Runs share nothing but the reader and
// the ledger, so concurrent runs are safe.
type Pipeline struct {
	reader     PartitionReader
	ledger     store.Store
	scratchDir string
	now        func() time.Time
	newRunID   func() string
}

// New creates a Pipeline. A nil ledger records nothing.
func New(reader PartitionReader, ledger store.Store, opts ...Option) *Pipeline {
	if ledger == nil {
		ledger = store.Nop{}
	}
	p := &Pipeline{
		reader:     reader,
		ledger:     ledger,
		scratchDir: filepath.Join(os.TempDir(), "quote-rollup"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.newRunID == nil {
		p.newRunID = func() string {
			return ulid.MustNew(ulid.Timestamp(p.now()), ulid.DefaultEntropy()).String()
		}
	}
	return p
}

// run is the state owned by one execution.
type run struct {
	p       *Pipeline
	id      string
	date    string
	dir     string
	status  model.RunStatus
	session *engine.Session
	report  *model.Report
	log     *zap.Logger
}

// Run executes START → READ → MATERIALIZE → FACT → AGGREGATE → REPORT →
// CLEANUP → DONE for one partition date. Cleanup runs on every exit path.
// On failure the run ends FAILED and no report is returned.
func (p *Pipeline) Run(ctx context.Context, date string) (report *model.Report, err error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}

	id := p.newRunID()
	r := &run{
		p:      p,
		id:     id,
		date:   date,
		dir:    filepath.Join(p.scratchDir, id),
		status: model.RunStatusStart,
		report: &model.Report{RunID: id, PartitionDate: date, Aggregates: []model.AggregateRow{}},
		log:    zap.L().With(zap.String("run_id", id), zap.String("partition", date)),
	}
	r.log.Info("transform: starting run")

	now := p.now().UTC()
	if lerr := p.ledger.CreateRun(ctx, model.Run{
		ID:            id,
		PartitionDate: date,
		Status:        model.RunStatusStart,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); lerr != nil {
		r.log.Warn("transform: failed to create run", zap.Error(lerr))
	}

	defer func() {
		// Cleanup must run even when the caller's context is already done.
		cctx := context.WithoutCancel(ctx)
		if cerr := r.cleanup(cctx); cerr != nil && err == nil {
			err = cerr
		}
		r.finish(cctx, err)
		if err != nil {
			report = nil
		}
	}()

	var records []model.QuoteRecord
	if err := r.stage(ctx, model.RunStatusReading, "read", func() (int, error) {
		recs, rerr := p.reader.ReadPartition(ctx, date)
		if rerr != nil {
			return 0, rerr
		}
		records = recs
		return len(recs), nil
	}); err != nil {
		return nil, eris.Wrap(err, "transform: read")
	}
	r.report.Records = len(records)
	r.checkRecords(records)
	if len(records) == 0 {
		r.condition(failure.PartitionEmpty)
	}

	if err := r.stage(ctx, model.RunStatusMaterializing, "materialize", func() (int, error) {
		return r.materialize(ctx, records)
	}); err != nil {
		return nil, eris.Wrap(err, "transform: materialize")
	}

	if err := r.stage(ctx, model.RunStatusFact, "fact", func() (int, error) {
		return r.fact(ctx)
	}); err != nil {
		return nil, eris.Wrap(err, "transform: fact")
	}

	if err := r.stage(ctx, model.RunStatusAggregating, "aggregate", func() (int, error) {
		return r.aggregate(ctx)
	}); err != nil {
		return nil, eris.Wrap(err, "transform: aggregate")
	}

	if err := r.stage(ctx, model.RunStatusReporting, "report", func() (int, error) {
		return r.summarize(ctx)
	}); err != nil {
		return nil, eris.Wrap(err, "transform: report")
	}

	return r.report, nil
}

// advance moves the run to next and records it in the ledger.
func (r *run) advance(ctx context.Context, next model.RunStatus) {
	if !r.status.CanTransition(next) {
		r.log.Warn("transform: unexpected transition",
			zap.String("from", string(r.status)),
			zap.String("to", string(next)),
		)
	}
	r.status = next
	if err := r.p.ledger.UpdateRunStatus(ctx, r.id, next); err != nil {
		r.log.Warn("transform: failed to update status", zap.Error(err))
	}
}

// stage runs fn as the named stage, timing it and recording the result.
func (r *run) stage(ctx context.Context, status model.RunStatus, name string, fn func() (int, error)) error {
	r.advance(ctx, status)

	start := time.Now()
	rows, err := fn()
	duration := time.Since(start).Milliseconds()

	res := model.StageResult{Name: name, Duration: duration, Rows: rows}
	if err != nil {
		res.Status = model.StageStatusFailed
		res.Error = err.Error()
		r.log.Error("transform: stage failed",
			zap.String("stage", name),
			zap.String("kind", string(failure.KindOf(err))),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
	} else {
		res.Status = model.StageStatusComplete
		r.log.Info("transform: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
			zap.Int("rows", rows),
		)
	}

	r.report.Stages = append(r.report.Stages, res)
	if lerr := r.p.ledger.RecordStage(ctx, r.id, res); lerr != nil {
		r.log.Warn("transform: failed to record stage", zap.String("stage", name), zap.Error(lerr))
	}
	return err
}

func (r *run) condition(kind failure.Kind) {
	r.report.Conditions = append(r.report.Conditions, string(kind))
	r.log.Info("transform: recoverable condition", zap.String("kind", string(kind)))
}

// checkRecords logs records whose partition key disagrees with their sort
// key or with the requested partition.
func (r *run) checkRecords(records []model.QuoteRecord) {
	bad := 0
	for _, rec := range records {
		if rec.IngestedDate != r.date || !rec.PartitionConsistent() {
			bad++
		}
	}
	if bad > 0 {
		r.log.Warn("transform: records with inconsistent partition keys", zap.Int("count", bad))
	}
}

func (r *run) materialize(ctx context.Context, records []model.QuoteRecord) (int, error) {
	path, err := writeDataset(r.dir, records)
	if err != nil {
		return 0, err
	}

	r.session, err = engine.Open(ctx)
	if err != nil {
		return 0, err
	}

	n, err := r.session.RegisterJSON(ctx, RelQuotes, path, quotesSchema)
	if err != nil {
		return 0, err
	}
	if n != len(records) {
		return n, failure.New(failure.Serialization, nil,
			fmt.Sprintf("registered %d of %d records", n, len(records)))
	}
	return n, nil
}

func (r *run) fact(ctx context.Context) (int, error) {
	if r.session == nil {
		return 0, failure.New(failure.Transform, nil, "relation "+RelQuotes+" is missing")
	}
	if err := r.session.CreateTableAs(ctx, RelFact, factQuery); err != nil {
		return 0, err
	}

	src, err := r.session.Count(ctx, RelQuotes)
	if err != nil {
		return 0, err
	}
	n, err := r.session.Count(ctx, RelFact)
	if err != nil {
		return 0, err
	}
	if n != src {
		return n, failure.New(failure.Transform, nil,
			fmt.Sprintf("%s has %d rows, %s has %d", RelFact, n, RelQuotes, src))
	}
	r.report.FactRows = n
	return n, nil
}

func (r *run) aggregate(ctx context.Context) (int, error) {
	if r.session == nil {
		return 0, failure.New(failure.Transform, nil, "relation "+RelFact+" is missing")
	}
	if err := r.session.CreateTableAs(ctx, RelAgg, aggQuery); err != nil {
		return 0, err
	}

	counts, err := r.session.Floats(ctx, countsQuery)
	if err != nil {
		return 0, err
	}
	sum := 0
	for _, c := range counts {
		if c < 1 {
			return len(counts), failure.New(failure.Transform, nil, "aggregate row with quote_count < 1")
		}
		sum += int(c)
	}
	if sum != r.report.FactRows {
		return len(counts), failure.New(failure.Transform, nil,
			fmt.Sprintf("sum(quote_count) is %d, %s has %d rows", sum, RelFact, r.report.FactRows))
	}

	ids, err := r.session.Floats(ctx, distinctIDsQuery)
	if err != nil {
		return len(counts), err
	}
	if len(ids) != 1 {
		return len(counts), failure.New(failure.Transform, nil, "distinct quote_id count returned no row")
	}
	if distinct := int(ids[0]); distinct != len(counts) {
		r.log.Warn("transform: quote ids with more than one text or author",
			zap.Int("agg_rows", len(counts)),
			zap.Int("distinct_ids", distinct),
		)
		r.condition(failure.QuoteVariants)
	}
	return len(counts), nil
}

func (r *run) summarize(ctx context.Context) (int, error) {
	counts, err := r.session.Floats(ctx, countsQuery)
	if err != nil {
		return 0, err
	}
	aggs, err := ReadAggregates(ctx, r.session, 0)
	if err != nil {
		return 0, err
	}
	facts, err := ReadFacts(ctx, r.session)
	if err != nil {
		return 0, err
	}

	disp, err := stats.Compute(counts)
	switch {
	case err == nil:
		r.report.Stats = disp
	case failure.KindOf(err).Recoverable():
		r.condition(failure.KindOf(err))
	default:
		return 0, err
	}

	r.report.Aggregates = aggs
	r.report.Facts = facts
	if len(aggs) > 0 {
		top := aggs[0]
		r.report.Top = &top
		r.log.Info("transform: top quote",
			zap.String("quote_id", top.QuoteID),
			zap.String("author", top.Author),
			zap.Int("quote_count", top.QuoteCount),
		)
	}
	return len(aggs), nil
}

// cleanup drops the run's relations, closes the session and removes the run
// directory. It is safe to call when earlier stages never ran.
func (r *run) cleanup(ctx context.Context) error {
	return r.stage(ctx, model.RunStatusCleanup, "cleanup", func() (int, error) {
		var first error
		if r.session != nil {
			if err := r.session.Drop(ctx, RelAgg, RelFact, RelQuotes); err != nil {
				first = err
			}
			if err := r.session.Close(); err != nil && first == nil {
				first = eris.Wrap(err, "transform: close session")
			}
			r.session = nil
		}
		if err := os.RemoveAll(r.dir); err != nil && first == nil {
			first = eris.Wrapf(err, "transform: remove run dir %s", r.dir)
		}
		return 0, first
	})
}

func (r *run) finish(ctx context.Context, runErr error) {
	status := model.RunStatusDone
	if runErr != nil {
		status = model.RunStatusFailed
	}
	if !r.status.CanTransition(status) {
		r.log.Warn("transform: unexpected transition",
			zap.String("from", string(r.status)),
			zap.String("to", string(status)),
		)
	}
	r.status = status

	ledgerReport := *r.report
	ledgerReport.Facts = nil
	if runErr != nil {
		ledgerReport = model.Report{
			RunID:         r.report.RunID,
			PartitionDate: r.report.PartitionDate,
			Records:       r.report.Records,
			Conditions:    r.report.Conditions,
			Stages:        r.report.Stages,
		}
	}
	if err := r.p.ledger.CompleteRun(ctx, r.id, &ledgerReport, runErr); err != nil {
		r.log.Warn("transform: failed to complete run", zap.Error(err))
	}

	if runErr != nil {
		r.log.Error("transform: run failed",
			zap.String("kind", string(failure.KindOf(runErr))),
			zap.Error(runErr),
		)
		return
	}
	r.log.Info("transform: run complete",
		zap.Int("records", r.report.Records),
		zap.Int("fact_rows", r.report.FactRows),
		zap.Int("agg_rows", len(r.report.Aggregates)),
		zap.Strings("conditions", r.report.Conditions),
	)
}
