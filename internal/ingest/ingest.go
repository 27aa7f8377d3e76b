// Package ingest samples quotes from the quote API and appends them to the
// partitioned store.
package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/quote-rollup/internal/failure"
	"github.com/sells-group/quote-rollup/internal/model"
	"github.com/sells-group/quote-rollup/pkg/quotable"
)

// Writer appends one record to the store.
type Writer interface {
	Put(ctx context.Context, rec model.QuoteRecord) error
}

// Service pulls quotes and writes them as ingestion records.
type Service struct {
	client      quotable.Client
	writer      Writer
	concurrency int
	limiter     *rate.Limiter
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency bounds the number of in-flight writes.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithWriteRate caps store writes at perSec per second. Non-positive means
// unlimited.
func WithWriteRate(perSec float64) Option {
	return func(s *Service) {
		if perSec > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithClock overrides the ingestion clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(client quotable.Client, writer Writer, opts ...Option) *Service {
	s := &Service{
		client:      client,
		writer:      writer,
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// nextStamp returns now at microsecond precision, bumped past prev so keys
// within one pull never collide.
func nextStamp(now, prev time.Time) time.Time {
	t := now.UTC().Truncate(time.Microsecond)
	if !prev.IsZero() && !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

// Pull fetches one random sample and writes every quote in it. Each record is
// stamped with its own clock reading and ingested_at strictly increases
// across the pull. Returns the written records in API order; if any write
// fails the whole pull fails with write_failed.
func (s *Service) Pull(ctx context.Context) ([]model.QuoteRecord, error) {
	quotes, err := s.client.Random(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: fetch quotes")
	}

	records := make([]model.QuoteRecord, len(quotes))
	var last time.Time
	for i, q := range quotes {
		last = nextStamp(s.now(), last)
		records[i] = model.NewQuoteRecord(q, last)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, rec := range records {
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(gCtx); err != nil {
					return eris.Wrap(err, "ingest: wait for write slot")
				}
			}
			if err := s.writer.Put(gCtx, rec); err != nil {
				if failure.KindOf(err) == "" {
					return failure.New(failure.WriteFailed, err, "put quote "+rec.QuoteID)
				}
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "ingest: write quotes")
	}

	zap.L().Info("ingest: quotes written", zap.Int("count", len(records)))
	return records, nil
}
