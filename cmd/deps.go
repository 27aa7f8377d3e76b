package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-rollup/internal/config"
	"github.com/sells-group/quote-rollup/internal/db"
	"github.com/sells-group/quote-rollup/internal/handler"
	"github.com/sells-group/quote-rollup/internal/ingest"
	"github.com/sells-group/quote-rollup/internal/quotestore"
	"github.com/sells-group/quote-rollup/internal/store"
	"github.com/sells-group/quote-rollup/internal/transform"
	"github.com/sells-group/quote-rollup/pkg/quotable"
)

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// initLedger opens the configured run ledger and applies its schema.
func initLedger(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Ledger.Driver {
	case config.DriverSQLite:
		st, err = store.NewSQLite(c.Ledger.DatabaseURL)
	case config.DriverPostgres:
		st, err = store.NewPostgres(ctx, c.Ledger.DatabaseURL, &db.PoolConfig{
			MaxConns: c.Ledger.MaxConns,
			MinConns: c.Ledger.MinConns,
		})
	case config.DriverNone:
		return store.Nop{}, nil
	default:
		return nil, eris.Errorf("unsupported ledger driver: %s", c.Ledger.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate ledger")
	}
	return st, nil
}

func initQuoteStore(ctx context.Context, c *config.Config) (*quotestore.Client, error) {
	return quotestore.NewFromConfig(ctx, c.Dynamo.Region, c.Dynamo.Endpoint, c.Dynamo.Table, secs(c.Dynamo.TimeoutSecs))
}

func initQuotable(c *config.Config) quotable.Client {
	return quotable.NewClient(
		quotable.WithBaseURL(c.Quotable.BaseURL),
		quotable.WithHTTPClient(&http.Client{Timeout: secs(c.Quotable.TimeoutSecs)}),
	)
}

// newPipeline wires a transform pipeline. The release func closes the
// ledger.
func newPipeline(ctx context.Context, c *config.Config) (*transform.Pipeline, func(), error) {
	reader, err := initQuoteStore(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := initLedger(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	p := transform.New(reader, ledger, transform.WithScratchDir(c.Transform.ScratchDir))
	return p, func() { _ = ledger.Close() }, nil
}

// newIngest wires an ingestion service.
func newIngest(ctx context.Context, c *config.Config) (*ingest.Service, error) {
	writer, err := initQuoteStore(ctx, c)
	if err != nil {
		return nil, err
	}
	return ingest.New(initQuotable(c), writer,
		ingest.WithConcurrency(c.Ingest.Concurrency),
		ingest.WithWriteRate(c.Ingest.WritesPerSec),
	), nil
}

func handlerOptions(c *config.Config) handler.Options {
	return handler.Options{
		DefaultDate: c.Transform.PartitionDate,
		Timeout:     secs(c.Transform.TimeoutSecs),
	}
}

func transformFactory(c *config.Config) handler.RunnerFactory {
	return func(ctx context.Context) (handler.Runner, func(), error) {
		p, release, err := newPipeline(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return p, release, nil
	}
}

func ingestFactory(c *config.Config) handler.PullerFactory {
	return func(ctx context.Context) (handler.Puller, func(), error) {
		svc, err := newIngest(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return svc, func() {}, nil
	}
}
