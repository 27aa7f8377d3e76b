// Package engine is the analytical SQL engine used by a transform run. Each
// Session is an isolated in-memory SQLite database that lives for one run.
package engine

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/sells-group/quote-rollup/internal/failure"
)

// Session is a private in-memory database. It is not safe for concurrent use
// by multiple runs; open one per run.
type Session struct {
	db *sql.DB
}

// Open creates a new empty session.
func Open(ctx context.Context) (*Session, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, eris.Wrap(err, "engine: open")
	}

	// Every connection to :memory: gets its own database, so pin the pool to
	// one connection and never let it expire.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "engine: ping")
	}
	return &Session{db: db}, nil
}

// Close releases the session. All relations are discarded.
func (s *Session) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Exists reports whether a relation is registered in the session.
func (s *Session) Exists(ctx context.Context, relation string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`,
		relation,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "engine: lookup relation %s", relation)
	}
	return n > 0, nil
}

// Count returns the number of rows in a relation.
func (s *Session) Count(ctx context.Context, relation string) (int, error) {
	if err := s.requireRelation(ctx, relation); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(relation)).Scan(&n); err != nil {
		return 0, failure.New(failure.Transform, err, "count "+relation)
	}
	return n, nil
}

// CreateTableAs materializes the result of sel as a new relation.
func (s *Session) CreateTableAs(ctx context.Context, name string, sel Select) error {
	if err := validIdent(name); err != nil {
		return failure.New(failure.Transform, err, "create "+name)
	}
	if err := s.requireRelation(ctx, sel.From); err != nil {
		return err
	}
	q, err := sel.SQL()
	if err != nil {
		return failure.New(failure.Transform, err, "build "+name)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE "+quoteIdent(name)+" AS "+q); err != nil {
		return failure.New(failure.Transform, err, "create "+name)
	}
	return nil
}

// Query runs sel and returns the raw result set. The caller closes rows.
func (s *Session) Query(ctx context.Context, sel Select) (*sql.Rows, error) {
	if err := s.requireRelation(ctx, sel.From); err != nil {
		return nil, err
	}
	q, err := sel.SQL()
	if err != nil {
		return nil, failure.New(failure.Transform, err, "build query on "+sel.From)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, failure.New(failure.Transform, err, "query "+sel.From)
	}
	return rows, nil
}

// Floats runs a single-column query and returns the column as numbers.
func (s *Session) Floats(ctx context.Context, sel Select) ([]float64, error) {
	if len(sel.Columns) != 1 {
		return nil, failure.New(failure.Transform, nil, "numeric column query must select exactly one column")
	}
	rows, err := s.Query(ctx, sel)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := []float64{}
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, failure.New(failure.Transform, err, "scan "+sel.From)
		}
		if !v.Valid {
			return nil, failure.New(failure.Transform, nil, "null value in numeric column of "+sel.From)
		}
		out = append(out, v.Float64)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.New(failure.Transform, err, "iterate "+sel.From)
	}
	return out, nil
}

// Drop removes relations. Missing relations are ignored.
func (s *Session) Drop(ctx context.Context, relations ...string) error {
	for _, r := range relations {
		if err := validIdent(r); err != nil {
			return eris.Wrap(err, "engine: drop")
		}
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(r)); err != nil {
			return eris.Wrapf(err, "engine: drop %s", r)
		}
	}
	return nil
}

func (s *Session) requireRelation(ctx context.Context, relation string) error {
	if err := validIdent(relation); err != nil {
		return failure.New(failure.Transform, err, "")
	}
	ok, err := s.Exists(ctx, relation)
	if err != nil {
		return failure.New(failure.Transform, err, "")
	}
	if !ok {
		return failure.New(failure.Transform, nil, "relation "+relation+" is missing")
	}
	return nil
}
