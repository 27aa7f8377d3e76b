package transform

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sells-group/quote-rollup/internal/engine"
	"github.com/sells-group/quote-rollup/internal/failure"
	"github.com/sells-group/quote-rollup/internal/model"
)

// Querier runs typed queries. *engine.Session satisfies it.
type Querier interface {
	Query(ctx context.Context, sel engine.Select) (*sql.Rows, error)
}

// ReadFacts returns quotes_fact in input order.
func ReadFacts(ctx context.Context, q Querier) ([]model.FactRow, error) {
	rows, err := q.Query(ctx, engine.Select{
		Columns: factColumns,
		From:    RelFact,
		OrderBy: []engine.Order{engine.Asc(engine.RowSeq)},
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := []model.FactRow{}
	for rows.Next() {
		var (
			f                                                   model.FactRow
			id, text, author, slug, tags, added, modified, date sql.NullString
			at                                                  sql.NullString
			chars                                               sql.NullInt64
		)
		if err := rows.Scan(&f.RowSeq, &id, &text, &author, &slug, &tags, &chars, &added, &modified, &date, &at); err != nil {
			return nil, failure.New(failure.Transform, err, "scan "+RelFact)
		}
		f.QuoteID = id.String
		f.QuoteText = text.String
		f.Author = author.String
		f.AuthorSlug = slug.String
		f.CharacterCount = int(chars.Int64)
		f.AddedDate = added.String
		f.ModifiedDate = modified.String
		f.IngestedDate = date.String
		f.IngestedAt = at.String
		if f.TagList, err = decodeStrings(tags); err != nil {
			return nil, failure.New(failure.Transform, err, "decode tag_list")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.New(failure.Transform, err, "iterate "+RelFact)
	}
	return out, nil
}

// ReadAggregates returns quotes_agg in report order. A positive limit keeps
// only the first rows.
func ReadAggregates(ctx context.Context, q Querier, limit int) ([]model.AggregateRow, error) {
	rows, err := q.Query(ctx, engine.Select{
		Columns: aggColumns,
		From:    RelAgg,
		OrderBy: aggOrder,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := []model.AggregateRow{}
	for rows.Next() {
		var (
			a                                 model.AggregateRow
			id, text, author, first, last, at sql.NullString
		)
		if err := rows.Scan(&id, &text, &author, &a.QuoteCount, &first, &last, &at); err != nil {
			return nil, failure.New(failure.Transform, err, "scan "+RelAgg)
		}
		a.QuoteID = id.String
		a.QuoteText = text.String
		a.Author = author.String
		a.FirstIngestion = first.String
		a.LastIngestion = last.String
		if a.IngestionDates, err = decodeStrings(at); err != nil {
			return nil, failure.New(failure.Transform, err, "decode ingestion_dates")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.New(failure.Transform, err, "iterate "+RelAgg)
	}
	return out, nil
}

func decodeStrings(v sql.NullString) ([]string, error) {
	out := []string{}
	if !v.Valid {
		return out, nil
	}
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
