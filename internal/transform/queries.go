package transform

import (
	"github.com/sells-group/quote-rollup/internal/engine"
)

// Relation names registered in a run's engine session.
const (
	RelQuotes = "quotes"
	RelFact   = "quotes_fact"
	RelAgg    = "quotes_agg"
)

// quotesSchema is the column layout of the materialized dataset. It mirrors
// the JSON tags of model.QuoteRecord.
var quotesSchema = engine.Schema{
	{Name: "ingested_date", Type: engine.Text},
	{Name: "ingested_at", Type: engine.Text},
	{Name: "quote_id", Type: engine.Text},
	{Name: "content", Type: engine.Text},
	{Name: "author", Type: engine.Text},
	{Name: "author_slug", Type: engine.Text},
	{Name: "tag_list", Type: engine.JSON},
	{Name: "character_count", Type: engine.Integer},
	{Name: "added_date", Type: engine.Text},
	{Name: "modified_date", Type: engine.Text},
}

var factColumns = []engine.Column{
	engine.Col(engine.RowSeq),
	engine.Col("quote_id"),
	engine.Col("quote_text"),
	engine.Col("author"),
	engine.Col("author_slug"),
	engine.Col("tag_list"),
	engine.Col("character_count"),
	engine.Col("added_date"),
	engine.Col("modified_date"),
	engine.Col("ingested_date"),
	engine.Col("ingested_at"),
}

// factQuery projects quotes 1:1 into quotes_fact, renaming content.
var factQuery = engine.Select{
	Columns: []engine.Column{
		engine.Col(engine.RowSeq),
		engine.Col("quote_id"),
		engine.Col("content").As("quote_text"),
		engine.Col("author"),
		engine.Col("author_slug"),
		engine.Col("tag_list"),
		engine.Col("character_count"),
		engine.Col("added_date"),
		engine.Col("modified_date"),
		engine.Col("ingested_date"),
		engine.Col("ingested_at"),
	},
	From:    RelQuotes,
	OrderBy: []engine.Order{engine.Asc(engine.RowSeq)},
}

// aggOrder sorts by count descending; equal counts fall back to quote_id,
// quote_text and author so the order never depends on the engine.
var aggOrder = []engine.Order{
	engine.Desc("quote_count"),
	engine.Asc("quote_id"),
	engine.Asc("quote_text"),
	engine.Asc("author"),
}

// aggQuery groups quotes_fact into one row per distinct quote.
var aggQuery = engine.Select{
	Columns: []engine.Column{
		engine.Col("quote_id"),
		engine.Col("quote_text"),
		engine.Col("author"),
		engine.Count().As("quote_count"),
		engine.Min("ingested_at").As("first_ingestion"),
		engine.Max("ingested_at").As("last_ingestion"),
		engine.GroupArray("ingested_at", engine.RowSeq).As("ingestion_dates"),
	},
	From:    RelFact,
	GroupBy: []string{"quote_id", "quote_text", "author"},
	OrderBy: aggOrder,
}

var aggColumns = []engine.Column{
	engine.Col("quote_id"),
	engine.Col("quote_text"),
	engine.Col("author"),
	engine.Col("quote_count"),
	engine.Col("first_ingestion"),
	engine.Col("last_ingestion"),
	engine.Col("ingestion_dates"),
}

// countsQuery extracts the quote_count column in aggregate order.
var countsQuery = engine.Select{
	Columns: []engine.Column{engine.Col("quote_count")},
	From:    RelAgg,
	OrderBy: aggOrder,
}

// distinctIDsQuery counts the distinct quote ids in quotes_fact.
var distinctIDsQuery = engine.Select{
	Columns: []engine.Column{engine.CountDistinct("quote_id").As("distinct_ids")},
	From:    RelFact,
}
