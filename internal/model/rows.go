package model

// FactRow is one row of quotes_fact: a 1:1 projection of a QuoteRecord with
// content renamed to quote_text.
type FactRow struct {
	RowSeq         int64    `json:"row_seq" yaml:"row_seq"`
	QuoteID        string   `json:"quote_id" yaml:"quote_id"`
	QuoteText      string   `json:"quote_text" yaml:"quote_text"`
	Author         string   `json:"author" yaml:"author"`
	AuthorSlug     string   `json:"author_slug" yaml:"author_slug"`
	TagList        []string `json:"tag_list" yaml:"tag_list"`
	CharacterCount int      `json:"character_count" yaml:"character_count"`
	AddedDate      string   `json:"added_date" yaml:"added_date"`
	ModifiedDate   string   `json:"modified_date" yaml:"modified_date"`
	IngestedDate   string   `json:"ingested_date" yaml:"ingested_date"`
	IngestedAt     string   `json:"ingested_at" yaml:"ingested_at"`
}

// AggregateRow is one row of quotes_agg: a distinct quote with its ingestion
// count and timestamp extrema for the partition.
type AggregateRow struct {
	QuoteID        string   `json:"quote_id" yaml:"quote_id"`
	QuoteText      string   `json:"quote_text" yaml:"quote_text"`
	Author         string   `json:"author" yaml:"author"`
	QuoteCount     int      `json:"quote_count" yaml:"quote_count"`
	FirstIngestion string   `json:"first_ingestion" yaml:"first_ingestion"`
	LastIngestion  string   `json:"last_ingestion" yaml:"last_ingestion"`
	IngestionDates []string `json:"ingestion_dates" yaml:"ingestion_dates"`
}

// Dispersion summarizes the spread of quote_count across distinct quotes.
// All measures are population statistics.
type Dispersion struct {
	N        int     `json:"n" yaml:"n"`
	Min      float64 `json:"min" yaml:"min"`
	Max      float64 `json:"max" yaml:"max"`
	Range    float64 `json:"range" yaml:"range"`
	Mean     float64 `json:"mean" yaml:"mean"`
	Variance float64 `json:"variance" yaml:"variance"`
	StdDev   float64 `json:"std_dev" yaml:"std_dev"`
}
