package model

import (
	"strings"
	"time"

	"github.com/sells-group/quote-rollup/pkg/quotable"
)

const (
	// DateLayout formats the partition key (calendar date, UTC).
	DateLayout = "2006-01-02"
	// TimestampLayout formats the sort key. The fixed-width fraction keeps
	// lexicographic order equal to chronological order.
	TimestampLayout = "2006-01-02T15:04:05.000000-07:00"
)

// QuoteRecord is one ingestion event as persisted in the quotes table.
// Records are written once and never mutated.
type QuoteRecord struct {
	IngestedDate   string   `json:"ingested_date" dynamodbav:"ingested_date"`
	IngestedAt     string   `json:"ingested_at" dynamodbav:"ingested_at"`
	QuoteID        string   `json:"quote_id" dynamodbav:"quote_id"`
	Content        string   `json:"content" dynamodbav:"content"`
	Author         string   `json:"author" dynamodbav:"author"`
	AuthorSlug     string   `json:"author_slug" dynamodbav:"author_slug"`
	TagList        []string `json:"tag_list" dynamodbav:"tag_list"`
	CharacterCount int      `json:"character_count" dynamodbav:"character_count"`
	AddedDate      string   `json:"added_date" dynamodbav:"added_date"`
	ModifiedDate   string   `json:"modified_date" dynamodbav:"modified_date"`
}

// NewQuoteRecord maps an API quote onto a record ingested at now.
func NewQuoteRecord(q quotable.Quote, now time.Time) QuoteRecord {
	now = now.UTC()
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}
	return QuoteRecord{
		IngestedDate:   now.Format(DateLayout),
		IngestedAt:     now.Format(TimestampLayout),
		QuoteID:        q.ID,
		Content:        q.Content,
		Author:         q.Author,
		AuthorSlug:     q.AuthorSlug,
		TagList:        tags,
		CharacterCount: q.Length,
		AddedDate:      q.DateAdded,
		ModifiedDate:   q.DateModified,
	}
}

// PartitionConsistent reports whether the partition key matches the date
// component of the sort key.
func (r QuoteRecord) PartitionConsistent() bool {
	return r.IngestedDate != "" && strings.HasPrefix(r.IngestedAt, r.IngestedDate+"T")
}
