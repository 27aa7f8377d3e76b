package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/quote-rollup/internal/config"
	"github.com/sells-group/quote-rollup/internal/model"
	"github.com/sells-group/quote-rollup/internal/store"
)

func sampleReport() *model.Report {
	top := model.AggregateRow{
		QuoteID:        "q-a",
		QuoteText:      "Be yourself.",
		Author:         "Oscar Wilde",
		QuoteCount:     2,
		FirstIngestion: "2024-05-01T00:00:01.000000+00:00",
		LastIngestion:  "2024-05-01T00:00:03.000000+00:00",
		IngestionDates: []string{"2024-05-01T00:00:01.000000+00:00", "2024-05-01T00:00:03.000000+00:00"},
	}
	return &model.Report{
		RunID:         "run-1",
		PartitionDate: "2024-05-01",
		Records:       3,
		FactRows:      3,
		Facts: []model.FactRow{
			{RowSeq: 0, QuoteID: "q-a", QuoteText: "Be yourself.", Author: "Oscar Wilde", TagList: []string{"famous-quotes"}},
			{RowSeq: 1, QuoteID: "q-b", TagList: []string{}},
			{RowSeq: 2, QuoteID: "q-a", QuoteText: "Be yourself.", Author: "Oscar Wilde", TagList: []string{"famous-quotes"}},
		},
		Aggregates: []model.AggregateRow{top, {QuoteID: "q-b", QuoteCount: 1}},
		Top:        &top,
		Stats:      &model.Dispersion{N: 2, Min: 1, Max: 2, Range: 1, Mean: 1.5, Variance: 0.25, StdDev: 0.5},
		Stages:     []model.StageResult{{Name: "read", Status: model.StageStatusComplete, Rows: 3}},
	}
}

func TestWriteReport_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), "text"))

	out := buf.String()
	assert.Contains(t, out, "2024-05-01")
	assert.Contains(t, out, "Oscar Wilde")
	assert.Contains(t, out, "Std Dev")
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), "json"))

	var got model.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	require.NotNil(t, got.Top)
	assert.Equal(t, 2, got.Top.QuoteCount)
	require.NotNil(t, got.Stats)
	assert.InDelta(t, 0.25, got.Stats.Variance, 1e-9)

	require.Len(t, got.Facts, 3)
	assert.Equal(t, int64(2), got.Facts[2].RowSeq)
	assert.Equal(t, []string{"famous-quotes"}, got.Facts[0].TagList)
}

func TestWriteReport_JSONWithoutFacts(t *testing.T) {
	r := sampleReport()
	r.Facts = nil

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, r, "json"))
	assert.NotContains(t, buf.String(), `"facts"`)
}

func TestWriteReport_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), "yaml"))

	out := buf.String()
	assert.Contains(t, out, "run_id: run-1")
	assert.Contains(t, out, "quote_count: 2")

	var got model.Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got.Records)
	assert.Len(t, got.Aggregates, 2)
	require.Len(t, got.Facts, 3)
	assert.Equal(t, "q-b", got.Facts[1].QuoteID)
}

func TestWriteReport_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, writeReport(&buf, sampleReport(), "xml"))
	assert.False(t, validOutput("xml"))
	assert.True(t, validOutput("yaml"))
}

func TestInitLedger_SQLite(t *testing.T) {
	c := &config.Config{}
	c.Ledger.Driver = config.DriverSQLite
	c.Ledger.DatabaseURL = filepath.Join(t.TempDir(), "ledger.db")

	st, err := initLedger(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestInitLedger_None(t *testing.T) {
	c := &config.Config{}
	c.Ledger.Driver = config.DriverNone

	st, err := initLedger(context.Background(), c)
	require.NoError(t, err)
	assert.IsType(t, store.Nop{}, st)
}

func TestInitLedger_Unknown(t *testing.T) {
	c := &config.Config{}
	c.Ledger.Driver = "mysql"

	_, err := initLedger(context.Background(), c)
	assert.Error(t, err)
}

func TestLambdaConfig(t *testing.T) {
	c := &config.Config{}
	c.Ledger.Driver = config.DriverSQLite

	out := lambdaConfig(c)
	assert.Equal(t, config.DriverNone, out.Ledger.Driver)
	assert.Equal(t, config.DriverSQLite, c.Ledger.Driver, "input must not be modified")

	c.Ledger.Driver = config.DriverPostgres
	assert.Same(t, c, lambdaConfig(c))
}

func TestHandlerOptions(t *testing.T) {
	c := &config.Config{}
	c.Transform.PartitionDate = "2024-05-01"
	c.Transform.TimeoutSecs = 300

	opts := handlerOptions(c)
	assert.Equal(t, "2024-05-01", opts.DefaultDate)
	assert.Equal(t, "5m0s", opts.Timeout.String())
}
