package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-rollup/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:            "01J0ABCDEFGHJKMNPQRSTVWXYZ",
			PartitionDate: "2025-06-14",
			Status:        model.RunStatusDone,
			Report: &model.Report{
				Records: 4,
				Top:     &model.AggregateRow{QuoteID: "q-a", QuoteCount: 3},
			},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Second),
		},
		{
			ID:            "01J0ZZZZZZGHJKMNPQRSTVWXYZ",
			PartitionDate: "2025-06-13",
			Status:        model.RunStatusFailed,
			Error:         "store_unavailable: query partition: timeout",
			CreatedAt:     now.Add(-1 * time.Hour),
			UpdatedAt:     now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "PARTITION")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "01J0ABCDEF")
	assert.NotContains(t, output, "01J0ABCDEFG")
	assert.Contains(t, output, "2025-06-14")
	assert.Contains(t, output, "done")
	assert.Contains(t, output, "q-a (3)")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2s")
}

func TestFormatRunsList_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, nil)

	// Header only.
	assert.Contains(t, buf.String(), "ID")
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "01J0ABCDEF", truncateID("01J0ABCDEFGHJKMNPQRSTVWXYZ"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestWriteRunDetail(t *testing.T) {
	run := &model.Run{ID: "run-1", PartitionDate: "2025-06-14", Status: model.RunStatusDone}
	stages := []model.StageResult{
		{Name: "read", Status: model.StageStatusComplete, Duration: 12, Rows: 4},
	}

	var buf bytes.Buffer
	require.NoError(t, writeRunDetail(&buf, run, stages))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["id"])
	assert.Equal(t, "done", got["status"])
	require.Len(t, got["stages"], 1)
}

func TestWriteRunDetail_NoStages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRunDetail(&buf, &model.Run{ID: "run-2"}, nil))
	assert.Contains(t, buf.String(), `"stages": []`)
}
