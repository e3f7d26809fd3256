package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
)

func sampleRuns() []model.Run {
	created := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	return []model.Run{
		{
			ID:     "11111111-2222-3333-4444-555555555555",
			Status: model.RunStatusComplete,
			Request: model.SearchRequest{
				ID: "req-1", AccountID: "acct-1",
				Role: "vp of sales", Organization: "Acme", Count: 5,
			},
			Result: &model.RunResult{
				ContactsRequested: 5, ContactsReturned: 5,
				DraftsCreated: 4, CreditsCharged: 14,
			},
			CreatedAt: created,
			UpdatedAt: created.Add(90 * time.Second),
		},
		{
			ID:     "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			Status: model.RunStatusFailed,
			Request: model.SearchRequest{
				ID: "req-2", AccountID: "acct-2", Role: "head of data", Count: 10,
			},
			CreatedAt: created,
			UpdatedAt: created.Add(5 * time.Second),
		},
	}
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, sampleRuns())

	out := buf.String()
	assert.Contains(t, out, "11111111")
	assert.Contains(t, out, "vp of sales")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "14")
	// Runs without a result render placeholders.
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "-")
}

func TestWriteRunsWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.xlsx")
	require.NoError(t, writeRunsWorkbook(path, sampleRuns()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	require.Len(t, sheet.Rows, 3) // header + 2 runs
	assert.Equal(t, "ID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "vp of sales", sheet.Rows[1].Cells[2].String())
	assert.Equal(t, "14", sheet.Rows[1].Cells[9].String())
	assert.Equal(t, "failed", sheet.Rows[2].Cells[5].String())
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "11111111", truncateID("11111111-2222-3333"))
	assert.Equal(t, "short", truncateID("short"))
}
