package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/roundup/internal/core/model"
	"github.com/agenthands/roundup/internal/core/rounds"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	fn()
	require.NoError(t, w.Close())
	os.Stdout = orig
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func TestPrintReport(t *testing.T) {
	color.NoColor = true
	report := &rounds.Report{
		RunID:           "run-1",
		StopReason:      rounds.StopConvergence,
		RoundsCompleted: 3,
		CurrentRound:    4,
		MergesApplied:   7,
		AutoDedupMerges: 2,
		ManualReview:    []string{"COMM-004"},
		Warnings:        []string{"item X9 missing"},
		ProgressHistory: []model.ProgressEntry{{Round: 1, ItemsDeltaPct: 0.25, CommsDeltaPct: 0.5}},
		DryRun:          true,
		PlannedActions: []rounds.PlannedAction{
			{ClusterID: "COMM-001", EntryID: "A2", Action: "merge", TargetID: "A1"},
		},
	}

	out := captureStdout(t, func() { printReport(report) })

	assert.Contains(t, out, "dry run")
	assert.Contains(t, out, "convergence")
	assert.Contains(t, out, "7 (+2 auto-dedup)")
	assert.Contains(t, out, "COMM-004")
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "A2 → A1")
	assert.Contains(t, out, "item X9 missing")
}

func TestReadImport(t *testing.T) {
	path := t.TempDir() + "/items.jsonl"
	data := `{"id":"A1","category":"bug","title":"crash on save","embedding":[0.1,0.2]}

{"id":"A2","category":"bug","title":"save crashes"}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	records, err := readImport(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A1", records[0].ID)
	assert.Equal(t, []float32{0.1, 0.2}, records[0].Embedding)
	assert.Empty(t, records[1].Embedding)
}

func TestReadImport_MissingID(t *testing.T) {
	path := t.TempDir() + "/items.jsonl"
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"no id"}`+"\n"), 0o644))

	_, err := readImport(path)
	assert.ErrorContains(t, err, ":1: missing id")
}
