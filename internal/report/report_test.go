package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/leefowlercu/cmxbatch/internal/coordinator"
	"github.com/leefowlercu/cmxbatch/internal/tasks"
)

var started = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func partialResult() tasks.Result {
	return tasks.Result{
		Task:   "DeleteDocumentV3",
		RunID:  "run-1",
		State:  tasks.StatePartiallyCompleted,
		Reason: "3 of 10 items failed",
		Summary: coordinator.Summary{
			Succeeded: 7,
			Failed:    3,
			Retries:   4,
			Failures: []coordinator.Failure{
				{Item: "doc-4", Attempts: 4, Reason: "gave up after 4 attempts; 503"},
			},
		},
		Files:    []string{"/data/out/deleteDocument_run-1.csv"},
		Started:  started,
		Finished: started.Add(1500 * time.Millisecond),
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, partialResult())
	out := buf.String()

	assert.Contains(t, out, "DeleteDocumentV3 PartiallyCompleted")
	assert.Contains(t, out, "3 of 10 items failed")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "doc-4")
	assert.Contains(t, out, "and 2 more")
	assert.Contains(t, out, "output: /data/out/deleteDocument_run-1.csv")
}

func TestRender_CompletedHasNoFailureTable(t *testing.T) {
	res := tasks.Result{
		Task:     "CoreDataDump",
		RunID:    "run-2",
		State:    tasks.StateCompleted,
		Summary:  coordinator.Summary{Succeeded: 2},
		Started:  started,
		Finished: started,
	}

	var buf bytes.Buffer
	Render(&buf, res)

	assert.Contains(t, buf.String(), IconSuccess+" CoreDataDump Completed")
	assert.NotContains(t, buf.String(), "First failures")
}

func TestPath(t *testing.T) {
	res := partialResult()
	assert.Equal(t, "/data/out/DeleteDocumentV3_run-1.report.yaml", Path(res, "/res"))

	res.Files = nil
	assert.Equal(t, "/res/DeleteDocumentV3_run-1.report.yaml", Path(res, "/res"))
}

func TestWriteYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")

	require.NoError(t, WriteYAML(path, partialResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got struct {
		Task    string `yaml:"task"`
		State   string `yaml:"state"`
		Reason  string `yaml:"reason"`
		Summary struct {
			Succeeded int `yaml:"succeeded"`
			Failed    int `yaml:"failed"`
			Failures  []struct {
				Item string `yaml:"item"`
			} `yaml:"failures"`
		} `yaml:"summary"`
	}
	require.NoError(t, yaml.Unmarshal(data, &got))

	assert.Equal(t, "DeleteDocumentV3", got.Task)
	assert.Equal(t, "PartiallyCompleted", got.State)
	assert.Equal(t, 7, got.Summary.Succeeded)
	assert.Equal(t, 3, got.Summary.Failed)
	require.Len(t, got.Summary.Failures, 1)
	assert.Equal(t, "doc-4", got.Summary.Failures[0].Item)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate(strings.Repeat("abcdefghij", 3), 10))
}
