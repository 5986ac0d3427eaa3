package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leefowlercu/cmxbatch/internal/config"
)

func TestExistenceCheck_ClassifiesIDs(t *testing.T) {
	store := &fakeStore{
		docs:      makeRecords(3),
		searchErr: map[string]error{"boom": errors.New("search exploded")},
	}
	env := newEnv(t, store)
	writeFile(t, env.ResourcesPath, "ids.txt", "\uFEFFid\ndoc-1\n\n# comment\nmissing;extra\nboom\ndoc-2,foo\n")

	task := &ExistenceCheck{}
	configure(t, env, task, `{"inputFile": "ids.txt", "outputDir": "out", "nbThreads": 2, "searchPageSize": 5}`)

	res := Execute(context.Background(), task, env)

	assert.Equal(t, StatePartiallyCompleted, res.State)
	assert.Equal(t, 3, res.Summary.Succeeded)
	assert.Equal(t, 1, res.Summary.Failed)

	path := filepath.Join(env.ResourcesPath, "out", "documentExistenceChecker_run-1.csv")
	assert.Equal(t, []string{path}, res.Files)
	assert.Equal(t, []string{
		"id;status;documentId;error",
		"doc-1;Found;doc-1;",
		"missing;NotFound;;",
		"boom;Error;;search exploded",
		"doc-2;Found;doc-2;",
	}, readLines(t, path))
}

func TestExistenceCheck_JoinsMultipleMatches(t *testing.T) {
	docs := makeRecords(3)
	docs[1].ExternalID = "ext-1"
	store := &fakeStore{docs: docs}
	env := newEnv(t, store)
	writeFile(t, env.ResourcesPath, "ids.csv", "externalId\next-1\next-3\n")

	task := &ExistenceCheck{}
	configure(t, env, task, `{"inputFile": "ids.csv", "outputDir": "out", "idField": "externalId"}`)

	res := Execute(context.Background(), task, env)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []string{
		"id;status;documentId;error",
		"ext-1;Found;doc-1|doc-2;",
		"ext-3;Found;doc-3;",
	}, readLines(t, res.Files[0]))
}

func TestExistenceCheck_PreservesInputOrder(t *testing.T) {
	store := &fakeStore{docs: makeRecords(40)}
	env := newEnv(t, store)

	ids := ""
	want := []string{"id;status;documentId;error"}
	for i := 40; i >= 1; i-- {
		id := "doc-" + strconv.Itoa(i)
		ids += id + "\n"
		want = append(want, id+";Found;"+id+";")
	}
	writeFile(t, env.ResourcesPath, "ids.txt", ids)

	task := &ExistenceCheck{}
	configure(t, env, task, `{"inputFile": "ids.txt", "outputDir": "out", "nbThreads": 8}`)

	res := Execute(context.Background(), task, env)

	require.Equal(t, StateCompleted, res.State)
	assert.Equal(t, want, readLines(t, res.Files[0]))
}

func TestExistenceCheck_CancelledIDsGetNoRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{docs: makeRecords(3)}
	store.onSearch = func(id string) {
		if id == "doc-1" {
			cancel()
			time.Sleep(50 * time.Millisecond)
		}
	}
	env := newEnv(t, store)
	writeFile(t, env.ResourcesPath, "ids.txt", "doc-1\ndoc-2\ndoc-3\n")

	task := &ExistenceCheck{}
	configure(t, env, task, `{"inputFile": "ids.txt", "outputDir": "out", "nbThreads": 1}`)

	res := Execute(ctx, task, env)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Equal(t, 1, res.Summary.Succeeded)
	assert.Equal(t, 1, store.searches)
	assert.Equal(t, []string{
		"id;status;documentId;error",
		"doc-1;Found;doc-1;",
	}, readLines(t, res.Files[0]))
}

func TestExistenceCheck_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing input", `{"outputDir": "out"}`},
		{"missing output", `{"inputFile": "ids.txt"}`},
		{"input not found", `{"inputFile": "nope.txt", "outputDir": "out"}`},
		{"negative threads", `{"inputFile": "ids.txt", "outputDir": "out", "nbThreads": -1}`},
		{"page size too large", `{"inputFile": "ids.txt", "outputDir": "out", "searchPageSize": 100000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "ids.txt", "doc-1\n")
			writeFile(t, dir, "documentExistenceChecker.json", tt.content)

			err := (&ExistenceCheck{}).Configure(dir)

			var cfgErr *config.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestExistenceCheck_ConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ids.txt", "doc-1\n")
	writeFile(t, dir, "documentExistenceChecker.json", `{"inputFile": "ids.txt", "outputDir": "/tmp/out"}`)

	task := &ExistenceCheck{}
	require.NoError(t, task.Configure(dir))

	cfg := task.Config()
	assert.Equal(t, DefaultIDField, cfg.IDField)
	assert.Equal(t, filepath.Join(dir, "ids.txt"), cfg.InputFile)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
}

func TestReadIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ids.txt", "\uFEFFdocumentId;label\n  a-1 ; first\n\"a-2\",second\n#a-3\n\n a-4\n")

	ids, err := readIDs(path, "documentId")

	require.NoError(t, err)
	assert.Equal(t, []string{"a-1", "a-2", "a-4"}, ids)
}

func TestReadIDs_MissingFile(t *testing.T) {
	_, err := readIDs(filepath.Join(t.TempDir(), "none.txt"), "id")
	assert.Error(t, err)
}
