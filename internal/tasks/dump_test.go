package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leefowlercu/cmxbatch/internal/cmxapi"
)

func TestDump_WritesLinesAndContent(t *testing.T) {
	store := &fakeStore{docs: makeRecords(3)}
	env := newEnv(t, store)

	task := &Dump{}
	configure(t, env, task, `{"extractionCriteria": `+gedCriteria+`, "outputDir": "dump"}`)

	res := Execute(context.Background(), task, env)

	require.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 3, res.Summary.Succeeded)

	dir := filepath.Join(env.ResourcesPath, "dump")
	path := filepath.Join(dir, "coreDataDump_run-1.jsonl")
	assert.Equal(t, []string{path, filepath.Join(dir, "content")}, res.Files)

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	for i, line := range lines {
		var got DumpLine
		require.NoError(t, json.Unmarshal([]byte(line), &got))

		want := store.docs[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, filepath.Join("content", want.ID), got.ContentFile)

		var meta cmxapi.DocumentRecord
		require.NoError(t, json.Unmarshal(got.Metadata, &meta))
		assert.Equal(t, want.Name, meta.Name)

		content, err := os.ReadFile(filepath.Join(dir, got.ContentFile))
		require.NoError(t, err)
		assert.Equal(t, "content of "+want.ID, string(content))
		assert.Equal(t, int64(len(content)), got.ContentSize)
	}
}

func TestDump_SanitizedIDsKeepSeparateContent(t *testing.T) {
	docs := makeRecords(3)
	docs[0].ID = "a/b"
	docs[1].ID = "a:b"
	docs[2].ID = "a_b"
	store := &fakeStore{docs: docs}
	env := newEnv(t, store)

	task := &Dump{}
	configure(t, env, task, `{"extractionCriteria": `+gedCriteria+`, "outputDir": "dump"}`)

	res := Execute(context.Background(), task, env)

	require.Equal(t, StateCompleted, res.State)

	dir := filepath.Join(env.ResourcesPath, "dump")
	files := make(map[string]string)
	for _, line := range readLines(t, res.Files[0]) {
		var got DumpLine
		require.NoError(t, json.Unmarshal([]byte(line), &got))

		prev, dup := files[got.ContentFile]
		require.False(t, dup, "%s and %s share %s", prev, got.ID, got.ContentFile)
		files[got.ContentFile] = got.ID

		content, err := os.ReadFile(filepath.Join(dir, got.ContentFile))
		require.NoError(t, err)
		assert.Equal(t, "content of "+got.ID, string(content))
	}
	assert.Len(t, files, 3)

	entries, err := os.ReadDir(filepath.Join(dir, "content"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDump_WithoutContent(t *testing.T) {
	store := &fakeStore{docs: makeRecords(2)}
	env := newEnv(t, store)

	task := &Dump{}
	configure(t, env, task, `{"includeContent": false}`)

	res := Execute(context.Background(), task, env)

	require.Equal(t, StateCompleted, res.State)
	assert.Len(t, res.Files, 1)

	lines := readLines(t, res.Files[0])
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "contentFile")

	_, err := os.Stat(filepath.Join(env.ResourcesPath, "content"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDump_FailedDocumentHasNoLine(t *testing.T) {
	store := &fakeStore{docs: makeRecords(4)}
	env := newEnv(t, store)
	env.Store = &missingMetadataStore{fakeStore: store, missing: "doc-2"}

	task := &Dump{}
	configure(t, env, task, `{"includeContent": false}`)

	res := Execute(context.Background(), task, env)

	assert.Equal(t, StatePartiallyCompleted, res.State)
	assert.Equal(t, 3, res.Summary.Succeeded)
	assert.Equal(t, 1, res.Summary.Failed)

	var ids []string
	for _, line := range readLines(t, res.Files[0]) {
		var got DumpLine
		require.NoError(t, json.Unmarshal([]byte(line), &got))
		ids = append(ids, got.ID)
	}
	assert.Equal(t, []string{"doc-1", "doc-3", "doc-4"}, ids)
}

type missingMetadataStore struct {
	*fakeStore
	missing string
}

func (s *missingMetadataStore) GetDocument(ctx context.Context, id string) (json.RawMessage, error) {
	if id == s.missing {
		return nil, cmxapi.NewItemOperationError("get", id, false, errors.New("gone"))
	}
	return s.fakeStore.GetDocument(ctx, id)
}

func TestDump_ConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "coreDataDump.json", `{}`)

	task := &Dump{}
	require.NoError(t, task.Configure(dir))

	cfg := task.Config()
	assert.True(t, cfg.WithContent())
	assert.Equal(t, dir, cfg.OutputDir)
	assert.Equal(t, "$and", cfg.Criteria.Op())
}
