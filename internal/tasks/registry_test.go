package tasks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_Names(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{
		"CoreDataDump",
		"CsvFilesExtractor",
		"DeleteDocumentV3",
		"DocumentExistenceChecker",
	}, r.Names())
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	task, err := r.Lookup("DeleteDocumentV3")
	require.NoError(t, err)
	assert.Equal(t, "deleteDocument.json", task.ConfigFile())

	task, err = r.Lookup("csvfilesextractor")
	require.NoError(t, err)
	assert.Equal(t, "CsvFilesExtractor", task.Name())
}

func TestRegistry_LookupReturnsFreshTasks(t *testing.T) {
	r := DefaultRegistry()

	a, err := r.Lookup("CoreDataDump")
	require.NoError(t, err)
	b, err := r.Lookup("CoreDataDump")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
}

func TestRegistry_UnknownTask(t *testing.T) {
	_, err := DefaultRegistry().Lookup("PurgeEverything")

	var unknown *UnknownTaskError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "PurgeEverything", unknown.Name)
	assert.Len(t, unknown.Known, 4)
	assert.Contains(t, err.Error(), "DocumentExistenceChecker")
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(func() Task { return &Dump{} }))

	err := r.Register(func() Task { return &Dump{} })

	assert.True(t, errors.Is(err, ErrTaskExists))
}

func TestRegistry_Tasks(t *testing.T) {
	tasks := DefaultRegistry().Tasks()

	require.Len(t, tasks, 4)
	assert.Equal(t, "CoreDataDump", tasks[0].Name())
	assert.Equal(t, "coreDataDump.json", tasks[0].ConfigFile())
}
