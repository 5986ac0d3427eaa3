package tasks

import (
	"bytes"
	"strings"
	"testing"
)

func TestTasksCommandListsEveryTask(t *testing.T) {
	buf := new(bytes.Buffer)
	TasksCmd.SetOut(buf)
	TasksCmd.SetArgs([]string{})

	if err := TasksCmd.Execute(); err != nil {
		t.Fatalf("tasks command failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"DocumentExistenceChecker", "documentExistenceChecker.json",
		"CsvFilesExtractor", "referential.json",
		"DeleteDocumentV3", "deleteDocument.json",
		"CoreDataDump", "coreDataDump.json",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("tasks output missing %q:\n%s", want, output)
		}
	}
}
