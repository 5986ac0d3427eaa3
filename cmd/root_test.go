package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/leefowlercu/cmxbatch/internal/tasks"
	"github.com/leefowlercu/cmxbatch/internal/testutil"
)

const deleteTaskFile = `{"erase": false, "dryRun": false, "criteria": {"applicationSource": {"$eq": "GED"}}}`

// fakeCMX serves the token endpoint and the document-store endpoints.
type fakeCMX struct {
	mu          sync.Mutex
	deleted     []string
	authHeaders []string
	missing     map[string]bool
	rejectAll   bool
}

func (f *fakeCMX) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/token" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	if f.rejectAll {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	const prefix = "/api/v3/stores/STORE01/documents/"
	id := strings.TrimPrefix(r.URL.Path, prefix)
	switch {
	case r.Method == http.MethodPost && id == "search":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"documents": []map[string]any{
				{"id": "doc-1", "externalId": "ext-1", "applicationSource": "GED"},
				{"id": "doc-2", "externalId": "ext-2", "applicationSource": "GED"},
			},
		})
	case r.Method == http.MethodDelete:
		if f.missing[id] {
			http.Error(w, "no such document", http.StatusNotFound)
			return
		}
		f.deleted = append(f.deleted, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func newFakeCMX(t *testing.T, f *fakeCMX) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	t.Cleanup(func() {
		resourcesPath = ""
		taskName = ""
	})

	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func readReport(t *testing.T, res *testutil.Resources) map[string]any {
	t.Helper()
	reports := res.Glob("DeleteDocumentV3_*.report.yaml")
	if len(reports) != 1 {
		t.Fatalf("found %d run reports, want 1", len(reports))
	}
	data, err := os.ReadFile(reports[0])
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("run report is not YAML: %v", err)
	}
	return doc
}

func TestRun_DeleteCompleted(t *testing.T) {
	fake := &fakeCMX{}
	srv := newFakeCMX(t, fake)
	res := testutil.NewResources(t)
	res.WriteProperties(srv.URL+"/oauth/token", srv.URL, nil)
	res.WriteFile("deleteDocument.json", deleteTaskFile)

	code, stdout, stderr := execute(t, "-resourcesPath="+res.Dir, "-task=DeleteDocumentV3")

	if code != tasks.ExitCompleted {
		t.Fatalf("exit code = %d, want %d\nstdout:\n%s\nstderr:\n%s", code, tasks.ExitCompleted, stdout, stderr)
	}
	if !strings.Contains(stdout, "DeleteDocumentV3 Completed") {
		t.Errorf("missing status line:\n%s", stdout)
	}

	fake.mu.Lock()
	deleted := append([]string(nil), fake.deleted...)
	headers := append([]string(nil), fake.authHeaders...)
	fake.mu.Unlock()

	if len(deleted) != 2 {
		t.Errorf("deleted = %v, want both documents", deleted)
	}
	for _, h := range headers {
		if h != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want the exchanged token", h)
		}
	}

	doc := readReport(t, res)
	if doc["state"] != "Completed" {
		t.Errorf("report state = %v, want Completed", doc["state"])
	}
}

func TestRun_PartiallyCompleted(t *testing.T) {
	fake := &fakeCMX{missing: map[string]bool{"doc-2": true}}
	srv := newFakeCMX(t, fake)
	res := testutil.NewResources(t)
	res.WriteProperties(srv.URL+"/oauth/token", srv.URL, nil)
	res.WriteFile("deleteDocument.json", deleteTaskFile)

	code, stdout, _ := execute(t, "-resourcesPath", res.Dir, "-task", "deletedocumentv3")

	if code != tasks.ExitPartiallyCompleted {
		t.Fatalf("exit code = %d, want %d\n%s", code, tasks.ExitPartiallyCompleted, stdout)
	}
	if !strings.Contains(stdout, "doc-2") {
		t.Errorf("failure table missing doc-2:\n%s", stdout)
	}
}

func TestRun_RejectedTokenFails(t *testing.T) {
	fake := &fakeCMX{rejectAll: true}
	srv := newFakeCMX(t, fake)
	res := testutil.NewResources(t)
	res.WriteProperties(srv.URL+"/oauth/token", srv.URL, nil)
	res.WriteFile("deleteDocument.json", deleteTaskFile)

	code, stdout, _ := execute(t, "--resourcesPath", res.Dir, "--task", "DeleteDocumentV3")

	if code != tasks.ExitFailed {
		t.Fatalf("exit code = %d, want %d\n%s", code, tasks.ExitFailed, stdout)
	}
	if len(fake.deleted) != 0 {
		t.Errorf("deleted = %v, want nothing", fake.deleted)
	}
}

func TestRun_ConfigErrorFailsBeforeNetwork(t *testing.T) {
	fake := &fakeCMX{}
	srv := newFakeCMX(t, fake)
	res := testutil.NewResources(t)
	res.WriteProperties(srv.URL+"/oauth/token", srv.URL, nil)
	res.WriteFile("deleteDocument.json", `{"criteria": {"applicationSource": {"$gt": "GED"}}}`)

	code, stdout, _ := execute(t, "-resourcesPath="+res.Dir, "-task=DeleteDocumentV3")

	if code != tasks.ExitFailed {
		t.Fatalf("exit code = %d, want %d\n%s", code, tasks.ExitFailed, stdout)
	}
	if len(fake.authHeaders) != 0 {
		t.Errorf("made %d document-store requests, want none", len(fake.authHeaders))
	}
	if doc := readReport(t, res); doc["state"] != "Failed" {
		t.Errorf("report state = %v, want Failed", doc["state"])
	}
}

func TestRun_MissingPropertiesFails(t *testing.T) {
	res := testutil.NewResources(t)
	res.WriteFile("deleteDocument.json", deleteTaskFile)

	code, stdout, _ := execute(t, "-resourcesPath="+res.Dir, "-task=DeleteDocumentV3")

	if code != tasks.ExitFailed {
		t.Fatalf("exit code = %d, want %d\n%s", code, tasks.ExitFailed, stdout)
	}
	if !strings.Contains(stdout, "no .properties file found") {
		t.Errorf("missing reason:\n%s", stdout)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no flags", nil, "-resourcesPath is required"},
		{"no task", []string{"-resourcesPath=" + dir}, "-task is required"},
		{"unknown task", []string{"-resourcesPath=" + dir, "-task=Nope"}, `unknown task "Nope"`},
		{"unknown flag", []string{"--bogus"}, "unknown flag"},
		{"stray argument", []string{"-resourcesPath=" + dir, "-task=CoreDataDump", "extra"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, tt.args...)
			if code != tasks.ExitUsage {
				t.Errorf("exit code = %d, want %d", code, tasks.ExitUsage)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr missing %q:\n%s", tt.want, stderr)
			}
			if !strings.Contains(stderr, "Usage:") {
				t.Errorf("stderr missing usage:\n%s", stderr)
			}
		})
	}
}

func TestRun_Subcommand(t *testing.T) {
	code, stdout, _ := execute(t, "tasks")
	if code != tasks.ExitCompleted {
		t.Fatalf("exit code = %d, want %d", code, tasks.ExitCompleted)
	}
	if !strings.Contains(stdout, "CsvFilesExtractor") {
		t.Errorf("tasks output missing CsvFilesExtractor:\n%s", stdout)
	}
}

func TestNormalizeArgs(t *testing.T) {
	long := map[string]bool{"resourcesPath": true, "task": true, "recursive": true}

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			"single dash with value",
			[]string{"-resourcesPath=/r", "-task=X"},
			[]string{"--resourcesPath=/r", "--task=X"},
		},
		{
			"single dash separate value",
			[]string{"-task", "X"},
			[]string{"--task", "X"},
		},
		{
			"double dash untouched",
			[]string{"--task=X"},
			[]string{"--task=X"},
		},
		{
			"shorthand untouched",
			[]string{"stats", "-r", "/data"},
			[]string{"stats", "-r", "/data"},
		},
		{
			"unknown name untouched",
			[]string{"-xyz"},
			[]string{"-xyz"},
		},
		{
			"stops at terminator",
			[]string{"-recursive", "--", "-task"},
			[]string{"--recursive", "--", "-task"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeArgs(tt.in, long); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("normalizeArgs(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLongFlagsIncludesSubcommands(t *testing.T) {
	names := longFlags(rootCmd)
	for _, want := range []string{"resourcesPath", "task", "recursive", "export", "json"} {
		if !names[want] {
			t.Errorf("longFlags() missing %q", want)
		}
	}
	if names["r"] {
		t.Error("longFlags() includes shorthand-only name")
	}
}
