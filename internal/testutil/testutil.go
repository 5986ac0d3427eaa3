// Package testutil builds isolated resources directories for command tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/leefowlercu/cmxbatch/internal/config"
)

// Resources is a temporary resources directory: one properties file plus
// task files.
type Resources struct {
	t   *testing.T
	Dir string
}

// NewResources creates an empty resources directory and hides every
// CMXBATCH_ environment override from the test. Cleanup is automatic.
func NewResources(t *testing.T) *Resources {
	t.Helper()

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix+"_") {
			// Empty values are ignored by the loader.
			t.Setenv(name, "")
		}
	}

	dir := filepath.Join(t.TempDir(), "resources")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create resources dir: %v", err)
	}
	return &Resources{t: t, Dir: dir}
}

// WriteProperties writes cmx.properties for the given endpoints. overrides
// replace or add keys.
func (r *Resources) WriteProperties(maamURL, coreURL string, overrides map[string]string) string {
	r.t.Helper()

	props := map[string]string{
		"cmx.maam.url":              maamURL,
		"cmx.maam.user":             "batch-client",
		"cmx.maam.password":         "s3cret",
		"cmx.core.url":              coreURL,
		"cmx.core.storeid":          "STORE01",
		"cmx.core.nbThreads":        "2",
		"cmx.core.retry-base-delay": "1ms",
		"cmx.core.retry-max-delay":  "5ms",
	}
	for k, v := range overrides {
		props[k] = v
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, props[k])
	}
	return r.WriteFile("cmx"+config.PropertiesExt, b.String())
}

// WriteFile writes content to name inside the resources directory.
// Returns the absolute path to the created file.
func (r *Resources) WriteFile(name, content string) string {
	r.t.Helper()

	path := filepath.Join(r.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.t.Fatalf("failed to create parent dir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// Path returns the absolute path of name inside the resources directory.
func (r *Resources) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// Glob lists files of the resources directory matching pattern.
func (r *Resources) Glob(pattern string) []string {
	r.t.Helper()

	matches, err := filepath.Glob(filepath.Join(r.Dir, pattern))
	if err != nil {
		r.t.Fatalf("bad pattern %q: %v", pattern, err)
	}
	return matches
}
