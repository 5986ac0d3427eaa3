package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/leefowlercu/cmxbatch/internal/cmxapi"
	"github.com/leefowlercu/cmxbatch/internal/config"
	"github.com/leefowlercu/cmxbatch/internal/coordinator"
	"github.com/leefowlercu/cmxbatch/internal/criteria"
	"github.com/leefowlercu/cmxbatch/internal/fsutil"
	"github.com/leefowlercu/cmxbatch/internal/output"
)

// DumpConfig is the content of coreDataDump.json.
type DumpConfig struct {
	RawCriteria json.RawMessage `json:"extractionCriteria"`
	OutputDir   string          `json:"outputDir"`

	// IncludeContent downloads each document's content next to the dump.
	// Defaults to true.
	IncludeContent *bool `json:"includeContent"`

	Criteria criteria.Criterion `json:"-"`
}

// WithContent reports whether content is downloaded.
func (c DumpConfig) WithContent() bool {
	return c.IncludeContent == nil || *c.IncludeContent
}

// DumpLine is one line of the dump file.
type DumpLine struct {
	ID          string          `json:"id"`
	Metadata    json.RawMessage `json:"metadata"`
	ContentFile string          `json:"contentFile,omitempty"`
	ContentSize int64           `json:"contentSize,omitempty"`
}

// Dump writes the full metadata, and optionally the content, of every
// document matching a criterion.
type Dump struct {
	cfg DumpConfig
}

func (t *Dump) Name() string       { return "CoreDataDump" }
func (t *Dump) ConfigFile() string { return "coreDataDump.json" }

// Config returns the loaded configuration.
func (t *Dump) Config() DumpConfig { return t.cfg }

func (t *Dump) Configure(resourcesPath string) error {
	path := filepath.Join(resourcesPath, t.ConfigFile())

	var cfg DumpConfig
	if err := config.DecodeTaskFile(resourcesPath, t.ConfigFile(), &cfg); err != nil {
		return err
	}

	crit, err := decodeCriteria(path, "extractionCriteria", cfg.RawCriteria)
	if err != nil {
		return err
	}
	cfg.Criteria = crit

	if cfg.OutputDir == "" {
		cfg.OutputDir = resourcesPath
	}
	cfg.OutputDir = resolvePath(resourcesPath, cfg.OutputDir)

	t.cfg = cfg
	return nil
}

func (t *Dump) Run(ctx context.Context, env *Env) (Output, error) {
	path := filepath.Join(t.cfg.OutputDir, fmt.Sprintf("coreDataDump_%s.jsonl", env.RunID))
	contentDir := filepath.Join(t.cfg.OutputDir, "content")

	w, err := output.NewJSONLWriter(path)
	if err != nil {
		return Output{}, err
	}
	out := Output{Files: []string{path}}
	if t.cfg.WithContent() {
		out.Files = append(out.Files, contentDir)
	}

	r := env.newRunner(ctx, t.Name(), 0)
	stream := env.search(t.cfg.Criteria, env.PageSize)

	streamErr := r.drain(stream, func(seq int, doc cmxapi.DocumentRecord) {
		var line DumpLine
		fetch := func(ctx context.Context) error {
			meta, err := env.Store.GetDocument(ctx, doc.ID)
			if err != nil {
				return err
			}
			line = DumpLine{ID: doc.ID, Metadata: meta}

			if !t.cfg.WithContent() {
				return nil
			}
			name, size, err := saveContent(ctx, env.Store, contentDir, doc.ID)
			if err != nil {
				return err
			}
			line.ContentFile = filepath.Join("content", name)
			line.ContentSize = size
			return nil
		}

		r.submit(doc.ID, fetch, func(res coordinator.Result) {
			if res.Outcome != coordinator.OutcomeSucceeded {
				w.Skip(seq)
				return
			}
			if err := w.Write(seq, line); err != nil {
				env.logger().Warn("dump line dropped", "id", doc.ID, "error", err)
			}
		})
	})

	summary, runErr := r.wait()
	out.Summary = summary
	if err := w.Close(); err != nil && runErr == nil {
		runErr = err
	}

	env.logger().Info("dump finished", "path", path, "lines", w.Lines(), "pages", stream.Pages())
	if streamErr != nil {
		return out, streamErr
	}
	return out, runErr
}

// saveContent downloads the content of id into dir.
func saveContent(ctx context.Context, store DocumentStore, dir, id string) (string, int64, error) {
	body, err := store.GetContent(ctx, id)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()

	name := fsutil.SafeName(id)
	size, err := fsutil.CopyAtomic(dir, name, body)
	if err != nil {
		// A broken download may succeed when repeated; a local write failure will not.
		var copyErr *fsutil.CopyError
		return "", 0, cmxapi.NewItemOperationError("content", id, errors.As(err, &copyErr), err)
	}
	return name, size, nil
}
