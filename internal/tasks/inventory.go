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
	"github.com/leefowlercu/cmxbatch/internal/output"
)

// FileSpec describes one CSV file of the inventory.
type FileSpec struct {
	FileName       string          `json:"fileName"`
	Columns        []string        `json:"columns"`
	RawCriteria    json.RawMessage `json:"criteria"`
	RawFileColumns []string        `json:"rawFileColumns"`

	Criteria criteria.Criterion `json:"-"`
}

// InventoryConfig is the content of referential.json.
type InventoryConfig struct {
	FilesToCreate []FileSpec `json:"filesToCreate"`
	OutputDir     string     `json:"outputDir"`
	Separator     string     `json:"separator"`

	separator rune
}

// Inventory exports document metadata to one CSV file per FileSpec.
type Inventory struct {
	cfg InventoryConfig
}

func (t *Inventory) Name() string       { return "CsvFilesExtractor" }
func (t *Inventory) ConfigFile() string { return "referential.json" }

// Config returns the loaded configuration.
func (t *Inventory) Config() InventoryConfig { return t.cfg }

func (t *Inventory) Configure(resourcesPath string) error {
	path := filepath.Join(resourcesPath, t.ConfigFile())

	var cfg InventoryConfig
	if err := config.DecodeTaskFile(resourcesPath, t.ConfigFile(), &cfg); err != nil {
		return err
	}

	if len(cfg.FilesToCreate) == 0 {
		return invalid(path, "filesToCreate must list at least one file")
	}

	sep, err := output.ParseSeparator(cfg.Separator)
	if err != nil {
		return invalid(path, "separator: %v", err)
	}
	cfg.separator = sep

	seen := make(map[string]bool)
	for i := range cfg.FilesToCreate {
		spec := &cfg.FilesToCreate[i]
		field := fmt.Sprintf("filesToCreate[%d]", i)

		if spec.FileName == "" {
			return invalid(path, "%s.fileName must not be empty", field)
		}
		if spec.FileName != filepath.Base(spec.FileName) {
			return invalid(path, "%s.fileName must be a plain file name, got %q", field, spec.FileName)
		}
		if seen[spec.FileName] {
			return invalid(path, "%s.fileName %q is used twice", field, spec.FileName)
		}
		seen[spec.FileName] = true

		if len(spec.Columns)+len(spec.RawFileColumns) == 0 {
			return invalid(path, "%s must select at least one column", field)
		}

		crit, err := decodeCriteria(path, field+".criteria", spec.RawCriteria)
		if err != nil {
			return err
		}
		spec.Criteria = crit
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = resourcesPath
	}
	cfg.OutputDir = resolvePath(resourcesPath, cfg.OutputDir)

	t.cfg = cfg
	return nil
}

func (t *Inventory) Run(ctx context.Context, env *Env) (Output, error) {
	var out Output
	for _, spec := range t.cfg.FilesToCreate {
		if ctx.Err() != nil {
			break
		}

		summary, path, err := t.extract(ctx, env, spec)
		out.Summary.Merge(summary, coordinator.DefaultMaxFailures)
		if path != "" {
			out.Files = append(out.Files, path)
		}
		if err != nil {
			return out, fmt.Errorf("failed to extract %s; %w", spec.FileName, err)
		}
	}
	return out, nil
}

func (t *Inventory) extract(ctx context.Context, env *Env, spec FileSpec) (coordinator.Summary, string, error) {
	logger := env.logger().With("file", spec.FileName)

	header := make([]string, 0, len(spec.Columns)+len(spec.RawFileColumns))
	header = append(header, spec.Columns...)
	header = append(header, spec.RawFileColumns...)

	path := filepath.Join(t.cfg.OutputDir, spec.FileName)
	w, err := output.NewCSVWriter(path, output.CSVOptions{
		Separator: t.cfg.separator,
		Header:    header,
	})
	if err != nil {
		return coordinator.Summary{}, "", err
	}

	r := env.newRunner(ctx, t.Name(), 0)
	stream := env.search(spec.Criteria, env.PageSize)

	streamErr := r.drain(stream, func(seq int, doc cmxapi.DocumentRecord) {
		row := make([]string, 0, len(header))
		for _, col := range spec.Columns {
			row = append(row, doc.Column(col))
		}

		if len(spec.RawFileColumns) == 0 {
			w.Write(seq, row)
			r.record(doc.ID, coordinator.OutcomeSucceeded)
			return
		}

		var file cmxapi.RawFile
		fetch := func(ctx context.Context) error {
			var err error
			file, err = env.Store.GetRawFile(ctx, doc.ID)
			return err
		}
		r.submit(doc.ID, fetch, func(res coordinator.Result) {
			if res.Outcome != coordinator.OutcomeSucceeded {
				w.Skip(seq)
				return
			}
			full := row
			for _, col := range spec.RawFileColumns {
				full = append(full, file.Column(col))
			}
			w.Write(seq, full)
		})
	})

	summary, runErr := r.wait()
	closeErr := w.Close()

	logger.Info("inventory file written",
		"path", path,
		"rows", w.Rows(),
		"pages", stream.Pages(),
		"failed", summary.Failed)

	return summary, path, errors.Join(streamErr, runErr, closeErr)
}
