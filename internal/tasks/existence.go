package tasks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leefowlercu/cmxbatch/internal/cmxapi"
	"github.com/leefowlercu/cmxbatch/internal/config"
	"github.com/leefowlercu/cmxbatch/internal/coordinator"
	"github.com/leefowlercu/cmxbatch/internal/criteria"
	"github.com/leefowlercu/cmxbatch/internal/output"
)

// Existence statuses written to the result file.
const (
	StatusFound    = "Found"
	StatusNotFound = "NotFound"
	StatusError    = "Error"
)

// DefaultIDField is the metadata field probed by the existence check.
const DefaultIDField = "id"

// ExistenceCheckConfig is the content of documentExistenceChecker.json.
type ExistenceCheckConfig struct {
	InputFile      string `json:"inputFile"`
	OutputDir      string `json:"outputDir"`
	NbThreads      int    `json:"nbThreads"`
	SearchPageSize int    `json:"searchPageSize"`
	IDField        string `json:"idField"`
}

// ExistenceCheck probes every id of an input file and records whether the
// document store knows it.
type ExistenceCheck struct {
	cfg ExistenceCheckConfig
}

func (t *ExistenceCheck) Name() string       { return "DocumentExistenceChecker" }
func (t *ExistenceCheck) ConfigFile() string { return "documentExistenceChecker.json" }

// Config returns the loaded configuration.
func (t *ExistenceCheck) Config() ExistenceCheckConfig { return t.cfg }

func (t *ExistenceCheck) Configure(resourcesPath string) error {
	path := filepath.Join(resourcesPath, t.ConfigFile())

	var cfg ExistenceCheckConfig
	if err := config.DecodeTaskFile(resourcesPath, t.ConfigFile(), &cfg); err != nil {
		return err
	}

	if cfg.InputFile == "" {
		return invalid(path, "inputFile must not be empty")
	}
	if cfg.OutputDir == "" {
		return invalid(path, "outputDir must not be empty")
	}
	if cfg.NbThreads < 0 || cfg.NbThreads > config.MaxNbThreads {
		return invalid(path, "nbThreads must be between 0 and %d, got %d", config.MaxNbThreads, cfg.NbThreads)
	}
	if cfg.SearchPageSize < 0 || cfg.SearchPageSize > config.MaxPageSize {
		return invalid(path, "searchPageSize must be between 0 and %d, got %d", config.MaxPageSize, cfg.SearchPageSize)
	}
	if cfg.IDField == "" {
		cfg.IDField = DefaultIDField
	}

	cfg.InputFile = resolvePath(resourcesPath, cfg.InputFile)
	cfg.OutputDir = resolvePath(resourcesPath, cfg.OutputDir)
	if _, err := os.Stat(cfg.InputFile); err != nil {
		return invalid(path, "inputFile: %v", err)
	}

	t.cfg = cfg
	return nil
}

func (t *ExistenceCheck) Run(ctx context.Context, env *Env) (Output, error) {
	ids, err := readIDs(t.cfg.InputFile, t.cfg.IDField)
	if err != nil {
		return Output{}, err
	}
	env.logger().Info("ids loaded", "file", t.cfg.InputFile, "count", len(ids))

	path := filepath.Join(t.cfg.OutputDir, fmt.Sprintf("documentExistenceChecker_%s.csv", env.RunID))
	w, err := output.NewCSVWriter(path, output.CSVOptions{
		Header: []string{"id", "status", "documentId", "error"},
	})
	if err != nil {
		return Output{}, err
	}

	pageSize := t.cfg.SearchPageSize
	if pageSize <= 0 {
		pageSize = env.PageSize
	}

	r := env.newRunner(ctx, t.Name(), t.cfg.NbThreads)
	for seq, id := range ids {
		if r.stopping() {
			break
		}

		var matches []string
		probe := func(ctx context.Context) error {
			page, err := env.Store.SearchPage(ctx, cmxapi.PageRequest{
				Criteria: criteria.Eq{Field: t.cfg.IDField, Value: criteria.String(id)},
				PageSize: pageSize,
			})
			if err != nil {
				return err
			}
			matches = matches[:0]
			for _, doc := range page.Documents {
				matches = append(matches, doc.ID)
			}
			return nil
		}

		r.submit(id, probe, func(res coordinator.Result) {
			// A skipped id was never searched for; it gets no row.
			if res.Outcome == coordinator.OutcomeSkipped {
				w.Skip(seq)
				return
			}
			row := []string{id, StatusNotFound, "", ""}
			switch {
			case res.Outcome == coordinator.OutcomeFailed:
				row[1] = StatusError
				row[3] = res.Err.Error()
			case len(matches) > 0:
				row[1] = StatusFound
				row[2] = strings.Join(matches, "|")
			}
			w.Write(seq, row)
		})
	}

	summary, runErr := r.wait()
	if err := w.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return Output{Summary: summary, Files: []string{path}}, runErr
}

// readIDs reads one id per line. Blank lines and # comments are skipped, the
// first ';' or ',' separated cell is used, and a header naming idField is
// dropped.
func readIDs(path, idField string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file; %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 0; scanner.Scan(); line++ {
		text := scanner.Text()
		if line == 0 {
			text = strings.TrimPrefix(text, "\uFEFF")
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if i := strings.IndexAny(text, ";,"); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		text = strings.Trim(text, `"`)
		if len(ids) == 0 && (strings.EqualFold(text, idField) || strings.EqualFold(text, DefaultIDField)) {
			continue
		}
		if text == "" {
			continue
		}
		ids = append(ids, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input file; %w", err)
	}
	return ids, nil
}
