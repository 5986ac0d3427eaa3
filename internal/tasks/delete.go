package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/leefowlercu/cmxbatch/internal/cmxapi"
	"github.com/leefowlercu/cmxbatch/internal/config"
	"github.com/leefowlercu/cmxbatch/internal/coordinator"
	"github.com/leefowlercu/cmxbatch/internal/criteria"
	"github.com/leefowlercu/cmxbatch/internal/output"
)

// DeleteConfig is the content of deleteDocument.json.
type DeleteConfig struct {
	// Erase requests permanent erasure instead of a reversible delete.
	Erase bool `json:"erase"`

	// DryRun selects and reports documents without deleting them.
	DryRun bool `json:"dryRun"`

	RawCriteria json.RawMessage `json:"criteria"`

	// OutputDir, when set, receives an audit CSV of every selected document.
	OutputDir string `json:"outputDir"`

	Criteria criteria.Criterion `json:"-"`
}

// Delete deletes every document matching a criterion.
type Delete struct {
	cfg DeleteConfig
}

func (t *Delete) Name() string       { return "DeleteDocumentV3" }
func (t *Delete) ConfigFile() string { return "deleteDocument.json" }

// Config returns the loaded configuration.
func (t *Delete) Config() DeleteConfig { return t.cfg }

func (t *Delete) Configure(resourcesPath string) error {
	path := filepath.Join(resourcesPath, t.ConfigFile())

	var cfg DeleteConfig
	if err := config.DecodeTaskFile(resourcesPath, t.ConfigFile(), &cfg); err != nil {
		return err
	}

	// Deleting the whole store takes an explicit criterion.
	if len(cfg.RawCriteria) == 0 || string(cfg.RawCriteria) == "null" {
		return invalid(path, "criteria must not be empty")
	}
	crit, err := decodeCriteria(path, "criteria", cfg.RawCriteria)
	if err != nil {
		return err
	}
	cfg.Criteria = crit
	cfg.OutputDir = resolvePath(resourcesPath, cfg.OutputDir)

	t.cfg = cfg
	return nil
}

func (t *Delete) Run(ctx context.Context, env *Env) (Output, error) {
	logger := env.logger().With("erase", t.cfg.Erase, "dry_run", t.cfg.DryRun)
	logger.Info("selecting documents to delete", "criteria", t.cfg.Criteria.String())

	var audit *output.CSVWriter
	var out Output
	if t.cfg.OutputDir != "" {
		path := filepath.Join(t.cfg.OutputDir, fmt.Sprintf("deleteDocument_%s.csv", env.RunID))
		w, err := output.NewCSVWriter(path, output.CSVOptions{
			Header: []string{"id", "externalId", "name", "status", "attempts", "error"},
		})
		if err != nil {
			return Output{}, err
		}
		audit = w
		out.Files = append(out.Files, path)
	}
	writeAudit := func(seq int, doc cmxapi.DocumentRecord, status string, attempts int, err error) {
		if audit == nil {
			return
		}
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		audit.Write(seq, []string{doc.ID, doc.ExternalID, doc.Name, status, strconv.Itoa(attempts), msg})
	}

	deleted := "deleted"
	if t.cfg.Erase {
		deleted = "erased"
	}

	r := env.newRunner(ctx, t.Name(), 0)
	stream := env.search(t.cfg.Criteria, env.PageSize)

	streamErr := r.drain(stream, func(seq int, doc cmxapi.DocumentRecord) {
		if t.cfg.DryRun {
			logger.Info("would delete document", "id", doc.ID, "external_id", doc.ExternalID, "name", doc.Name)
			r.record(doc.ID, coordinator.OutcomeSkipped)
			writeAudit(seq, doc, "dry-run", 0, nil)
			return
		}

		attempt := 0
		del := func(ctx context.Context) error {
			attempt++
			err := env.Store.Delete(ctx, doc.ID, t.cfg.Erase)
			// A retried delete answered with 404 means an earlier attempt was
			// applied but its reply was lost.
			if attempt > 1 && cmxapi.IsNotFound(err) {
				logger.Info("document already gone on retry", "id", doc.ID, "attempt", attempt)
				return nil
			}
			return err
		}
		r.submit(doc.ID, del, func(res coordinator.Result) {
			switch res.Outcome {
			case coordinator.OutcomeSucceeded:
				writeAudit(seq, doc, deleted, res.Attempts, nil)
			case coordinator.OutcomeFailed:
				writeAudit(seq, doc, "failed", res.Attempts, res.Err)
			default:
				writeAudit(seq, doc, "skipped", res.Attempts, res.Err)
			}
		})
	})

	summary, runErr := r.wait()
	out.Summary = summary

	if audit != nil {
		if err := audit.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}

	logger.Info("delete finished", "pages", stream.Pages())
	if streamErr != nil {
		return out, streamErr
	}
	return out, runErr
}
