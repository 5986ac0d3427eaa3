// Package tasks implements the bulk operations run against the document store
// and the state machine that turns their outcome into a run result.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/leefowlercu/cmxbatch/internal/auth"
	"github.com/leefowlercu/cmxbatch/internal/cmxapi"
	"github.com/leefowlercu/cmxbatch/internal/config"
	"github.com/leefowlercu/cmxbatch/internal/coordinator"
	"github.com/leefowlercu/cmxbatch/internal/criteria"
)

// State is the lifecycle state of a run.
type State int

const (
	StateConfigured State = iota
	StateRunning
	StateCompleted
	StateFailed
	StatePartiallyCompleted
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "Configured"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StatePartiallyCompleted:
		return "PartiallyCompleted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalYAML renders the state by name.
func (s State) MarshalYAML() (any, error) { return s.String(), nil }

// MarshalJSON renders the state by name.
func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Exit codes. They are part of the command-line contract.
const (
	ExitCompleted          = 0
	ExitFailed             = 1
	ExitPartiallyCompleted = 2
	ExitUsage              = 64
)

// ReasonCancelled is the failure reason of a cancelled run.
const ReasonCancelled = "Cancelled"

// DocumentStore is the part of the document-store API the tasks use.
type DocumentStore interface {
	cmxapi.PageFetcher
	Delete(ctx context.Context, id string, erase bool) error
	GetDocument(ctx context.Context, id string) (json.RawMessage, error)
	GetContent(ctx context.Context, id string) (io.ReadCloser, error)
	GetRawFile(ctx context.Context, id string) (cmxapi.RawFile, error)
}

// Env carries what a running task needs. It is built once per run.
type Env struct {
	Store DocumentStore

	// Policy retries page requests and per-document operations.
	Policy coordinator.Policy

	// Workers bounds concurrent per-document operations.
	Workers int

	// PageSize is the default search page size.
	PageSize int

	// ItemTimeout bounds each attempt of a per-document operation.
	ItemTimeout time.Duration

	// ResourcesPath resolves relative paths in task files.
	ResourcesPath string

	RunID  string
	Logger *slog.Logger
	Now    func() time.Time
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Env) search(crit criteria.Criterion, pageSize int) *cmxapi.Stream {
	if pageSize <= 0 {
		pageSize = e.PageSize
	}
	return cmxapi.NewStream(e.Store, crit, pageSize, e.Policy)
}

// Output is what a task reports back to the engine.
type Output struct {
	Summary coordinator.Summary
	Files   []string
}

// Task is one kind of bulk operation.
type Task interface {
	// Name is the value of the -task flag.
	Name() string

	// ConfigFile is the task file read from the resources directory.
	ConfigFile() string

	// Configure reads and validates the task file. Failures are *config.ConfigError.
	Configure(resourcesPath string) error

	// Run processes the selected documents. A non-nil error is a run-level
	// failure; per-document failures are reported in the summary.
	Run(ctx context.Context, env *Env) (Output, error)
}

// Result is the outcome of a run.
type Result struct {
	Task     string              `yaml:"task" json:"task"`
	RunID    string              `yaml:"run_id" json:"run_id"`
	State    State               `yaml:"state" json:"state"`
	Reason   string              `yaml:"reason,omitempty" json:"reason,omitempty"`
	Summary  coordinator.Summary `yaml:"summary" json:"summary"`
	Files    []string            `yaml:"files,omitempty" json:"files,omitempty"`
	Started  time.Time           `yaml:"started" json:"started"`
	Finished time.Time           `yaml:"finished" json:"finished"`
}

// Duration returns how long the run took.
func (r Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// ExitCode maps the final state to the process exit code.
func (r Result) ExitCode() int {
	switch r.State {
	case StateCompleted:
		return ExitCompleted
	case StatePartiallyCompleted:
		return ExitPartiallyCompleted
	default:
		return ExitFailed
	}
}

// Failed builds the result of a run that could not start, such as one with
// an invalid configuration.
func Failed(task, runID string, err error, at time.Time) Result {
	return Result{
		Task:     task,
		RunID:    runID,
		State:    StateFailed,
		Reason:   err.Error(),
		Started:  at,
		Finished: at,
	}
}

// Execute runs a configured task and classifies its outcome.
func Execute(ctx context.Context, task Task, env *Env) Result {
	logger := env.logger().With("task", task.Name(), "run_id", env.RunID)

	res := Result{
		Task:    task.Name(),
		RunID:   env.RunID,
		State:   StateRunning,
		Started: env.now(),
	}
	logger.Info("run started", "workers", env.Workers, "page_size", env.PageSize)

	out, err := task.Run(ctx, env)
	res.Summary = out.Summary
	res.Files = out.Files
	res.Finished = env.now()
	res.State, res.Reason = classify(ctx, out.Summary, err)

	attrs := []any{
		"state", res.State.String(),
		"succeeded", res.Summary.Succeeded,
		"failed", res.Summary.Failed,
		"skipped", res.Summary.Skipped,
		"duration", res.Duration().Round(time.Millisecond),
	}
	if res.Reason != "" {
		attrs = append(attrs, "reason", res.Reason)
	}
	if res.State == StateCompleted {
		logger.Info("run finished", attrs...)
	} else {
		logger.Warn("run finished", attrs...)
	}
	return res
}

func classify(ctx context.Context, s coordinator.Summary, err error) (State, string) {
	if ctx.Err() != nil {
		return StateFailed, ReasonCancelled
	}

	if err != nil {
		// A run that stopped before any record succeeded produced nothing.
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) || s.Succeeded == 0 {
			return StateFailed, err.Error()
		}
		return StatePartiallyCompleted, err.Error()
	}

	if s.Failed > 0 {
		return StatePartiallyCompleted, fmt.Sprintf("%d of %d items failed", s.Failed, s.Total())
	}
	return StateCompleted, ""
}

// runner ties a task's pool to a context that a fatal item error cancels.
type runner struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	pool   *coordinator.Pool
	logger *slog.Logger
}

func (e *Env) newRunner(ctx context.Context, task string, workers int) *runner {
	if workers <= 0 {
		workers = e.Workers
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	return &runner{
		ctx:    runCtx,
		cancel: cancel,
		logger: e.logger(),
		pool: coordinator.NewPool(coordinator.Options{
			Workers:     workers,
			Policy:      e.Policy,
			ItemTimeout: e.ItemTimeout,
			Task:        task,
			Logger:      e.logger().With("task", task),
		}),
	}
}

// submit dispatches op. done also receives items skipped because the run is
// stopping.
func (r *runner) submit(item string, op coordinator.Operation, done func(coordinator.Result)) {
	r.pool.Submit(r.ctx, item, op, func(res coordinator.Result) {
		var authErr *auth.AuthError
		if errors.As(res.Err, &authErr) {
			r.logger.Error("credentials rejected; stopping run", "error", res.Err)
			r.cancel(res.Err)
		}
		if done != nil {
			done(res)
		}
	})
}

// record counts an item that needed no operation.
func (r *runner) record(item string, outcome coordinator.Outcome) {
	r.pool.Record(coordinator.Result{Item: item, Outcome: outcome})
}

// stopping reports whether dispatch should stop.
func (r *runner) stopping() bool {
	return r.ctx.Err() != nil
}

// wait waits for in-flight items. It returns the error that stopped the run
// early, if any was raised by an item.
func (r *runner) wait() (coordinator.Summary, error) {
	summary := r.pool.Wait()
	cause := context.Cause(r.ctx)
	r.cancel(nil)
	if cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return summary, cause
	}
	return summary, nil
}

// drain feeds every record of stream to handle, in stream order, until the
// stream ends or the run stops. handle receives a dense sequence number.
func (r *runner) drain(stream *cmxapi.Stream, handle func(seq int, doc cmxapi.DocumentRecord)) error {
	for seq := 0; ; seq++ {
		if r.stopping() {
			return nil
		}
		doc, err := stream.Next(r.ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if r.stopping() {
				return nil
			}
			return err
		}
		handle(seq, doc)
	}
}

// resolvePath makes a task-file path absolute against the resources directory.
func resolvePath(resourcesPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(resourcesPath, p)
}

// decodeCriteria builds the criterion of a task file. An absent criterion
// matches everything.
func decodeCriteria(path, field string, raw json.RawMessage) (criteria.Criterion, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return criteria.MatchAll(), nil
	}
	c, err := criteria.Parse(raw)
	if err != nil {
		return nil, &config.ConfigError{Path: path, Err: fmt.Errorf("%s: %w", field, err)}
	}
	return c, nil
}

func invalid(path, format string, args ...any) error {
	return &config.ConfigError{Path: path, Err: fmt.Errorf(format, args...)}
}
