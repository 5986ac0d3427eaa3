package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leefowlercu/cmxbatch/internal/metrics"
)

// DefaultMaxFailures is the number of failure reasons kept in a Summary.
const DefaultMaxFailures = 10

// ErrSkipped is returned by an Operation that deliberately did nothing.
var ErrSkipped = errors.New("item skipped")

// Outcome is the final state of one item.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Operation is the per-item work. It must be safe to call more than once.
type Operation func(ctx context.Context) error

// Result is the final outcome of one item.
type Result struct {
	Item     string
	Outcome  Outcome
	Attempts int
	Err      error
}

// Failure is one recorded item failure.
type Failure struct {
	Item     string `json:"item" yaml:"item"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Reason   string `json:"reason" yaml:"reason"`
}

// Summary aggregates item outcomes for a run.
type Summary struct {
	Succeeded int       `json:"succeeded" yaml:"succeeded"`
	Failed    int       `json:"failed" yaml:"failed"`
	Skipped   int       `json:"skipped" yaml:"skipped"`
	Retries   int       `json:"retries" yaml:"retries"`
	Failures  []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Total returns the number of items with a final outcome.
func (s Summary) Total() int {
	return s.Succeeded + s.Failed + s.Skipped
}

// Merge adds other into s, keeping at most limit failure reasons.
func (s *Summary) Merge(other Summary, limit int) {
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.Retries += other.Retries
	for _, f := range other.Failures {
		if len(s.Failures) >= limit {
			break
		}
		s.Failures = append(s.Failures, f)
	}
}

// Options configures a Pool.
type Options struct {
	// Workers bounds the number of operations in flight.
	Workers int

	// Policy retries transient failures of each item.
	Policy Policy

	// ItemTimeout bounds each attempt. Zero means no per-attempt timeout.
	ItemTimeout time.Duration

	// MaxFailures bounds the failure reasons kept in the Summary.
	MaxFailures int

	// Task labels metrics and log lines.
	Task string

	Logger *slog.Logger
}

// Pool runs operations with bounded concurrency and per-item retry.
//
// Operations run on a context that is detached from the caller's cancellation
// so that an item already in flight can finish when the run is cancelled;
// each attempt is still bounded by ItemTimeout.
type Pool struct {
	opts   Options
	group  errgroup.Group
	logger *slog.Logger

	mu      sync.Mutex
	summary Summary

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// NewPool creates a pool.
func NewPool(opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Pool{
		opts:   opts,
		logger: opts.Logger,
	}
	p.group.SetLimit(opts.Workers)
	return p
}

// Submit dispatches op for item. It blocks while Workers operations are in
// flight. When ctx is already cancelled the item is not dispatched, it is
// recorded as skipped, and Submit returns false. An item whose slot frees up
// only after cancellation is also skipped. done, if not nil, is called
// exactly once with the final result, skipped items included.
func (p *Pool) Submit(ctx context.Context, item string, op Operation, done func(Result)) bool {
	if err := ctx.Err(); err != nil {
		p.finish(Result{Item: item, Outcome: OutcomeSkipped, Err: err}, 0, done)
		return false
	}

	p.group.Go(func() error {
		// The run may have been cancelled while waiting for a slot.
		if err := ctx.Err(); err != nil {
			p.finish(Result{Item: item, Outcome: OutcomeSkipped, Err: err}, 0, done)
			return nil
		}

		p.enter()
		defer p.leave()

		start := time.Now()
		detached := context.WithoutCancel(ctx)

		attempts, err := p.opts.Policy.Do(ctx, func(context.Context) error {
			attemptCtx := detached
			if p.opts.ItemTimeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(detached, p.opts.ItemTimeout)
				defer cancel()
			}
			return op(attemptCtx)
		})

		result := Result{Item: item, Attempts: attempts, Err: err}
		switch {
		case err == nil:
			result.Outcome = OutcomeSucceeded
		case errors.Is(err, ErrSkipped):
			result.Outcome = OutcomeSkipped
			result.Err = nil
		default:
			result.Outcome = OutcomeFailed
		}

		p.finish(result, time.Since(start), done)
		return nil
	})
	return true
}

// Record adds a result that was produced without dispatching an operation.
func (p *Pool) Record(result Result) {
	p.finish(result, 0, nil)
}

// Wait blocks until every dispatched item has finished and returns the summary.
func (p *Pool) Wait() Summary {
	_ = p.group.Wait()
	return p.Summary()
}

// Summary returns a snapshot of the outcomes recorded so far.
func (p *Pool) Summary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.summary
	s.Failures = append([]Failure(nil), p.summary.Failures...)
	return s
}

// MaxInFlight returns the highest number of operations observed in flight at once.
func (p *Pool) MaxInFlight() int {
	return int(p.maxInFlight.Load())
}

func (p *Pool) enter() {
	n := p.inFlight.Add(1)
	metrics.ItemsInFlight.WithLabelValues(p.opts.Task).Inc()
	for {
		cur := p.maxInFlight.Load()
		if n <= cur || p.maxInFlight.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (p *Pool) leave() {
	p.inFlight.Add(-1)
	metrics.ItemsInFlight.WithLabelValues(p.opts.Task).Dec()
}

func (p *Pool) finish(result Result, duration time.Duration, done func(Result)) {
	p.mu.Lock()
	switch result.Outcome {
	case OutcomeSucceeded:
		p.summary.Succeeded++
	case OutcomeSkipped:
		p.summary.Skipped++
	case OutcomeFailed:
		p.summary.Failed++
		if len(p.summary.Failures) < p.opts.MaxFailures {
			reason := "unknown error"
			if result.Err != nil {
				reason = result.Err.Error()
			}
			p.summary.Failures = append(p.summary.Failures, Failure{
				Item:     result.Item,
				Attempts: result.Attempts,
				Reason:   reason,
			})
		}
	}
	if result.Attempts > 1 {
		p.summary.Retries += result.Attempts - 1
	}
	p.mu.Unlock()

	metrics.RecordItem(p.opts.Task, result.Outcome.String(), result.Attempts, duration)

	if result.Outcome == OutcomeFailed {
		p.logger.Warn("item failed",
			"item", result.Item,
			"attempts", result.Attempts,
			"error", result.Err)
	} else {
		p.logger.Debug("item finished",
			"item", result.Item,
			"outcome", result.Outcome.String(),
			"attempts", result.Attempts)
	}

	if done != nil {
		done(result)
	}
}
