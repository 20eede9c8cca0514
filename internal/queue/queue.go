// Package queue runs batches of jobs with bounded parallelism, a per-attempt
// wall-clock budget, and transient-vs-permanent retry classification.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one unit of work. Run must be safe to call again after a transient
// failure; idempotency comes from the workers' cache and persistence checks.
type Job interface {
	ID() string
	Run(ctx context.Context) error
}

// Outcome is the terminal result of one job. A non-nil Err means the job
// exhausted its attempts or failed permanently and is dead-letter material.
type Outcome struct {
	JobID    string
	Attempts int
	Err      error
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the pool dead-letters without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Pool executes jobs with a fixed worker count.
type Pool struct {
	workers     int
	maxAttempts int
	timeout     time.Duration
}

// NewPool builds a pool of workers where each job gets up to maxAttempts
// tries and each attempt a wall-clock budget of timeout.
func NewPool(workers, maxAttempts int, timeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pool{workers: workers, maxAttempts: maxAttempts, timeout: timeout}
}

// Run drains jobs and returns one outcome per job, in input order. Context
// cancellation stops new attempts; already-running attempts see their own
// context canceled.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = p.runOne(gctx, job)
			return nil
		})
	}
	g.Wait()

	return outcomes
}

func (p *Pool) runOne(ctx context.Context, job Job) Outcome {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Outcome{JobID: job.ID(), Attempts: attempt - 1, Err: fmt.Errorf("canceled: %w", ctx.Err())}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.timeout)
		}
		err := job.Run(attemptCtx)
		cancel()

		if err == nil {
			return Outcome{JobID: job.ID(), Attempts: attempt}
		}
		lastErr = err

		if IsPermanent(err) {
			return Outcome{JobID: job.ID(), Attempts: attempt, Err: err}
		}
		if attempt < p.maxAttempts {
			log.Printf("job %s attempt %d/%d failed: %v", job.ID(), attempt, p.maxAttempts, err)
		}
	}

	return Outcome{
		JobID:    job.ID(),
		Attempts: p.maxAttempts,
		Err:      fmt.Errorf("exhausted %d attempts: %w", p.maxAttempts, lastErr),
	}
}
