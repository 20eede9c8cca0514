// Package pipeline holds the coordinator: the singleton state machine that
// drives a full run from manifest to synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/LifeLens/internal/aggregate"
	"github.com/TobiSchelling/LifeLens/internal/cache"
	"github.com/TobiSchelling/LifeLens/internal/config"
	"github.com/TobiSchelling/LifeLens/internal/database"
	"github.com/TobiSchelling/LifeLens/internal/extract"
	"github.com/TobiSchelling/LifeLens/internal/insight"
	"github.com/TobiSchelling/LifeLens/internal/journal"
	"github.com/TobiSchelling/LifeLens/internal/llm"
	"github.com/TobiSchelling/LifeLens/internal/metrics"
	"github.com/TobiSchelling/LifeLens/internal/objectstore"
	"github.com/TobiSchelling/LifeLens/internal/prompt"
	"github.com/TobiSchelling/LifeLens/internal/queue"
)

// ErrInvalidTransition is returned when a run is requested while one is
// already in progress, or while a prior run's persisted state exists.
// The latter is cleared with Reset.
var ErrInvalidTransition = errors.New("pipeline is not idle")

// Status is the read surface for the CLI and the HTTP API.
type Status struct {
	State       *database.PipelineState
	Stats       *database.Stats
	DeadLetters []database.JobStatus
}

// Coordinator owns the run lifecycle. It is the only writer of the durable
// pipeline state row; workers own their job status rows.
type Coordinator struct {
	cfg        *config.Config
	db         *database.DB
	bucket     objectstore.Bucket
	extractor  *extract.Worker
	aggregator *aggregate.Worker

	mu      sync.Mutex
	running bool

	stateMu sync.Mutex
	state   database.PipelineState
}

// New builds a coordinator with an HTTP-backed LLM provider from config.
func New(cfg *config.Config, db *database.DB, c *cache.Cache, bucket objectstore.Bucket) *Coordinator {
	provider := llm.NewOpenAIProvider(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKeyEnv, cfg.RequestTimeout())
	return NewWithProvider(cfg, db, c, bucket, provider)
}

// NewWithProvider builds a coordinator around an explicit provider.
func NewWithProvider(cfg *config.Config, db *database.DB, c *cache.Cache, bucket objectstore.Bucket, provider llm.Provider) *Coordinator {
	gw := llm.NewGateway(provider, cfg.LLM.RequestsPerMinute, cfg.LLM.DailyRequestCap, cfg.LLM.MaxRetries)
	return &Coordinator{
		cfg:        cfg,
		db:         db,
		bucket:     bucket,
		extractor:  extract.NewWorker(db, c, bucket, gw, cfg.LLM.Temperature, cfg.LLM.MaxTokens),
		aggregator: aggregate.NewWorker(db, c, gw, cfg.LLM.Temperature, cfg.LLM.MaxTokens),
	}
}

// Start begins a run in the background, failing fast when one is active.
// The run is detached from any request lifecycle.
func (c *Coordinator) Start() error {
	if !c.tryAcquire() {
		return ErrInvalidTransition
	}
	if err := c.checkIdle(); err != nil {
		c.release()
		return err
	}
	go func() {
		defer c.release()
		if err := c.run(context.Background()); err != nil {
			log.Printf("pipeline run failed: %v", err)
		}
	}()
	return nil
}

// Run executes one full pipeline run: extraction, then each aggregation tier
// in dependency order. Dead-lettered jobs become warnings and the run keeps
// going; a daily budget exhaustion or an unreadable manifest aborts it.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.tryAcquire() {
		return ErrInvalidTransition
	}
	defer c.release()
	if err := c.checkIdle(); err != nil {
		return err
	}
	return c.run(ctx)
}

// checkIdle refuses to start over a persisted prior run. Whether it completed,
// aborted, or was left behind by a crash, its state must be cleared with Reset
// before the next run; the replay itself is driven by artifacts and job rows,
// not by this state row.
func (c *Coordinator) checkIdle() error {
	state, err := c.db.GetPipelineState()
	if err != nil {
		return fmt.Errorf("reading pipeline state: %w", err)
	}
	if state != nil && state.Phase != database.PhaseIdle {
		return fmt.Errorf("%w: persisted phase is %s, reset first", ErrInvalidTransition, state.Phase)
	}
	return nil
}

func (c *Coordinator) tryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *Coordinator) release() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Coordinator) run(ctx context.Context) error {
	weekStart, err := insight.ParseWeekday(c.cfg.Pipeline.WeekStartDay)
	if err != nil {
		return err
	}

	// A bad manifest is fatal before any state is written: the pipeline
	// stays idle and prior artifacts stay untouched.
	manifest, err := c.loadManifest(ctx)
	if err != nil {
		return err
	}

	now := nowUTC()
	c.stateMu.Lock()
	c.state = database.PipelineState{
		Phase:        database.PhaseExtracting,
		TotalEntries: manifest.TotalEntries,
		RunID:        uuid.NewString(),
		StartedAt:    &now,
	}
	c.stateMu.Unlock()
	c.persistState()
	metrics.SetPhase(database.PhaseExtracting)
	metrics.ProcessedEntries.Set(0)
	log.Printf("run %s: %d entries, %s to %s",
		c.state.RunID, manifest.TotalEntries, manifest.DateRange.Start, manifest.DateRange.End)

	if err := c.runExtraction(ctx, manifest); err != nil {
		return err
	}
	if missing := c.unaccountedEntries(manifest); len(missing) > 0 {
		c.appendWarning(fmt.Sprintf("%d entries unaccounted after extraction: %v", len(missing), missing))
		c.persistState()
		return fmt.Errorf("%d entries unaccounted after extraction", len(missing))
	}

	c.setPhase(database.PhaseAggregating)

	weeks, err := insight.WeekWindows(manifest.DateRange.Start, manifest.DateRange.End, weekStart)
	if err != nil {
		return err
	}
	months, err := insight.MonthWindows(weeks)
	if err != nil {
		return err
	}
	quarters, err := insight.QuarterWindows(months)
	if err != nil {
		return err
	}
	expected := map[insight.Tier][]string{
		insight.TierWeekly:    weeks,
		insight.TierMonthly:   months,
		insight.TierQuarterly: quarters,
		insight.TierSynthesis: {insight.SynthesisKey},
	}

	for _, tier := range insight.Tiers {
		c.setCurrentTier(string(tier))
		if err := c.runTier(ctx, tier, expected[tier]); err != nil {
			return err
		}
		if missing := c.unaccountedRanges(tier, expected[tier]); len(missing) > 0 {
			c.appendWarning(fmt.Sprintf("%s tier has %d unaccounted ranges: %v", tier, len(missing), missing))
			c.persistState()
			return fmt.Errorf("%s tier has %d unaccounted ranges", tier, len(missing))
		}
	}

	completed := nowUTC()
	c.stateMu.Lock()
	c.state.Phase = database.PhaseComplete
	c.state.CurrentTier = nil
	c.state.CompletedAt = &completed
	c.stateMu.Unlock()
	c.persistState()
	metrics.SetPhase(database.PhaseComplete)
	log.Printf("run %s: complete with %d warnings", c.state.RunID, len(c.state.Warnings))
	return nil
}

// Status reports durable state, artifact counts, and dead-lettered jobs.
func (c *Coordinator) Status() (*Status, error) {
	state, err := c.db.GetPipelineState()
	if err != nil {
		return nil, fmt.Errorf("reading pipeline state: %w", err)
	}
	if state == nil {
		state = &database.PipelineState{Phase: database.PhaseIdle}
	}
	stats, err := c.db.GetStats()
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	dead, err := c.db.GetDeadLetteredJobs()
	if err != nil {
		return nil, fmt.Errorf("reading dead letters: %w", err)
	}
	return &Status{State: state, Stats: stats, DeadLetters: dead}, nil
}

// Reset clears the durable run state. Artifacts, job rows, and the cache are
// preserved; the next run replays them idempotently.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrInvalidTransition
	}
	if err := c.db.ClearPipelineState(); err != nil {
		return fmt.Errorf("clearing pipeline state: %w", err)
	}
	metrics.SetPhase(database.PhaseIdle)
	return nil
}

func (c *Coordinator) loadManifest(ctx context.Context) (*journal.Manifest, error) {
	data, err := c.bucket.Get(ctx, c.cfg.Journals.ManifestKey)
	if err != nil {
		return nil, &journal.ManifestError{Reason: "unreadable", Err: err}
	}
	return journal.ParseManifest(data)
}

func (c *Coordinator) runExtraction(ctx context.Context, manifest *journal.Manifest) error {
	jobs := make([]queue.Job, 0, len(manifest.Entries))
	ranges := make(map[string]string, len(manifest.Entries))
	var processed atomic.Int64

	for _, e := range manifest.Entries {
		ranges[extract.JobID(e.Date)] = e.Date
		inputHash := insight.ExtractionInputHash(prompt.Version, e.ContentHash)
		if err := c.db.UpsertJobStatus(database.JobStatus{
			ID:        extract.JobID(e.Date),
			JobType:   database.JobTypeExtraction,
			RangeID:   e.Date,
			Status:    database.JobPending,
			InputHash: inputHash,
		}); err != nil {
			return fmt.Errorf("enqueueing %s: %w", e.Date, err)
		}

		job := extract.Job{Date: e.Date, ObjectKey: e.R2Key, ContentHash: e.ContentHash}
		jobs = append(jobs, &workerJob{
			id: extract.JobID(e.Date),
			run: func(ctx context.Context) error {
				if err := c.extractor.Process(ctx, job); err != nil {
					return err
				}
				n := int(processed.Add(1))
				metrics.ProcessedEntries.Set(float64(n))
				c.stateMu.Lock()
				c.state.ProcessedEntries = n
				c.stateMu.Unlock()
				c.persistState()
				return nil
			},
		})
	}

	pool := queue.NewPool(c.cfg.Pipeline.ExtractWorkers, c.cfg.Pipeline.MaxJobAttempts, c.cfg.JobTimeout())
	outcomes := pool.Run(ctx, jobs)
	return c.recordOutcomes(ctx, outcomes, database.JobTypeExtraction, ranges)
}

func (c *Coordinator) runTier(ctx context.Context, tier insight.Tier, rangeIDs []string) error {
	jobs := make([]queue.Job, 0, len(rangeIDs))
	ranges := make(map[string]string, len(rangeIDs))
	for _, rangeID := range rangeIDs {
		ranges[aggregate.JobID(tier, rangeID)] = rangeID
		job := aggregate.Job{Tier: tier, RangeID: rangeID}
		jobs = append(jobs, &workerJob{
			id:  aggregate.JobID(tier, rangeID),
			run: func(ctx context.Context) error { return c.aggregator.Process(ctx, job) },
		})
	}

	pool := queue.NewPool(c.cfg.Pipeline.AggregateWorkers, c.cfg.Pipeline.MaxJobAttempts, c.cfg.JobTimeout())
	outcomes := pool.Run(ctx, jobs)
	return c.recordOutcomes(ctx, outcomes, database.JobTypeAggregation, ranges)
}

// recordOutcomes dead-letters failed jobs and turns them into warnings. A
// daily budget exhaustion or a canceled run context aborts the run instead;
// jobs cut short by the cancellation stay non-terminal so the next run
// resumes them. Only a per-attempt timeout under a live run context counts
// as an ordinary failure.
func (c *Coordinator) recordOutcomes(ctx context.Context, outcomes []queue.Outcome, jobType string, ranges map[string]string) error {
	budgetHit := false
	canceled := false
	for _, o := range outcomes {
		if o.Err == nil {
			metrics.JobsFinished.WithLabelValues(jobType, database.JobSucceeded).Inc()
			continue
		}
		if errors.Is(o.Err, llm.ErrDailyBudget) {
			budgetHit = true
			continue
		}
		if ctx.Err() != nil && (errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded)) {
			canceled = true
			continue
		}
		c.markDeadLettered(o, jobType, ranges[o.JobID])
		c.appendWarning(fmt.Sprintf("%s dead-lettered after %d attempts: %v", o.JobID, o.Attempts, o.Err))
	}
	c.persistState()

	if budgetHit {
		c.appendWarning("daily request cap reached, run aborted")
		c.persistState()
		return fmt.Errorf("aborting run: %w", llm.ErrDailyBudget)
	}
	if canceled {
		c.appendWarning("run canceled, unfinished jobs left for the next run")
		c.persistState()
		return fmt.Errorf("aborting run: %w", ctx.Err())
	}
	return nil
}

func (c *Coordinator) markDeadLettered(o queue.Outcome, jobType, rangeID string) {
	// Carry forward the input hash the worker recorded, so the row stays
	// terminal until the inputs actually change.
	inputHash := ""
	if row, err := c.db.GetJobStatus(o.JobID); err == nil && row != nil {
		inputHash = row.InputHash
	}
	err := c.db.UpsertJobStatus(database.JobStatus{
		ID:        o.JobID,
		JobType:   jobType,
		RangeID:   rangeID,
		Status:    database.JobDeadLettered,
		InputHash: inputHash,
		LastError: o.Err.Error(),
		Attempts:  o.Attempts,
	})
	if err != nil {
		log.Printf("dead-lettering %s: %v", o.JobID, err)
	}
	metrics.JobsFinished.WithLabelValues(jobType, database.JobDeadLettered).Inc()
}

// unaccountedEntries returns manifest dates with neither a persisted
// extraction nor a terminal job row. Completion is a set comparison, never an
// event count.
func (c *Coordinator) unaccountedEntries(manifest *journal.Manifest) []string {
	var missing []string
	for _, e := range manifest.Entries {
		if row, err := c.db.GetExtraction(e.Date); err == nil && row != nil {
			continue
		}
		if job, err := c.db.GetJobStatus(extract.JobID(e.Date)); err == nil && job != nil && database.IsTerminal(job.Status) {
			continue
		}
		missing = append(missing, e.Date)
	}
	return missing
}

// unaccountedRanges returns expected range ids with neither a persisted
// artifact nor a terminal job row. Zero-input skips count as accounted via
// their succeeded job rows.
func (c *Coordinator) unaccountedRanges(tier insight.Tier, rangeIDs []string) []string {
	var missing []string
	for _, rangeID := range rangeIDs {
		if row, err := c.db.GetTierArtifact(tier, rangeID); err == nil && row != nil {
			continue
		}
		if job, err := c.db.GetJobStatus(aggregate.JobID(tier, rangeID)); err == nil && job != nil && database.IsTerminal(job.Status) {
			continue
		}
		missing = append(missing, rangeID)
	}
	return missing
}

func (c *Coordinator) setPhase(phase string) {
	c.stateMu.Lock()
	c.state.Phase = phase
	c.stateMu.Unlock()
	c.persistState()
	metrics.SetPhase(phase)
}

func (c *Coordinator) setCurrentTier(tier string) {
	c.stateMu.Lock()
	c.state.CurrentTier = &tier
	c.stateMu.Unlock()
	c.persistState()
	log.Printf("run %s: aggregating %s tier", c.state.RunID, tier)
}

func (c *Coordinator) appendWarning(w string) {
	log.Printf("warning: %s", w)
	c.stateMu.Lock()
	c.state.Warnings = append(c.state.Warnings, w)
	c.stateMu.Unlock()
}

func (c *Coordinator) persistState() {
	c.stateMu.Lock()
	snapshot := c.state
	c.stateMu.Unlock()
	if err := c.db.PutPipelineState(snapshot); err != nil {
		log.Printf("persisting pipeline state: %v", err)
	}
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// workerJob adapts a closure to the queue's job interface.
type workerJob struct {
	id  string
	run func(ctx context.Context) error
}

func (j *workerJob) ID() string                    { return j.id }
func (j *workerJob) Run(ctx context.Context) error { return j.run(ctx) }
