// Package aggregate is the tiered aggregation worker: one job per produced
// artifact, polymorphic over the weekly, monthly, quarterly, and synthesis
// tiers.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/TobiSchelling/LifeLens/internal/cache"
	"github.com/TobiSchelling/LifeLens/internal/database"
	"github.com/TobiSchelling/LifeLens/internal/insight"
	"github.com/TobiSchelling/LifeLens/internal/llm"
	"github.com/TobiSchelling/LifeLens/internal/metrics"
	"github.com/TobiSchelling/LifeLens/internal/prompt"
	"github.com/TobiSchelling/LifeLens/internal/queue"
)

// Job produces one artifact at one tier.
type Job struct {
	Tier    insight.Tier
	RangeID string
}

// JobID returns the durable job-status id for a (tier, range-id).
func JobID(tier insight.Tier, rangeID string) string {
	return fmt.Sprintf("agg:%s:%s", tier, rangeID)
}

// Worker processes aggregation jobs. Stateless across invocations.
type Worker struct {
	db          *database.DB
	cache       *cache.Cache
	gw          *llm.Gateway
	temperature float64
	maxTokens   int
}

// NewWorker wires an aggregation worker.
func NewWorker(db *database.DB, c *cache.Cache, gw *llm.Gateway, temperature float64, maxTokens int) *Worker {
	return &Worker{db: db, cache: c, gw: gw, temperature: temperature, maxTokens: maxTokens}
}

// Process runs one aggregation job: load inputs, hash, cache and persistence
// short-circuits, LLM call, validate, persist.
func (w *Worker) Process(ctx context.Context, job Job) error {
	jobID := JobID(job.Tier, job.RangeID)

	rows, err := w.loadInputs(job)
	if err != nil {
		return fmt.Errorf("loading %s inputs for %s: %w", job.Tier, job.RangeID, err)
	}

	// Zero inputs is an absent range, not a failure: a dead-lettered week
	// leaves a gap the downstream tiers work around.
	if len(rows) == 0 {
		log.Printf("aggregate %s %s: no inputs, skipping", job.Tier, job.RangeID)
		w.setStatus(jobID, job, database.JobSucceeded, "", "")
		return nil
	}

	inputs := make([]insight.HashedInput, len(rows))
	for i, row := range rows {
		inputs[i] = insight.HashedInput{Key: row.Key, BodyHash: insight.HashBytes([]byte(row.BodyJSON))}
	}
	inputHash := insight.AggregationInputHash(prompt.Version, job.Tier, job.RangeID, inputs)
	cacheKey := cache.AggregationKey(job.Tier, job.RangeID, inputHash)

	w.setStatus(jobID, job, database.JobRunning, inputHash, "")

	if cached, err := w.cache.Get(cacheKey); err == nil && cached != nil {
		if body, err := insight.CanonicalBody(job.Tier, cached); err == nil {
			metrics.CacheHits.WithLabelValues("agg").Inc()
			if err := w.db.StoreTierArtifact(job.Tier, job.RangeID, body, inputHash); err != nil {
				return fmt.Errorf("persisting cached %s %s: %w", job.Tier, job.RangeID, err)
			}
			w.setStatus(jobID, job, database.JobSucceeded, inputHash, "")
			return nil
		}
		log.Printf("aggregate %s %s: cached body no longer validates, recomputing", job.Tier, job.RangeID)
	}
	metrics.CacheMisses.WithLabelValues("agg").Inc()

	if row, err := w.db.GetTierArtifact(job.Tier, job.RangeID); err != nil {
		return fmt.Errorf("checking persisted %s %s: %w", job.Tier, job.RangeID, err)
	} else if row != nil && row.InputHash == inputHash {
		if err := w.cache.Put(cacheKey, []byte(row.BodyJSON)); err != nil {
			log.Printf("aggregate %s %s: re-caching persisted body: %v", job.Tier, job.RangeID, err)
		}
		w.setStatus(jobID, job, database.JobSucceeded, inputHash, "")
		return nil
	}

	userPrompt, err := buildPrompt(job.Tier, job.RangeID, rows)
	if err != nil {
		return queue.Permanent(err)
	}
	messages := []llm.Message{
		{Role: "system", Content: prompt.SystemPrompt(job.Tier)},
		{Role: "user", Content: userPrompt},
	}

	body, err := w.callAndValidate(ctx, job.Tier, messages)
	if err != nil {
		return err
	}

	if err := w.cache.Put(cacheKey, body); err != nil {
		log.Printf("aggregate %s %s: caching body: %v", job.Tier, job.RangeID, err)
	}
	if err := w.db.StoreTierArtifact(job.Tier, job.RangeID, body, inputHash); err != nil {
		return fmt.Errorf("persisting %s %s: %w", job.Tier, job.RangeID, err)
	}
	w.setStatus(jobID, job, database.JobSucceeded, inputHash, "")
	return nil
}

// loadInputs reads the canonical input set for a job, already in ascending
// key order from the persistence layer.
func (w *Worker) loadInputs(job Job) ([]database.ArtifactRow, error) {
	switch job.Tier {
	case insight.TierWeekly:
		end, err := insight.WeekEnd(job.RangeID)
		if err != nil {
			return nil, err
		}
		return w.db.GetExtractionsInRange(job.RangeID, end)
	case insight.TierMonthly:
		return w.db.GetWeeklySummariesForMonth(job.RangeID)
	case insight.TierQuarterly:
		return w.db.GetMonthlySummariesForQuarter(job.RangeID)
	case insight.TierSynthesis:
		return w.db.GetAllQuarterlyNotepads()
	default:
		return nil, fmt.Errorf("unknown tier %q", job.Tier)
	}
}

// buildPrompt decodes the persisted input bodies and renders the tier's user
// prompt. A persisted body that no longer validates cannot be fixed by
// retrying.
func buildPrompt(tier insight.Tier, rangeID string, rows []database.ArtifactRow) (string, error) {
	switch tier {
	case insight.TierWeekly:
		days := make([]prompt.DatedExtraction, len(rows))
		for i, row := range rows {
			e, err := insight.DecodeExtraction([]byte(row.BodyJSON))
			if err != nil {
				return "", fmt.Errorf("input %s: %w", row.Key, err)
			}
			days[i] = prompt.DatedExtraction{Date: row.Key, Extraction: e}
		}
		return prompt.WeeklyPrompt(rangeID, days), nil

	case insight.TierMonthly:
		weeks := make([]prompt.DatedWeekly, len(rows))
		for i, row := range rows {
			s, err := insight.DecodeWeeklySummary([]byte(row.BodyJSON))
			if err != nil {
				return "", fmt.Errorf("input %s: %w", row.Key, err)
			}
			weeks[i] = prompt.DatedWeekly{WeekStart: row.Key, Summary: s}
		}
		return prompt.MonthlyPrompt(rangeID, weeks), nil

	case insight.TierQuarterly:
		months := make([]prompt.DatedMonthly, len(rows))
		for i, row := range rows {
			s, err := insight.DecodeMonthlySummary([]byte(row.BodyJSON))
			if err != nil {
				return "", fmt.Errorf("input %s: %w", row.Key, err)
			}
			months[i] = prompt.DatedMonthly{Month: row.Key, Summary: s}
		}
		return prompt.QuarterlyPrompt(rangeID, months), nil

	case insight.TierSynthesis:
		quarters := make([]prompt.DatedQuarterly, len(rows))
		for i, row := range rows {
			n, err := insight.DecodeQuarterlyNotepad([]byte(row.BodyJSON))
			if err != nil {
				return "", fmt.Errorf("input %s: %w", row.Key, err)
			}
			quarters[i] = prompt.DatedQuarterly{Quarter: row.Key, Notepad: n}
		}
		return prompt.SynthesisPrompt(quarters), nil

	default:
		return "", fmt.Errorf("unknown tier %q", tier)
	}
}

// callAndValidate calls the gateway and validates the response against the
// tier's artifact shape, returning the canonical re-encoded body. One schema
// retry with the identical prompt, then permanent.
func (w *Worker) callAndValidate(ctx context.Context, tier insight.Tier, messages []llm.Message) ([]byte, error) {
	opts := llm.Options{Temperature: w.temperature, MaxTokens: w.maxTokens, JSONMode: true}

	var schemaErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := w.gw.Call(ctx, messages, opts)
		if err != nil {
			return nil, classifyCallError(err)
		}

		raw, err := llm.ExtractJSON(text)
		if err != nil {
			schemaErr = &insight.SchemaError{Artifact: string(tier), Err: err}
			continue
		}
		body, err := insight.CanonicalBody(tier, raw)
		if err != nil {
			schemaErr = err
			continue
		}
		return body, nil
	}

	return nil, queue.Permanent(schemaErr)
}

func classifyCallError(err error) error {
	if errors.Is(err, llm.ErrDailyBudget) {
		return queue.Permanent(err)
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) && apiErr.IsPermanent() {
		return queue.Permanent(err)
	}
	return err
}

func (w *Worker) setStatus(jobID string, job Job, status, inputHash, lastError string) {
	resultKey := ""
	if status == database.JobSucceeded {
		resultKey = job.RangeID
	}
	err := w.db.UpsertJobStatus(database.JobStatus{
		ID:        jobID,
		JobType:   database.JobTypeAggregation,
		RangeID:   job.RangeID,
		Status:    status,
		InputHash: inputHash,
		ResultKey: resultKey,
		LastError: lastError,
	})
	if err != nil {
		log.Printf("aggregate %s %s: updating job status: %v", job.Tier, job.RangeID, err)
	}
}
