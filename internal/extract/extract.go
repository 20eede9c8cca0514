// Package extract is the per-entry extraction worker: one job in, one
// persisted structured record out.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/TobiSchelling/LifeLens/internal/cache"
	"github.com/TobiSchelling/LifeLens/internal/database"
	"github.com/TobiSchelling/LifeLens/internal/insight"
	"github.com/TobiSchelling/LifeLens/internal/journal"
	"github.com/TobiSchelling/LifeLens/internal/llm"
	"github.com/TobiSchelling/LifeLens/internal/metrics"
	"github.com/TobiSchelling/LifeLens/internal/objectstore"
	"github.com/TobiSchelling/LifeLens/internal/prompt"
	"github.com/TobiSchelling/LifeLens/internal/queue"
)

// DriftError reports entry bytes whose hash no longer matches the manifest.
// The manifest and the object store have diverged; the job cannot succeed.
type DriftError struct {
	Date string
	Want string
	Got  string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("content drift for %s: manifest hash %s, stored bytes hash %s",
		e.Date, insight.ShortHash(e.Want), insight.ShortHash(e.Got))
}

// Job is one extraction unit from the manifest.
type Job struct {
	Date        string
	ObjectKey   string
	ContentHash string
}

// JobID returns the durable job-status id for an entry date.
func JobID(date string) string { return "extract:" + date }

// Worker processes extraction jobs. Stateless across invocations; all
// coordination state lives in the database.
type Worker struct {
	db          *database.DB
	cache       *cache.Cache
	bucket      objectstore.Bucket
	gw          *llm.Gateway
	temperature float64
	maxTokens   int
}

// NewWorker wires an extraction worker.
func NewWorker(db *database.DB, c *cache.Cache, bucket objectstore.Bucket, gw *llm.Gateway, temperature float64, maxTokens int) *Worker {
	return &Worker{db: db, cache: c, bucket: bucket, gw: gw, temperature: temperature, maxTokens: maxTokens}
}

// Process runs one extraction job end to end: cache, persistence
// short-circuit, fetch, drift check, LLM call, validate, persist.
func (w *Worker) Process(ctx context.Context, job Job) error {
	inputHash := insight.ExtractionInputHash(prompt.Version, job.ContentHash)
	jobID := JobID(job.Date)
	cacheKey := cache.ExtractionKey(job.Date, inputHash)

	w.setStatus(jobID, job, database.JobRunning, inputHash, "")

	// Cache hit: revalidate (a cached body could predate a schema change
	// that forgot a version bump) and persist without an LLM call.
	if cached, err := w.cache.Get(cacheKey); err == nil && cached != nil {
		if _, err := insight.DecodeExtraction(cached); err == nil {
			metrics.CacheHits.WithLabelValues("extract").Inc()
			if err := w.db.StoreExtraction(job.Date, cached, inputHash); err != nil {
				return fmt.Errorf("persisting cached extraction %s: %w", job.Date, err)
			}
			w.setStatus(jobID, job, database.JobSucceeded, inputHash, "")
			return nil
		}
		log.Printf("extract %s: cached body no longer validates, refetching", job.Date)
	}
	metrics.CacheMisses.WithLabelValues("extract").Inc()

	// The cache is advisory: a miss never implies the artifact is absent.
	if row, err := w.db.GetExtraction(job.Date); err != nil {
		return fmt.Errorf("checking persisted extraction %s: %w", job.Date, err)
	} else if row != nil && row.InputHash == inputHash {
		if err := w.cache.Put(cacheKey, []byte(row.BodyJSON)); err != nil {
			log.Printf("extract %s: re-caching persisted body: %v", job.Date, err)
		}
		w.setStatus(jobID, job, database.JobSucceeded, inputHash, "")
		return nil
	}

	data, err := w.bucket.Get(ctx, job.ObjectKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("entry %s: %w", job.Date, err))
		}
		return fmt.Errorf("fetching entry %s: %w", job.Date, err)
	}

	if got := insight.HashBytes(data); got != job.ContentHash {
		return queue.Permanent(&DriftError{Date: job.Date, Want: job.ContentHash, Got: got})
	}

	content := journal.PlainText(data)
	messages := []llm.Message{
		{Role: "system", Content: prompt.ExtractionSystemPrompt()},
		{Role: "user", Content: prompt.ExtractionPrompt(job.Date, content)},
	}

	body, err := w.callAndValidate(ctx, messages)
	if err != nil {
		return err
	}

	if err := w.cache.Put(cacheKey, body); err != nil {
		log.Printf("extract %s: caching body: %v", job.Date, err)
	}
	if err := w.db.StoreExtraction(job.Date, body, inputHash); err != nil {
		return fmt.Errorf("persisting extraction %s: %w", job.Date, err)
	}
	w.setStatus(jobID, job, database.JobSucceeded, inputHash, "")
	return nil
}

// callAndValidate calls the gateway and validates the response against the
// extraction shape, returning the canonical re-encoded body. A schema
// violation is retried once with the identical prompt; a second violation is
// permanent.
func (w *Worker) callAndValidate(ctx context.Context, messages []llm.Message) ([]byte, error) {
	opts := llm.Options{Temperature: w.temperature, MaxTokens: w.maxTokens, JSONMode: true}

	var schemaErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := w.gw.Call(ctx, messages, opts)
		if err != nil {
			return nil, classifyCallError(err)
		}

		body, err := llm.ExtractJSON(text)
		if err != nil {
			schemaErr = &insight.SchemaError{Artifact: "extraction", Err: err}
			continue
		}
		extraction, err := insight.DecodeExtraction(body)
		if err != nil {
			schemaErr = err
			continue
		}

		canonical, err := json.Marshal(extraction)
		if err != nil {
			return nil, fmt.Errorf("re-encoding extraction: %w", err)
		}
		return canonical, nil
	}

	return nil, queue.Permanent(schemaErr)
}

// classifyCallError maps gateway failures onto the queue's retry taxonomy.
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
		resultKey = job.Date
	}
	err := w.db.UpsertJobStatus(database.JobStatus{
		ID:        jobID,
		JobType:   database.JobTypeExtraction,
		RangeID:   job.Date,
		Status:    status,
		InputHash: inputHash,
		ResultKey: resultKey,
		LastError: lastError,
	})
	if err != nil {
		log.Printf("extract %s: updating job status: %v", job.Date, err)
	}
}
