package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/LifeLens/internal/cache"
	"github.com/TobiSchelling/LifeLens/internal/database"
	"github.com/TobiSchelling/LifeLens/internal/insight"
	"github.com/TobiSchelling/LifeLens/internal/llm"
	"github.com/TobiSchelling/LifeLens/internal/objectstore"
	"github.com/TobiSchelling/LifeLens/internal/prompt"
	"github.com/TobiSchelling/LifeLens/internal/queue"
)

const validExtraction = `{
	"mood_score": 7, "energy_level": 6,
	"sleep_mentioned": true, "sleep_quality": 7,
	"medication_mentions": [], "hormone_therapy_note": null,
	"people": [{"name": "Sam", "relationship": "friend", "sentiment": 0.8, "interaction": "in-person"}],
	"activities": ["walk"], "events": [],
	"dominant_themes": ["rest"], "identity_markers": [],
	"key_quotes": ["a good day"],
	"summary": "A quiet, restorative day with a long walk."
}`

// stubProvider feeds canned completions to the gateway without HTTP.
type stubProvider struct {
	responses []string
	calls     atomic.Int32
}

func (s *stubProvider) Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
	n := int(s.calls.Add(1))
	if n > len(s.responses) {
		return "", fmt.Errorf("stub exhausted after %d responses", len(s.responses))
	}
	return s.responses[n-1], nil
}

func (s *stubProvider) IsConfigured() bool { return true }

type harness struct {
	worker *Worker
	db     *database.DB
	cache  *cache.Cache
	bucket *objectstore.DirBucket
	stub   *stubProvider
}

func newHarness(t *testing.T, responses ...string) *harness {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c, err := cache.OpenInMemory(0)
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	bucket, err := objectstore.NewDirBucket(t.TempDir())
	if err != nil {
		t.Fatalf("opening bucket: %v", err)
	}

	stub := &stubProvider{responses: responses}
	gw := llm.NewGateway(stub, 6000, 0, 1)
	gw.SetBackoff(time.Millisecond, 10*time.Millisecond)

	return &harness{
		worker: NewWorker(db, c, bucket, gw, 0.3, 4096),
		db:     db,
		cache:  c,
		bucket: bucket,
		stub:   stub,
	}
}

func (h *harness) putEntry(t *testing.T, date, content string) Job {
	t.Helper()
	key := "journals/" + date + ".md"
	data := []byte(content)
	if err := h.bucket.Put(context.Background(), key, data); err != nil {
		t.Fatalf("writing entry: %v", err)
	}
	return Job{Date: date, ObjectKey: key, ContentHash: insight.HashBytes(data)}
}

func TestProcessSuccess(t *testing.T) {
	h := newHarness(t, validExtraction)
	job := h.putEntry(t, "2025-03-03", "# Monday\n\nWent for a long walk with Sam.")

	if err := h.worker.Process(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row, err := h.db.GetExtraction("2025-03-03")
	if err != nil || row == nil {
		t.Fatalf("expected persisted extraction, got %v, %v", row, err)
	}
	if _, err := insight.DecodeExtraction([]byte(row.BodyJSON)); err != nil {
		t.Errorf("persisted body must validate: %v", err)
	}

	status, _ := h.db.GetJobStatus(JobID("2025-03-03"))
	if status == nil || status.Status != database.JobSucceeded {
		t.Errorf("expected succeeded job status, got %+v", status)
	}
	if h.stub.calls.Load() != 1 {
		t.Errorf("expected 1 LLM call, got %d", h.stub.calls.Load())
	}
}

func TestProcessIdempotentReplay(t *testing.T) {
	h := newHarness(t, validExtraction)
	job := h.putEntry(t, "2025-03-03", "entry body")

	if err := h.worker.Process(context.Background(), job); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// The stub has no second response; a second LLM call would fail.
	if err := h.worker.Process(context.Background(), job); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if h.stub.calls.Load() != 1 {
		t.Errorf("replay made %d LLM calls, expected 1 total", h.stub.calls.Load())
	}
}

func TestProcessPersistenceShortCircuit(t *testing.T) {
	h := newHarness(t) // no responses: any LLM call fails
	job := h.putEntry(t, "2025-03-03", "entry body")

	inputHash := insight.ExtractionInputHash(prompt.Version, job.ContentHash)
	// Simulate a cold cache over a warm database.
	if err := h.db.StoreExtraction("2025-03-03", []byte(validExtraction), inputHash); err != nil {
		t.Fatalf("seeding extraction: %v", err)
	}

	if err := h.worker.Process(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.stub.calls.Load() != 0 {
		t.Errorf("expected 0 LLM calls, got %d", h.stub.calls.Load())
	}

	cached, _ := h.cache.Get(cache.ExtractionKey("2025-03-03", inputHash))
	if cached == nil {
		t.Error("expected the persisted body to be re-cached")
	}
}

func TestProcessContentDrift(t *testing.T) {
	h := newHarness(t, validExtraction)
	job := h.putEntry(t, "2025-03-04", "original body")
	// Mutate the stored object after the manifest was produced.
	h.bucket.Put(context.Background(), job.ObjectKey, []byte("tampered body"))

	err := h.worker.Process(context.Background(), job)
	if !queue.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	var drift *DriftError
	if !errors.As(err, &drift) || drift.Date != "2025-03-04" {
		t.Fatalf("expected DriftError for 2025-03-04, got %v", err)
	}
	if h.stub.calls.Load() != 0 {
		t.Errorf("drift must fail before any LLM call, got %d calls", h.stub.calls.Load())
	}
}

func TestProcessMissingObject(t *testing.T) {
	h := newHarness(t, validExtraction)
	job := Job{Date: "2025-03-05", ObjectKey: "journals/2025-03-05.md", ContentHash: "abc"}

	err := h.worker.Process(context.Background(), job)
	if !queue.IsPermanent(err) {
		t.Fatalf("expected permanent error for missing object, got %v", err)
	}
}

func TestProcessSchemaViolationRetriesOnce(t *testing.T) {
	tooManyThemes := `{"mood_score": 7, "energy_level": 6, "dominant_themes":
		["a","b","c","d","e","f"], "summary": "x"}`
	h := newHarness(t, tooManyThemes, tooManyThemes)
	job := h.putEntry(t, "2025-03-03", "entry body")

	err := h.worker.Process(context.Background(), job)
	if !queue.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	var schemaErr *insight.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if h.stub.calls.Load() != 2 {
		t.Errorf("expected exactly 2 LLM calls (one retry), got %d", h.stub.calls.Load())
	}
}

func TestProcessSchemaViolationThenValid(t *testing.T) {
	h := newHarness(t, "not json at all", validExtraction)
	job := h.putEntry(t, "2025-03-03", "entry body")

	if err := h.worker.Process(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.stub.calls.Load() != 2 {
		t.Errorf("expected 2 LLM calls, got %d", h.stub.calls.Load())
	}
}
