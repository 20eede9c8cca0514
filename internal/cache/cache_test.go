package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/LifeLens/internal/insight"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenInMemory(0)
	if err != nil {
		t.Fatalf("opening test cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := openTestCache(t)

	key := ExtractionKey("2025-03-03", "abcdef0123456789ffff")
	if err := c.Put(key, []byte(`{"mood_score": 7}`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"mood_score": 7}` {
		t.Errorf("unexpected value: %q", got)
	}
}

func TestGetMissReturnsNil(t *testing.T) {
	c := openTestCache(t)

	got, err := c.Get("extract:2030-01-01:0000000000000000")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %q", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := openTestCache(t)

	if err := c.PutWithTTL("k", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	got, err := c.Get("k")
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got != nil {
		t.Errorf("expected expired entry to miss, got %q", got)
	}
}

func TestExtractionKeyShape(t *testing.T) {
	hash := insight.HashBytes([]byte("entry body"))
	key := ExtractionKey("2025-03-03", hash)

	if !strings.HasPrefix(key, "extract:2025-03-03:") {
		t.Errorf("unexpected key prefix: %s", key)
	}
	parts := strings.Split(key, ":")
	if len(parts) != 3 || len(parts[2]) != 16 {
		t.Errorf("expected 16-char hash slot, got %s", key)
	}
}

func TestAggregationKeyShape(t *testing.T) {
	hash := insight.HashBytes([]byte("inputs"))
	key := AggregationKey(insight.TierWeekly, "2025-03-03", hash)

	if !strings.HasPrefix(key, "agg:weekly:2025-03-03:") {
		t.Errorf("unexpected key prefix: %s", key)
	}
	if !strings.HasSuffix(key, insight.ShortHash(hash)) {
		t.Errorf("expected short-hash suffix, got %s", key)
	}
}
