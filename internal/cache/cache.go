package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/TobiSchelling/LifeLens/internal/insight"
)

// DefaultTTL is long relative to a pipeline run, so replays within a week
// hit the cache.
const DefaultTTL = 168 * time.Hour

// Cache holds serialized artifact bodies keyed by content hash, so replays
// with identical inputs skip the LLM entirely.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens the on-disk cache at dir. A ttl of 0 means DefaultTTL.
func Open(dir string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(false).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache at %s: %w", dir, err)
	}
	return newCache(db, ttl), nil
}

// OpenInMemory opens a cache with no disk persistence, for tests.
func OpenInMemory(ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory cache: %w", err)
	}
	return newCache(db, ttl), nil
}

func newCache(db *badger.DB, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{db: db, ttl: ttl}
}

// Get returns the cached body for key, or nil if absent or expired.
func (c *Cache) Get(key string) ([]byte, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key with the cache's default TTL.
func (c *Cache) Put(key string, value []byte) error {
	return c.PutWithTTL(key, value, c.ttl)
}

// PutWithTTL stores value under key with an explicit TTL.
func (c *Cache) PutWithTTL(key string, value []byte, ttl time.Duration) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// ExtractionKey builds the cache key for one entry's extraction. The hash
// slot carries the job input hash, which folds the manifest content hash
// with the prompt version.
func ExtractionKey(date, inputHash string) string {
	return fmt.Sprintf("extract:%s:%s", date, insight.ShortHash(inputHash))
}

// AggregationKey builds the cache key for one aggregation artifact.
func AggregationKey(tier insight.Tier, rangeID, inputHash string) string {
	return fmt.Sprintf("agg:%s:%s:%s", tier, rangeID, insight.ShortHash(inputHash))
}
