package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound marks a key with no object behind it. Not retried.
var ErrNotFound = errors.New("object not found")

// Bucket is a thin by-key view of one object-store bucket.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// retryBucket wraps a Bucket with a short bounded retry for transient
// failures. Reads are the hot path during extraction, so the backoff stays
// small.
type retryBucket struct {
	inner    Bucket
	attempts int
	backoff  time.Duration
}

// WithRetry wraps b so that Get and Put survive transient failures.
func WithRetry(b Bucket, attempts int, backoff time.Duration) Bucket {
	if attempts < 1 {
		attempts = 1
	}
	return &retryBucket{inner: b, attempts: attempts, backoff: backoff}
}

func (r *retryBucket) Get(ctx context.Context, key string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, r.backoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
		data, err := r.inner.Get(ctx, key)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("get %s after %d attempts: %w", key, r.attempts, lastErr)
}

func (r *retryBucket) Put(ctx context.Context, key string, data []byte) error {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, r.backoff*time.Duration(attempt)); err != nil {
				return err
			}
		}
		err := r.inner.Put(ctx, key, data)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("put %s after %d attempts: %w", key, r.attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
