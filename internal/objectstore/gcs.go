package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBucket serves objects from a Google Cloud Storage bucket.
type GCSBucket struct {
	client *storage.Client
	bucket string
}

// NewGCSBucket opens a GCS-backed bucket. credentialsFile may be empty to
// use application default credentials.
func NewGCSBucket(ctx context.Context, bucket, credentialsFile string) (*GCSBucket, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &GCSBucket{client: client, bucket: bucket}, nil
}

func (b *GCSBucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("opening gs://%s/%s: %w", b.bucket, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading gs://%s/%s: %w", b.bucket, key, err)
	}
	return data, nil
}

func (b *GCSBucket) Put(ctx context.Context, key string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing gs://%s/%s: %w", b.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing gs://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

// Close releases the underlying client.
func (b *GCSBucket) Close() error {
	return b.client.Close()
}
