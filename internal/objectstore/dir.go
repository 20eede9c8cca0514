package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirBucket serves objects from a local directory, with keys as relative
// paths. Used for local runs and tests.
type DirBucket struct {
	root string
}

// NewDirBucket creates a bucket rooted at dir, creating it if needed.
func NewDirBucket(dir string) (*DirBucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating bucket dir: %w", err)
	}
	return &DirBucket{root: dir}, nil
}

func (b *DirBucket) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (b *DirBucket) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (b *DirBucket) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}
