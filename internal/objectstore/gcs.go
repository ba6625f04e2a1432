package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS is an ObjectStore backed by a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCS constructs a GCS-backed ObjectStore for the given bucket name,
// using application-default credentials.
func NewGCS(ctx context.Context, bucketName string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: new gcs client: %w", err)
	}

	return &GCS{client: client, bucket: client.Bucket(bucketName)}, nil
}

// Close releases the underlying GCS client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo

	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})

	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("objectstore: list %q: %w", prefix, err)
		}

		infos = append(infos, ObjectInfo{Path: attrs.Name, Size: attrs.Size, UpdatedAt: attrs.Updated})
	}

	return infos, nil
}

func (g *GCS) Read(ctx context.Context, path string) ([]byte, error) {
	r, err := g.bucket.Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("objectstore: read %q: %w", path, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("objectstore: read %q: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %q: %w", path, err)
	}

	return data, nil
}

func (g *GCS) Write(ctx context.Context, path string, data []byte) error {
	w := g.bucket.Object(path).NewWriter(ctx)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()

		return fmt.Errorf("objectstore: write %q: %w", path, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("objectstore: write %q: %w", path, err)
	}

	return nil
}

func (g *GCS) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	attrs, err := g.bucket.Object(path).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ObjectInfo{}, fmt.Errorf("objectstore: stat %q: %w", path, ErrNotFound)
	}

	if err != nil {
		return ObjectInfo{}, fmt.Errorf("objectstore: stat %q: %w", path, err)
	}

	return ObjectInfo{Path: attrs.Name, Size: attrs.Size, UpdatedAt: attrs.Updated}, nil
}

func (g *GCS) Move(ctx context.Context, src, dst string) error {
	srcObj := g.bucket.Object(src)
	dstObj := g.bucket.Object(dst)

	if _, err := dstObj.CopierFrom(srcObj).Run(ctx); err != nil {
		return fmt.Errorf("objectstore: move %q -> %q: %w", src, dst, err)
	}

	return g.Delete(ctx, src)
}

func (g *GCS) Delete(ctx context.Context, path string) error {
	err := g.bucket.Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("objectstore: delete %q: %w", path, err)
	}

	return nil
}
