package objectstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrying wraps an ObjectStore so that transient infrastructure errors are
// retried with exponential backoff before being surfaced to the caller.
// Errors that unwrap to ErrNotFound are never retried — they are a normal,
// expected outcome for Stat/Read/Delete.
type Retrying struct {
	inner      ObjectStore
	newBackOff func() backoff.BackOff
}

// NewRetrying wraps store with a default exponential backoff policy (500ms
// initial interval, up to 30s total).
func NewRetrying(store ObjectStore) *Retrying {
	return &Retrying{
		inner: store,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second

			return b
		},
	}
}

func (r *Retrying) retry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(r.newBackOff(), ctx))
}

func (r *Retrying) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo

	err := r.retry(ctx, func() error {
		var err error
		infos, err = r.inner.List(ctx, prefix)

		return err
	})

	return infos, err
}

func (r *Retrying) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte

	err := r.retry(ctx, func() error {
		var err error
		data, err = r.inner.Read(ctx, path)

		return err
	})

	return data, err
}

func (r *Retrying) Write(ctx context.Context, path string, data []byte) error {
	return r.retry(ctx, func() error {
		return r.inner.Write(ctx, path, data)
	})
}

func (r *Retrying) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	var info ObjectInfo

	err := r.retry(ctx, func() error {
		var err error
		info, err = r.inner.Stat(ctx, path)

		return err
	})

	return info, err
}

func (r *Retrying) Move(ctx context.Context, src, dst string) error {
	return r.retry(ctx, func() error {
		return r.inner.Move(ctx, src, dst)
	})
}

func (r *Retrying) Delete(ctx context.Context, path string) error {
	return r.retry(ctx, func() error {
		return r.inner.Delete(ctx, path)
	})
}
