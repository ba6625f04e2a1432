// Package objectstore abstracts the cloud object-store surface the platform
// needs: list, read, write, move, delete under a single logical bucket, with
// retryable transient errors folded in at the edge.
package objectstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an object does not exist at the requested path.
var ErrNotFound = errors.New("objectstore: object not found")

// ObjectInfo describes a stored object's metadata, as returned by Stat and List.
type ObjectInfo struct {
	Path      string
	Size      int64
	UpdatedAt time.Time
}

// ObjectStore is the narrow contract every backend (local disk, GCS) and the
// core subsystems (validation staging writes, orchestrator archival,
// streaming-bridge health markers, submission dead-letter inspection)
// depend on.
type ObjectStore interface {
	// List returns every object whose path has the given prefix, ordered by path.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Read returns the full contents of the object at path.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write uploads data to path, overwriting any existing object.
	Write(ctx context.Context, path string, data []byte) error
	// Stat returns metadata for the object at path without reading its body.
	// Returns ErrNotFound if the object does not exist.
	Stat(ctx context.Context, path string) (ObjectInfo, error)
	// Move copies src to dst and then deletes src. Implementations must ensure
	// the copy is durable before the delete — a landed source object must
	// never disappear until its staged copy is safely written.
	Move(ctx context.Context, src, dst string) error
	// Delete removes the object at path. A "not found" response from the
	// backend is treated as success (idempotent delete).
	Delete(ctx context.Context, path string) error
}
