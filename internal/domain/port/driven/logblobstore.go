package driven

import (
	"context"
	"errors"
	"time"
)

// ErrLogNotFound indicates the locator does not resolve to a stored log,
// typically because the retention sweeper already reclaimed it.
var ErrLogNotFound = errors.New("log not found")

// LogBlobStore defines the driven port for raw log blob storage. Blobs are
// compressed at rest on a content-addressed path namespaced by repository
// and run; the locator returned by Store is opaque to callers.
type LogBlobStore interface {
	// Store compresses and persists raw log bytes, returning the locator.
	Store(ctx context.Context, owner, name string, runID, jobID int64, raw []byte) (string, error)
	// Read decompresses up to maxBytes of the blob and decodes it as text,
	// lossily replacing invalid byte sequences. Returns ErrLogNotFound
	// when the locator no longer resolves.
	Read(ctx context.Context, locator string, maxBytes int64) (string, error)
	// Sweep deletes blobs last modified before olderThan and returns how
	// many were removed. A missing storage root is a no-op.
	Sweep(olderThan time.Time) (int, error)
}
