// Package storage defines the blob store abstraction used to persist the
// result cache snapshot and the progress cursor. Backends live in the
// local, memory, and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when the object has never been written.
var ErrNotFound = errors.New("object not found")

// BlobStore reads and durably overwrites whole objects.
type BlobStore interface {
	// PutObject replaces the object at path and returns its URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the object's bytes or ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
