package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/JakeFAU/cefr-dataset/internal/storage"
	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

// BlobBackend stores the whole cache as a single gob snapshot object. Each
// Store rewrites the snapshot in full.
type BlobBackend struct {
	blobs storage.BlobStore
	path  string
}

// NewBlobBackend creates a snapshot backend writing to path within blobs.
func NewBlobBackend(blobs storage.BlobStore, path string) (*BlobBackend, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	return &BlobBackend{blobs: blobs, path: path}, nil
}

// Load decodes the snapshot. A missing snapshot is an empty cache; an
// incompatible one is reported so the caller can discard it.
func (b *BlobBackend) Load(ctx context.Context) (map[string]vocab.Record, error) {
	data, err := b.blobs.GetObject(ctx, b.path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return map[string]vocab.Record{}, nil
		}
		return nil, fmt.Errorf("read cache snapshot: %w", err)
	}
	entries := make(map[string]vocab.Record)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode cache snapshot: %w", err)
	}
	return entries, nil
}

// Store encodes and overwrites the snapshot.
func (b *BlobBackend) Store(ctx context.Context, entries map[string]vocab.Record, _ []string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("encode cache snapshot: %w", err)
	}
	if _, err := b.blobs.PutObject(ctx, b.path, "application/octet-stream", &buf); err != nil {
		return fmt.Errorf("write cache snapshot: %w", err)
	}
	return nil
}
