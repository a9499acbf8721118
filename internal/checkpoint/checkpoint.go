// Package checkpoint persists the progress cursor: the index into the item
// sequence up to which every batch has been fully written and flushed.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/cefr-dataset/internal/storage"
)

// Store loads and durably overwrites the progress cursor.
type Store interface {
	// Load returns the saved cursor, or 0 when nothing usable was saved.
	Load(ctx context.Context) (int, error)
	// Save durably overwrites the cursor.
	Save(ctx context.Context, cursor int) error
}

type state struct {
	LastIndex int `json:"last_index"`
}

// BlobStore keeps the cursor as a small JSON object in a storage.BlobStore.
type BlobStore struct {
	blobs  storage.BlobStore
	path   string
	logger *zap.Logger
}

// NewBlobStore creates a cursor store writing to path within blobs.
func NewBlobStore(blobs storage.BlobStore, path string, logger *zap.Logger) (*BlobStore, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if path == "" {
		return nil, fmt.Errorf("progress path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{blobs: blobs, path: path, logger: logger}, nil
}

// Load reads the cursor. A missing or undecodable object yields 0; only a
// failure to reach the underlying store is returned as an error, because
// silently restarting from 0 would truncate the output.
func (s *BlobStore) Load(ctx context.Context) (int, error) {
	data, err := s.blobs.GetObject(ctx, s.path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read progress: %w", err)
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("progress file unreadable; starting from 0", zap.String("path", s.path), zap.Error(err))
		return 0, nil
	}
	if st.LastIndex < 0 {
		s.logger.Warn("progress cursor negative; starting from 0", zap.Int("last_index", st.LastIndex))
		return 0, nil
	}
	return st.LastIndex, nil
}

// Save overwrites the cursor.
func (s *BlobStore) Save(ctx context.Context, cursor int) error {
	if cursor < 0 {
		return fmt.Errorf("cursor must be >= 0, got %d", cursor)
	}
	data, err := json.Marshal(state{LastIndex: cursor})
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, s.path, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}
