// Package cache implements the result cache: an in-memory word -> record map
// loaded once at startup and flushed to a durable Backend at checkpoints.
//
// A Cache is owned by a single goroutine (the batch coordinator) and is not
// safe for concurrent use.
package cache

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

// Backend durably stores cache entries.
type Backend interface {
	// Load returns everything last stored. A backend with no saved state
	// returns an empty map and no error.
	Load(ctx context.Context) (map[string]vocab.Record, error)
	// Store persists the cache. entries is the full map; changed lists the
	// keys written since the previous Store so incremental backends can
	// skip the rest.
	Store(ctx context.Context, entries map[string]vocab.Record, changed []string) error
}

// Cache is the in-memory view of the result cache.
type Cache struct {
	backend Backend
	entries map[string]vocab.Record
	dirty   map[string]struct{}
	logger  *zap.Logger
}

// Open loads the backend's entries. Load failures are logged and the cache
// starts empty; a corrupt cache never aborts a run.
func Open(ctx context.Context, backend Backend, logger *zap.Logger) (*Cache, error) {
	if backend == nil {
		return nil, fmt.Errorf("cache backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := backend.Load(ctx)
	if err != nil {
		logger.Error("cache load failed; starting with an empty cache", zap.Error(err))
		entries = nil
	}
	if entries == nil {
		entries = make(map[string]vocab.Record)
	}
	logger.Info("cache loaded", zap.Int("entries", len(entries)))
	return &Cache{
		backend: backend,
		entries: entries,
		dirty:   make(map[string]struct{}),
		logger:  logger,
	}, nil
}

// Contains reports whether word has a cached record.
func (c *Cache) Contains(word string) bool {
	_, ok := c.entries[vocab.Key(word)]
	return ok
}

// Get returns the cached record for word.
func (c *Cache) Get(word string) (vocab.Record, bool) {
	rec, ok := c.entries[vocab.Key(word)]
	return rec, ok
}

// Put stores rec under word. The change is durable after the next Flush.
func (c *Cache) Put(word string, rec vocab.Record) {
	key := vocab.Key(word)
	if existing, ok := c.entries[key]; ok && existing == rec {
		return
	}
	c.entries[key] = rec
	c.dirty[key] = struct{}{}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Flush persists the cache through the backend.
func (c *Cache) Flush(ctx context.Context) error {
	changed := make([]string, 0, len(c.dirty))
	for key := range c.dirty {
		changed = append(changed, key)
	}
	sort.Strings(changed)
	if err := c.backend.Store(ctx, c.entries, changed); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	clear(c.dirty)
	return nil
}
