package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/cefr-dataset/internal/storage"
)

func TestBlobStoreGetObjectReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "cache.gob", "application/octet-stream", bytes.NewReader([]byte("content")))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://cache.gob" {
		t.Fatalf("unexpected uri %s", uri)
	}
	got, err := store.GetObject(context.Background(), "cache.gob")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	got[0] = 'C'
	if stored := string(store.data["cache.gob"]); stored != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if store.Puts() != 1 {
		t.Fatalf("expected 1 put, got %d", store.Puts())
	}
}

func TestBlobStoreGetObjectMissing(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
