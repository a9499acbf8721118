package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Static serves a fixed word list, typically from configuration.
type Static struct {
	name  string
	words []string
}

// NewStatic returns a provider over words.
func NewStatic(name string, words []string) *Static {
	return &Static{name: name, words: append([]string(nil), words...)}
}

// Name implements vocab.Provider.
func (s *Static) Name() string { return s.name }

// Fetch implements vocab.Provider.
func (s *Static) Fetch(context.Context) ([]string, error) {
	return append([]string(nil), s.words...), nil
}

// File reads whitespace separated tokens from a local file.
type File struct {
	path string
}

// NewFile returns a provider reading path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Name implements vocab.Provider.
func (f *File) Name() string { return "file:" + filepath.Base(f.path) }

// Fetch implements vocab.Provider.
func (f *File) Fetch(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read word list %s: %w", f.path, err)
	}
	return strings.Fields(string(data)), nil
}

// Fetcher downloads the body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Web downloads a word list with one token per line.
type Web struct {
	url     string
	fetcher Fetcher
}

// NewWeb returns a provider for url.
func NewWeb(url string, fetcher Fetcher) *Web {
	return &Web{url: url, fetcher: fetcher}
}

// Name implements vocab.Provider.
func (w *Web) Name() string { return w.url }

// Fetch implements vocab.Provider.
func (w *Web) Fetch(ctx context.Context) ([]string, error) {
	if w.fetcher == nil {
		return nil, fmt.Errorf("fetcher is not configured")
	}
	body, err := w.fetcher.Fetch(ctx, w.url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", w.url, err)
	}
	return strings.Split(string(body), "\n"), nil
}
