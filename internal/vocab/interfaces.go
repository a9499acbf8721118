package vocab

import (
	"context"
	"time"
)

// Analyzer enriches a single item. Implementations return ErrNotApplicable
// (or any other error) when no record can be produced.
type Analyzer interface {
	Analyze(ctx context.Context, word string) (Record, error)
}

// AnalyzerFunc adapts a plain function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, word string) (Record, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, word string) (Record, error) {
	return f(ctx, word)
}

// AnalyzerFactory builds one Analyzer per worker. It runs once when a worker
// starts, so it is the place to load expensive per-worker resources.
type AnalyzerFactory func(ctx context.Context) (Analyzer, error)

// Provider supplies raw, unnormalized words from a single source.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
