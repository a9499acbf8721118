// Package workerpool fans item analysis out across a fixed set of workers,
// each owning an analyzer built by a per-worker initializer.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

// Completion describes one finished item, reported while a batch runs.
type Completion struct {
	Index    int
	Word     string
	Found    bool
	Done     int
	Duration time.Duration
}

// Pool is a set of initialized workers. A Pool is meant to serve one batch and
// then be closed.
type Pool struct {
	analyzers []vocab.Analyzer
	logger    *zap.Logger
}

// Start initializes size workers concurrently with factory. size is clamped to
// at least one. If any initializer fails, workers already built are closed.
func Start(ctx context.Context, size int, factory vocab.AnalyzerFactory, logger *zap.Logger) (*Pool, error) {
	if factory == nil {
		return nil, errors.New("analyzer factory is required")
	}
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{analyzers: make([]vocab.Analyzer, size), logger: logger.Named("workerpool")}

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.analyzers {
		g.Go(func() error {
			an, err := factory(gctx)
			if err != nil {
				return fmt.Errorf("init worker %d: %w", i, err)
			}
			p.analyzers[i] = an
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// Size reports the number of workers.
func (p *Pool) Size() int {
	return len(p.analyzers)
}

// Map analyzes every item and returns results in input order. Analyzer errors
// and panics become results with OK unset; they never fail the call. onDone,
// when set, is invoked from worker goroutines after each item. Map returns an
// error only when ctx is canceled, in which case the partial results must be
// discarded.
func (p *Pool) Map(ctx context.Context, items []string, onDone func(Completion)) ([]vocab.Result, error) {
	results := make([]vocab.Result, len(items))
	indexes := make(chan int)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(indexes)
		for i := range items {
			select {
			case indexes <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for _, an := range p.analyzers {
		g.Go(func() error {
			for i := range indexes {
				start := time.Now()
				res := p.analyze(gctx, an, items[i])
				results[i] = res
				n := done.Add(1)
				if onDone != nil {
					onDone(Completion{
						Index:    i,
						Word:     items[i],
						Found:    res.OK,
						Done:     int(n),
						Duration: time.Since(start),
					})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("map batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("map batch: %w", err)
	}
	return results, nil
}

func (p *Pool) analyze(ctx context.Context, an vocab.Analyzer, word string) (res vocab.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("analysis panicked", zap.String("word", word), zap.Any("panic", r))
			res = vocab.Result{}
		}
	}()
	rec, err := an.Analyze(ctx, word)
	if err != nil {
		if !errors.Is(err, vocab.ErrNotApplicable) {
			p.logger.Debug("analysis failed", zap.String("word", word), zap.Error(err))
		}
		return vocab.Result{}
	}
	return vocab.Found(rec)
}

// Close releases analyzers that hold resources.
func (p *Pool) Close() error {
	var errs []error
	for i, an := range p.analyzers {
		if c, ok := an.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close worker %d: %w", i, err))
			}
		}
		p.analyzers[i] = nil
	}
	return errors.Join(errs...)
}
