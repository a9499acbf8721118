// Package source builds the ordered item list from independent word
// providers.
package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

// Build fetches every provider concurrently, normalizes their tokens, and
// returns the sorted union truncated to limit items (limit <= 0 means no limit).
// A failing provider contributes nothing; only cancellation of ctx fails the
// build.
func Build(ctx context.Context, providers []vocab.Provider, limit int, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("source")

	lists := make([][]string, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			start := time.Now()
			words, err := p.Fetch(gctx)
			if err != nil {
				logger.Warn("provider failed; skipping",
					zap.String("provider", p.Name()),
					zap.Error(err),
				)
				return nil
			}
			logger.Info("provider fetched",
				zap.String("provider", p.Name()),
				zap.Int("tokens", len(words)),
				zap.Duration("duration", time.Since(start)),
			)
			lists[i] = words
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build item list: %w", err)
	}

	items := Union(lists...)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	logger.Info("item list built",
		zap.Int("providers", len(providers)),
		zap.Int("items", len(items)),
	)
	return items, nil
}

// Union normalizes and de-duplicates tokens from every list and returns them
// sorted, so that the same inputs always yield the same order.
func Union(lists ...[]string) []string {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, raw := range list {
			if word, ok := vocab.Normalize(raw); ok {
				set[word] = struct{}{}
			}
		}
	}
	items := make([]string, 0, len(set))
	for word := range set {
		items = append(items, word)
	}
	sort.Strings(items)
	return items
}
