package workerpool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

func TestMapPreservesInputOrder(t *testing.T) {
	t.Parallel()

	pool, err := Start(context.Background(), 4, upperFactory(nil), nil)
	require.NoError(t, err)
	defer pool.Close() //nolint:errcheck

	items := make([]string, 200)
	for i := range items {
		items[i] = fmt.Sprintf("word%03d", i)
	}
	results, err := pool.Map(context.Background(), items, nil)
	require.NoError(t, err)
	require.Len(t, results, len(items))
	for i, res := range results {
		require.True(t, res.OK)
		require.Equal(t, strings.ToUpper(items[i]), res.Record.Level)
		require.Equal(t, items[i], res.Record.Word)
	}
}

func TestMapConvertsFailuresToNoResult(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	factory := func(context.Context) (vocab.Analyzer, error) {
		return vocab.AnalyzerFunc(func(_ context.Context, word string) (vocab.Record, error) {
			switch word {
			case "skip":
				return vocab.Record{}, vocab.ErrNotApplicable
			case "boom":
				panic("index out of range")
			case "fail":
				return vocab.Record{}, errors.New("lookup failed")
			}
			return vocab.Record{Word: word, Level: "A1"}, nil
		}), nil
	}
	pool, err := Start(context.Background(), 2, factory, zap.New(core))
	require.NoError(t, err)
	defer pool.Close() //nolint:errcheck

	var completions atomic.Int32
	var mu sync.Mutex
	found := map[string]bool{}
	results, err := pool.Map(context.Background(), []string{"cat", "skip", "boom", "fail", "dog"}, func(c Completion) {
		completions.Add(1)
		mu.Lock()
		found[c.Word] = c.Found
		mu.Unlock()
	})
	require.NoError(t, err)
	require.Equal(t, []bool{true, false, false, false, true}, []bool{
		results[0].OK, results[1].OK, results[2].OK, results[3].OK, results[4].OK,
	})
	require.Equal(t, int32(5), completions.Load())
	require.Equal(t, map[string]bool{"cat": true, "skip": false, "boom": false, "fail": false, "dog": true}, found)

	require.Equal(t, 1, logs.FilterMessage("analysis panicked").Len())
	require.Equal(t, 1, logs.FilterMessage("analysis failed").Len())
}

func TestStartRunsInitializerPerWorker(t *testing.T) {
	t.Parallel()

	var inits atomic.Int32
	pool, err := Start(context.Background(), 3, upperFactory(&inits), nil)
	require.NoError(t, err)
	require.Equal(t, 3, pool.Size())
	require.Equal(t, int32(3), inits.Load())
	require.NoError(t, pool.Close())
}

func TestStartFailureClosesBuiltWorkers(t *testing.T) {
	t.Parallel()

	var calls, closed atomic.Int32
	factory := func(context.Context) (vocab.Analyzer, error) {
		if calls.Add(1) == 2 {
			return nil, errors.New("model missing")
		}
		return &closingAnalyzer{closed: &closed}, nil
	}
	_, err := Start(context.Background(), 3, factory, nil)
	require.ErrorContains(t, err, "model missing")
	require.Equal(t, calls.Load()-1, closed.Load())

	_, err = Start(context.Background(), 1, nil, nil)
	require.Error(t, err)
}

func TestCloseReleasesAnalyzers(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	pool, err := Start(context.Background(), 2, func(context.Context) (vocab.Analyzer, error) {
		return &closingAnalyzer{closed: &closed}, nil
	}, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Close())
	require.Equal(t, int32(2), closed.Load())
}

func TestMapCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	factory := func(context.Context) (vocab.Analyzer, error) {
		return vocab.AnalyzerFunc(func(_ context.Context, word string) (vocab.Record, error) {
			if word == "stop" {
				cancel()
			}
			return vocab.Record{Word: word, Level: "A1"}, nil
		}), nil
	}
	pool, err := Start(context.Background(), 1, factory, nil)
	require.NoError(t, err)
	defer pool.Close() //nolint:errcheck

	results, err := pool.Map(ctx, []string{"one", "stop", "three", "four"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, results)
}

func upperFactory(inits *atomic.Int32) vocab.AnalyzerFactory {
	return func(context.Context) (vocab.Analyzer, error) {
		if inits != nil {
			inits.Add(1)
		}
		return vocab.AnalyzerFunc(func(_ context.Context, word string) (vocab.Record, error) {
			return vocab.Record{Word: word, Level: strings.ToUpper(word)}, nil
		}), nil
	}
}

type closingAnalyzer struct {
	closed *atomic.Int32
}

func (c *closingAnalyzer) Analyze(_ context.Context, word string) (vocab.Record, error) {
	return vocab.Record{Word: word, Level: "A1"}, nil
}

func (c *closingAnalyzer) Close() error {
	c.closed.Add(1)
	return nil
}
