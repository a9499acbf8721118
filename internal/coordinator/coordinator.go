// Package coordinator drives the resumable batch pipeline: it slices the item
// list from the saved cursor, analyzes each batch on a fresh worker pool, and
// checkpoints output, cache, and cursor before starting the next batch.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/cefr-dataset/internal/checkpoint"
	"github.com/JakeFAU/cefr-dataset/internal/clock/system"
	"github.com/JakeFAU/cefr-dataset/internal/progress"
	"github.com/JakeFAU/cefr-dataset/internal/vocab"
	"github.com/JakeFAU/cefr-dataset/internal/workerpool"
)

// ErrInterrupted is returned when the run stops because its context was
// canceled. Everything up to the last checkpoint is preserved.
var ErrInterrupted = errors.New("run interrupted")

// State is the coordinator lifecycle state.
type State string

// Lifecycle states.
const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
	StateFailed      State = "failed"
)

// ItemSource produces the ordered item list.
type ItemSource interface {
	Build(ctx context.Context) ([]string, error)
}

// ItemSourceFunc adapts a function to ItemSource.
type ItemSourceFunc func(ctx context.Context) ([]string, error)

// Build calls f.
func (f ItemSourceFunc) Build(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// ResultCache is the subset of the cache the coordinator uses.
type ResultCache interface {
	Get(word string) (vocab.Record, bool)
	Put(word string, rec vocab.Record)
	Len() int
	Flush(ctx context.Context) error
}

// Output receives the records of each batch. Rows written since the last
// Commit are removed by Rollback, so a failed checkpoint leaves no rows the
// cursor does not cover.
type Output interface {
	Write(records []vocab.Record) error
	Flush() error
	Commit()
	Rollback() error
	Close() error
}

// OutputOpener opens the output; fresh is set when no batch has been
// checkpointed yet and the output must be truncated.
type OutputOpener func(fresh bool) (Output, error)

// Config tunes batching.
type Config struct {
	BatchSize int
	Workers   int
}

const tracerName = "github.com/JakeFAU/cefr-dataset/internal/coordinator"

// Deps are the collaborators of a Coordinator. Events, Clock, RunID, Tracer,
// and Logger are optional.
type Deps struct {
	Items    ItemSource
	Cache    ResultCache
	Progress checkpoint.Store
	Output   OutputOpener
	Analyzer vocab.AnalyzerFactory
	Events   progress.Emitter
	Clock    vocab.Clock
	RunID    uuid.UUID
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID        string
	State        State
	Total        int
	Start        int
	Cursor       int
	Batches      int
	Valid        int
	CacheHits    int
	CacheEntries int
	Duration     time.Duration
}

// Coordinator runs the pipeline once.
type Coordinator struct {
	cfg    Config
	deps   Deps
	runID  [16]byte
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// New validates the configuration and collaborators.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	switch {
	case deps.Items == nil:
		return nil, errors.New("item source is required")
	case deps.Cache == nil:
		return nil, errors.New("result cache is required")
	case deps.Progress == nil:
		return nil, errors.New("progress store is required")
	case deps.Output == nil:
		return nil, errors.New("output opener is required")
	case deps.Analyzer == nil:
		return nil, errors.New("analyzer factory is required")
	}
	if deps.Events == nil {
		deps.Events = progress.NopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.RunID == uuid.Nil {
		deps.RunID = uuid.New()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:    cfg,
		deps:   deps,
		runID:  progress.UUIDToBytes(deps.RunID),
		logger: deps.Logger.Named("coordinator").With(zap.String("run_id", deps.RunID.String())),
		state:  StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run processes every batch from the saved cursor to the end of the item
// list. It returns ErrInterrupted when ctx is canceled and any other error
// when a checkpoint cannot be written. A Coordinator runs at most once.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Summary{}, fmt.Errorf("coordinator already ran (state %s)", c.state)
	}
	c.state = StateRunning
	c.mu.Unlock()

	ctx, span := c.deps.Tracer.Start(ctx, "coordinator.Run",
		trace.WithAttributes(attribute.String("run_id", c.deps.RunID.String())))
	defer span.End()

	started := c.deps.Clock.Now()
	sum := Summary{RunID: c.deps.RunID.String(), State: StateRunning}
	err := c.run(ctx, &sum)
	sum.CacheEntries = c.deps.Cache.Len()
	sum.Duration = c.deps.Clock.Now().Sub(started)

	terminal := progress.Event{
		Stage:  progress.StageRunDone,
		Cursor: sum.Cursor,
		Total:  sum.Total,
		Valid:  sum.Valid,
		Dur:    max(sum.Duration, 0),
	}
	switch {
	case err == nil:
		sum.State = StateCompleted
	case errors.Is(err, ErrInterrupted):
		sum.State = StateInterrupted
		terminal.Stage = progress.StageRunInterrupted
	default:
		sum.State = StateFailed
		terminal.Stage = progress.StageRunError
		terminal.Note = err.Error()
	}
	c.setState(sum.State)
	c.emit(terminal)
	endSpan(span, err,
		attribute.String("state", string(sum.State)),
		attribute.Int("cursor", sum.Cursor),
		attribute.Int("total", sum.Total),
		attribute.Int("valid", sum.Valid),
	)
	return sum, err
}

func (c *Coordinator) run(ctx context.Context, sum *Summary) error {
	cursor, err := c.deps.Progress.Load(ctx)
	if err != nil {
		return c.interruptedOr(ctx, fmt.Errorf("load progress: %w", err))
	}
	items, err := c.deps.Items.Build(ctx)
	if err != nil {
		return c.interruptedOr(ctx, fmt.Errorf("build items: %w", err))
	}
	total := len(items)
	if cursor > total {
		c.logger.Warn("saved cursor is past the end of the item list; nothing to do",
			zap.Int("cursor", cursor),
			zap.Int("total", total),
		)
		cursor = total
	}
	sum.Total, sum.Start, sum.Cursor = total, cursor, cursor
	c.emit(progress.Event{Stage: progress.StageRunStart, Cursor: cursor, Total: total})
	if cursor > 0 {
		c.logger.Info("resuming from checkpoint", zap.Int("cursor", cursor), zap.Int("total", total))
	}

	out, err := c.deps.Output(cursor == 0)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			c.logger.Error("close output failed", zap.Error(cerr))
		}
	}()

	for cursor < total {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		end := min(cursor+c.cfg.BatchSize, total)
		b, err := c.tracedBatch(ctx, items, cursor, end, out)
		if err != nil {
			return c.interruptedOr(ctx, err)
		}
		cursor = end
		sum.Cursor = cursor
		sum.Batches++
		sum.Valid += b.valid
		sum.CacheHits += b.hits
	}
	return nil
}

type batchStats struct {
	valid int
	hits  int
}

func (c *Coordinator) tracedBatch(ctx context.Context, items []string, start, end int, out Output) (batchStats, error) {
	ctx, span := c.deps.Tracer.Start(ctx, "coordinator.batch", trace.WithAttributes(
		attribute.Int("batch.start", start),
		attribute.Int("batch.size", end-start),
	))
	defer span.End()
	b, err := c.processBatch(ctx, items, start, end, out)
	endSpan(span, err,
		attribute.Int("batch.valid", b.valid),
		attribute.Int("batch.cache_hits", b.hits),
	)
	return b, err
}

func (c *Coordinator) processBatch(ctx context.Context, items []string, start, end int, out Output) (batchStats, error) {
	began := c.deps.Clock.Now()
	batchNo := start/c.cfg.BatchSize + 1
	words := items[start:end]
	c.emit(progress.Event{
		Stage:  progress.StageBatchStart,
		Batch:  batchNo,
		Cursor: start,
		Total:  len(items),
		Items:  len(words),
	})

	cached := make(map[int]vocab.Record)
	var pending []string
	var pendingIdx []int
	for i, w := range words {
		if rec, ok := c.deps.Cache.Get(w); ok {
			cached[i] = rec
			continue
		}
		pending = append(pending, w)
		pendingIdx = append(pendingIdx, i)
	}

	results, err := c.analyze(ctx, batchNo, len(cached), pending)
	if err != nil {
		return batchStats{}, err
	}

	records := make([]vocab.Record, 0, len(words))
	fresh := make(map[int]vocab.Record, len(results))
	for j, res := range results {
		if res.OK {
			fresh[pendingIdx[j]] = res.Record
		}
	}
	for i, w := range words {
		if rec, ok := cached[i]; ok {
			records = append(records, rec)
		} else if rec, ok := fresh[i]; ok {
			records = append(records, rec)
			c.deps.Cache.Put(w, rec)
		}
	}

	if err := c.checkpoint(ctx, out, records, end); err != nil {
		return batchStats{}, fmt.Errorf("batch %d: %w", batchNo, err)
	}

	stats := batchStats{valid: len(records), hits: len(cached)}
	c.emit(progress.Event{
		Stage:     progress.StageBatchDone,
		Batch:     batchNo,
		Cursor:    end,
		Total:     len(items),
		Items:     len(words),
		Valid:     stats.valid,
		CacheHits: stats.hits,
		Dur:       max(c.deps.Clock.Now().Sub(began), 0),
	})
	return stats, nil
}

// checkpoint persists a finished batch. It runs to the end even if ctx is
// canceled meanwhile. The cache goes first since it only saves work; rows
// are committed only once the cursor covering them is saved.
func (c *Coordinator) checkpoint(ctx context.Context, out Output, records []vocab.Record, cursor int) error {
	cpCtx := context.WithoutCancel(ctx)
	if err := c.deps.Cache.Flush(cpCtx); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	err := out.Write(records)
	if err == nil {
		err = out.Flush()
	}
	if err == nil {
		if serr := c.deps.Progress.Save(cpCtx, cursor); serr != nil {
			err = fmt.Errorf("save progress: %w", serr)
		}
	}
	if err != nil {
		if rerr := out.Rollback(); rerr != nil {
			c.logger.Error("rollback output failed", zap.Error(rerr))
			return errors.Join(err, rerr)
		}
		return err
	}
	out.Commit()
	return nil
}

// analyze runs pending words on a pool created for this batch only.
func (c *Coordinator) analyze(ctx context.Context, batchNo, offset int, pending []string) ([]vocab.Result, error) {
	if len(pending) == 0 {
		return nil, nil
	}
	pool, err := workerpool.Start(ctx, min(c.cfg.Workers, len(pending)), c.deps.Analyzer, c.logger)
	if err != nil {
		return nil, fmt.Errorf("batch %d: start workers: %w", batchNo, err)
	}
	c.logger.Debug("batch workers started",
		zap.Int("batch", batchNo),
		zap.Int("workers", pool.Size()),
		zap.Int("pending", len(pending)),
	)
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			c.logger.Warn("close workers failed", zap.Int("batch", batchNo), zap.Error(cerr))
		}
	}()
	results, err := pool.Map(ctx, pending, func(done workerpool.Completion) {
		c.emit(progress.Event{
			Stage: progress.StageItemDone,
			Batch: batchNo,
			Items: offset + done.Done,
			Word:  done.Word,
			Found: done.Found,
			Dur:   done.Duration,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("batch %d: %w", batchNo, err)
	}
	return results, nil
}

func endSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	switch {
	case errors.Is(err, ErrInterrupted):
		span.SetStatus(codes.Error, "interrupted")
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetStatus(codes.Ok, "")
	}
}

// interruptedOr maps failures caused by cancellation to ErrInterrupted.
func (c *Coordinator) interruptedOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	return err
}

func (c *Coordinator) emit(evt progress.Event) {
	evt.RunID = c.runID
	evt.TS = c.deps.Clock.Now()
	c.deps.Events.Emit(evt)
}
