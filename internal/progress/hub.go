package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// maxPendingUpdates bounds queued run and item updates. Checkpoint and
	// terminal events do not count against it and are never dropped.
	maxPendingUpdates = 8192
	flushEvery        = 250 * time.Millisecond
	sinkTimeout       = 10 * time.Second
	dropLogInterval   = 5 * time.Second
)

// Config wires a Hub into its process.
type Config struct {
	// BaseContext parents every sink call. Defaults to context.Background().
	BaseContext context.Context
	Logger      *zap.Logger
}

// Hub hands events to sinks from a single goroutine, in the order they were
// emitted. Emit never blocks the caller. BATCH_DONE and terminal events are
// queued unconditionally and wake the hub at once; other events are delivered
// every flushEvery and are dropped while sinks lag by maxPendingUpdates.
type Hub struct {
	base   context.Context
	logger *zap.Logger
	sinks  []Sink

	mu      sync.Mutex
	pending []Event
	updates int
	closed  bool

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeCtx  context.Context

	dropped atomic.Int64
	dropLog rate.Sometimes
}

// NewHub starts a Hub delivering to sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	h := newHub(cfg, sinks)
	go h.run()
	return h
}

func newHub(cfg Config, sinks []Sink) *Hub {
	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		base:    base,
		logger:  logger,
		sinks:   append([]Sink(nil), sinks...),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
}

// mustDeliver reports whether evt records committed progress or the end of a
// run.
func mustDeliver(stage Stage) bool {
	return stage == StageBatchDone || stage.Terminal()
}

// Emit queues evt. Invalid events and events emitted after Close are ignored.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	urgent := mustDeliver(evt.Stage)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if !urgent && h.updates >= maxPendingUpdates {
		h.mu.Unlock()
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("progress updates dropped; sinks are falling behind",
				zap.Int64("dropped", h.dropped.Swap(0)))
		})
		return
	}
	h.pending = append(h.pending, evt)
	if !urgent {
		h.updates++
	}
	h.mu.Unlock()

	if urgent {
		select {
		case h.wake <- struct{}{}:
		default:
		}
	}
}

// Close delivers everything queued, closes the sinks, and waits for the hub
// goroutine to exit or ctx to end. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.closeCtx = ctx
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.done)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-h.wake:
		case <-ticker.C:
		case <-h.stop:
			h.deliver(h.take())
			h.closeSinks()
			return
		}
		h.deliver(h.take())
	}
}

func (h *Hub) take() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	batch := h.pending
	h.pending = nil
	h.updates = 0
	return batch
}

func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.base, sinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(h.closeCtx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
