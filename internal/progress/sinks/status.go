package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/cefr-dataset/internal/progress"
)

// Run states reported by the status snapshot.
const (
	StateIdle        = "idle"
	StateRunning     = "running"
	StateCompleted   = "completed"
	StateInterrupted = "interrupted"
	StateFailed      = "failed"
)

// Snapshot is the latest known state of the current run.
type Snapshot struct {
	RunID          string    `json:"run_id,omitempty"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
	Total          int       `json:"total"`
	Cursor         int       `json:"cursor"`
	Percent        float64   `json:"percent"`
	Batch          int       `json:"batch"`
	BatchItems     int       `json:"batch_items"`
	BatchItemsDone int       `json:"batch_items_done"`
	Valid          int       `json:"valid"`
	CacheHits      int       `json:"cache_hits"`
	Error          string    `json:"error,omitempty"`
}

// StatusSink folds the event stream into a Snapshot for the status API.
type StatusSink struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatusSink returns a sink reporting the idle state.
func NewStatusSink() *StatusSink {
	return &StatusSink{snap: Snapshot{State: StateIdle}}
}

// Consume applies each event to the snapshot.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *StatusSink) apply(evt progress.Event) {
	snap := &s.snap
	snap.UpdatedAt = evt.TS
	switch evt.Stage {
	case progress.StageRunStart:
		*snap = Snapshot{
			RunID:     evt.RunUUID().String(),
			State:     StateRunning,
			StartedAt: evt.TS,
			UpdatedAt: evt.TS,
			Total:     evt.Total,
			Cursor:    evt.Cursor,
		}
	case progress.StageBatchStart:
		snap.Batch = evt.Batch
		snap.BatchItems = evt.Items
		snap.BatchItemsDone = 0
	case progress.StageItemDone:
		if evt.Batch == snap.Batch && evt.Items > snap.BatchItemsDone {
			snap.BatchItemsDone = evt.Items
		}
	case progress.StageBatchDone:
		snap.Cursor = evt.Cursor
		snap.Valid += evt.Valid
		snap.CacheHits += evt.CacheHits
		snap.BatchItemsDone = snap.BatchItems
	case progress.StageRunDone:
		snap.State = StateCompleted
		snap.Cursor = evt.Cursor
	case progress.StageRunInterrupted:
		snap.State = StateInterrupted
		snap.Cursor = evt.Cursor
	case progress.StageRunError:
		snap.State = StateFailed
		snap.Error = evt.Note
	}
	if snap.Total > 0 {
		snap.Percent = float64(snap.Cursor) * 100 / float64(snap.Total)
	} else if snap.State == StateCompleted {
		snap.Percent = 100
	}
}

// Snapshot returns a copy of the current state.
func (s *StatusSink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
