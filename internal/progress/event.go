// Package progress defines the event structures emitted by the batch coordinator.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageBatchStart     Stage = "BATCH_START"
	StageItemDone       Stage = "ITEM_DONE"
	StageBatchDone      Stage = "BATCH_DONE"
	StageRunDone        Stage = "RUN_DONE"
	StageRunInterrupted Stage = "RUN_INTERRUPTED"
	StageRunError       Stage = "RUN_ERROR"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunInterrupted || s == StageRunError
}

// Event captures a single milestone of a pipeline run.
type Event struct {
	// RunID uniquely identifies a process run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle, batch, or item milestone occurred.
	Stage Stage
	// Batch is the 1-based batch number for batch and item events.
	Batch int
	// Cursor is the batch start index for BATCH_START and the checkpointed
	// cursor for BATCH_DONE and run events.
	Cursor int
	// Total is the number of items in the full sequence.
	Total int
	// Items is the batch size for batch events and the number of finished
	// items in the batch for ITEM_DONE.
	Items int
	// Valid counts records written: per batch for BATCH_DONE, per run for
	// terminal events.
	Valid int
	// CacheHits counts items served from the result cache.
	CacheHits int
	// Word is the item for ITEM_DONE.
	Word string
	// Found is set on ITEM_DONE when the item produced a record.
	Found bool
	// Dur captures latency for batches and whole runs.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunInterrupted, StageRunError:
	case StageBatchStart, StageBatchDone:
		if e.Batch <= 0 {
			return errors.New("batch events require a batch number")
		}
	case StageItemDone:
		if e.Word == "" {
			return errors.New("item done requires word")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Cursor < 0 || e.Total < 0 {
		return errors.New("cursor and total must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
