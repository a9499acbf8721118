package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cefr-dataset/internal/progress"
)

func TestPubSubSinkPublishesCheckpointsOnly(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	sink, err := NewPubSubSink(pub, "cefr-progress", nil)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageItemDone, Batch: 1, Word: "cat"},
		{RunID: runID, TS: now, Stage: progress.StageBatchDone, Batch: 1, Cursor: 1000, Valid: 420},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Cursor: 1000},
	}))

	require.Len(t, pub.payloads, 2)
	first := pub.payloads[0].(map[string]any)
	require.Equal(t, "BATCH_DONE", first["stage"])
	require.Equal(t, 1000, first["cursor"])
	require.Equal(t, 420, first["valid"])
	require.Equal(t, "cefr-progress", pub.topics[0])
	require.Equal(t, "RUN_DONE", pub.payloads[1].(map[string]any)["stage"])
}

func TestPubSubSinkSurfacesErrors(t *testing.T) {
	t.Parallel()

	sink, err := NewPubSubSink(&capturePublisher{err: errors.New("unavailable")}, "t", nil)
	require.NoError(t, err)

	err = sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageRunDone},
	})
	require.ErrorContains(t, err, "unavailable")

	_, err = NewPubSubSink(nil, "t", nil)
	require.Error(t, err)
	_, err = NewPubSubSink(&capturePublisher{}, "", nil)
	require.Error(t, err)
}

type capturePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
	err      error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}
