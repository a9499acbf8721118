package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cefr-dataset/internal/progress"
)

// Publisher pushes notification payloads to a topic (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PubSubSink announces checkpoints and run outcomes on a topic so downstream
// consumers can pick up the output incrementally. Item and batch-start events
// are not published.
type PubSubSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPubSubSink builds a sink publishing to topic.
func NewPubSubSink(publisher Publisher, topic string, logger *zap.Logger) (*PubSubSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{publisher: publisher, topic: topic, logger: logger}, nil
}

// Consume publishes one message per checkpoint or terminal event.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage != progress.StageBatchDone && !evt.Stage.Terminal() {
			continue
		}
		payload := map[string]any{
			"run_id":     evt.RunUUID().String(),
			"stage":      string(evt.Stage),
			"timestamp":  evt.TS.UTC().Format(time.RFC3339),
			"batch":      evt.Batch,
			"cursor":     evt.Cursor,
			"total":      evt.Total,
			"valid":      evt.Valid,
			"cache_hits": evt.CacheHits,
		}
		if evt.Note != "" {
			payload["note"] = evt.Note
		}
		id, err := s.publisher.Publish(ctx, s.topic, payload)
		if err != nil {
			return fmt.Errorf("publish %s: %w", evt.Stage, err)
		}
		s.logger.Debug("progress published",
			zap.String("message_id", id),
			zap.String("stage", string(evt.Stage)),
			zap.Int("cursor", evt.Cursor),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PubSubSink) Close(context.Context) error {
	return nil
}
