package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/cefr-dataset/internal/progress"
)

// LogSink emits structured logs for run progress. Batch and run milestones are
// logged at Info; per-item completions at Debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageItemDone:
			s.logger.Debug("item analyzed",
				zap.Int("batch", evt.Batch),
				zap.String("word", evt.Word),
				zap.Bool("found", evt.Found),
				zap.Int("done", evt.Items),
			)
		case progress.StageBatchStart:
			s.logger.Info("batch started",
				zap.Int("batch", evt.Batch),
				zap.Int("start", evt.Cursor),
				zap.Int("items", evt.Items),
				zap.Int("total", evt.Total),
			)
		case progress.StageBatchDone:
			s.logger.Info("batch checkpointed",
				zap.Int("batch", evt.Batch),
				zap.Int("cursor", evt.Cursor),
				zap.Int("total", evt.Total),
				zap.Int("valid", evt.Valid),
				zap.Int("cache_hits", evt.CacheHits),
				zap.Duration("dur", evt.Dur),
			)
		default:
			s.logger.Info("run "+stageVerb(evt.Stage),
				zap.String("run_id", evt.RunUUID().String()),
				zap.Int("cursor", evt.Cursor),
				zap.Int("total", evt.Total),
				zap.Int("valid", evt.Valid),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func stageVerb(stage progress.Stage) string {
	switch stage {
	case progress.StageRunStart:
		return "started"
	case progress.StageRunDone:
		return "completed"
	case progress.StageRunInterrupted:
		return "interrupted"
	case progress.StageRunError:
		return "failed"
	default:
		return string(stage)
	}
}
