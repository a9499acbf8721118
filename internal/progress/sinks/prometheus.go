package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/cefr-dataset/internal/progress"
)

// PrometheusSink exports pipeline progress via Prometheus. It owns all
// collectors for runs, batches, items, and the checkpoint cursor.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	batches        prometheus.Counter
	batchDuration  prometheus.Histogram
	itemsProcessed *prometheus.CounterVec
	recordsWritten prometheus.Counter
	cacheHits      prometheus.Counter

	cursor     prometheus.Gauge
	itemsTotal prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cefr_runs_started_total",
			Help: "Total pipeline runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cefr_runs_finished_total",
			Help: "Total pipeline runs finished partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cefr_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
		}, []string{"result"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cefr_batches_checkpointed_total",
			Help: "Batches fully processed and checkpointed.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cefr_batch_duration_seconds",
			Help:    "Time from batch start to checkpoint.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		itemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cefr_items_processed_total",
			Help: "Items analyzed partitioned by result (found or skipped).",
		}, []string{"result"}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cefr_records_written_total",
			Help: "Valid records appended to the output.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cefr_cache_hits_total",
			Help: "Items served from the result cache instead of being analyzed.",
		}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cefr_checkpoint_cursor",
			Help: "Last durably checkpointed index into the item sequence.",
		}),
		itemsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cefr_items_total",
			Help: "Number of items in the current run's sequence.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.batches,
		s.batchDuration,
		s.itemsProcessed,
		s.recordsWritten,
		s.cacheHits,
		s.cursor,
		s.itemsTotal,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.itemsTotal.Set(float64(evt.Total))
		s.cursor.Set(float64(evt.Cursor))
	case progress.StageItemDone:
		result := "skipped"
		if evt.Found {
			result = "found"
		}
		s.itemsProcessed.WithLabelValues(result).Inc()
	case progress.StageBatchDone:
		s.batches.Inc()
		s.recordsWritten.Add(float64(evt.Valid))
		s.cacheHits.Add(float64(evt.CacheHits))
		s.cursor.Set(float64(evt.Cursor))
		if evt.Dur > 0 {
			s.batchDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageRunDone:
		s.finishRun(evt, "completed")
	case progress.StageRunInterrupted:
		s.finishRun(evt, "interrupted")
	case progress.StageRunError:
		s.finishRun(evt, "error")
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, label string) {
	s.runsCompleted.WithLabelValues(label).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
