// Package progress provides the events the batch coordinator emits for run,
// batch, and item milestones, and the Hub that hands them to sinks such as
// logs, Prometheus metrics, a status snapshot, or Pub/Sub checkpoint
// notifications without ever blocking the pipeline.
package progress
