// Package sinks implements concrete progress consumers: structured logging,
// Prometheus metrics, an in-memory status snapshot for the HTTP API, and
// Pub/Sub checkpoint notifications. Each sink satisfies the progress.Sink
// interface and is safe for repeated Consume/Close cycles.
package sinks
