// Package api hosts the optional status server that runs alongside a
// pipeline run. Routes:
//   - GET /healthz and /readyz for probes (ready once a run has started).
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the latest run snapshot.
//   - GET /v1/runs/{run_id} for the snapshot of a specific run.
package api
