// Package vocab defines the shared vocabulary types for the CEFR dataset
// generator: normalized items, enrichment records, and the collaborator
// interfaces (providers, analyzers, clocks) the pipeline depends on.
package vocab
