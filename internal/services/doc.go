// Package services defines shared utilities consumed by the pipeline workers
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp record IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures as
//     transient (retryable) or permanent so retry loops behave consistently.
//
// Use these helpers when wiring new worker logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
