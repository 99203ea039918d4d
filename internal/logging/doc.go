// Package logging builds slog loggers for the daemon and CLI and defines the
// shared attribute helpers and field-name constants used across components.
//
// Console output uses slog's text handler, JSON output the JSON handler; both
// normalize timestamps to UTC RFC3339 under the "ts" key. Components tag their
// loggers via WithComponent so records, stages, and the webhook server are
// distinguishable in a single combined stream.
package logging
