// Package stage defines the contract between the workflow manager and the
// pipeline workers.
package stage

import "context"

// Worker describes one polling worker the workflow manager drives. Each call
// to ProcessBatch claims and handles up to one batch of records, returning
// how many were processed.
type Worker interface {
	Name() string
	ProcessBatch(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) Health
}

// Health summarizes the readiness of a pipeline worker.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
