package workflow

import (
	"context"

	"callwatch/internal/logging"
	"callwatch/internal/records"
	"callwatch/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	LastError    string
	Records      records.HealthSummary
	WorkerHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	workers := make([]registration, len(m.workers))
	copy(workers, m.workers)
	m.mu.RUnlock()

	summary := StatusSummary{Running: running}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}

	counts, err := m.store.Health(ctx)
	if err != nil {
		m.logger.Warn("failed to read record counts", logging.Error(err))
	} else {
		summary.Records = counts
	}

	summary.WorkerHealth = make(map[string]stage.Health, len(workers))
	for _, reg := range workers {
		summary.WorkerHealth[reg.worker.Name()] = reg.worker.HealthCheck(ctx)
	}
	return summary
}
