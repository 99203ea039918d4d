package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"callwatch/internal/config"
	"callwatch/internal/logging"
	"callwatch/internal/records"
	"callwatch/internal/stage"
)

// Manager drives the registered stage workers. Each worker runs on its own
// goroutine with an interruptible poll loop; Stop cancels the loops and waits
// for in-flight batches to finish.
type Manager struct {
	cfg     *config.Config
	store   *records.Store
	logger  *slog.Logger
	workers []registration

	pollInterval  time.Duration
	errorInterval time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

type registration struct {
	worker stage.Worker
	logger *slog.Logger
}

// NewManager constructs a manager over the given store. Workers are attached
// with Register before Start.
func NewManager(cfg *config.Config, store *records.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:           cfg,
		store:         store,
		logger:        logger,
		pollInterval:  time.Duration(cfg.Workers.PollIntervalSeconds) * time.Second,
		errorInterval: time.Duration(cfg.Workers.ErrorRetryIntervalSeconds) * time.Second,
	}
}

// Register attaches a worker to the manager. It must be called before Start.
func (m *Manager) Register(worker stage.Worker) {
	if worker == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, registration{
		worker: worker,
		logger: logging.WithComponent(m.logger, "workflow-"+worker.Name()),
	})
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.workers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow workers not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	workers := make([]registration, len(m.workers))
	copy(workers, m.workers)
	m.wg.Add(len(workers))
	m.mu.Unlock()

	for _, reg := range workers {
		go m.runWorker(runCtx, reg)
	}
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether Start has been called without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) runWorker(ctx context.Context, reg registration) {
	defer m.wg.Done()
	logger := reg.logger

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := reg.worker.ProcessBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("worker batch failed", logging.Error(err))
			m.sleep(ctx, m.errorInterval)
			continue
		}
		if processed > 0 {
			logger.Debug("worker batch complete", logging.Int("processed", processed))
			// More work may be queued behind the batch limit; poll again
			// immediately.
			continue
		}
		m.sleep(ctx, m.pollInterval)
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
