package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"callwatch/internal/config"
	"callwatch/internal/logging"
	"callwatch/internal/records"
	"callwatch/internal/webhook"
	"callwatch/internal/workflow"
)

// Daemon coordinates the webhook server and the stage workers, and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *records.Store
	workflow *workflow.Manager
	server   *webhook.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
	WebhookAddr  string
}

// New constructs a daemon. The webhook server may be nil when ingress is
// handled elsewhere.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger, wf *workflow.Manager, server *webhook.Server) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "callwatchd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		server:   server,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, recovers interrupted work, and launches
// the webhook server and stage workers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another callwatch daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	// Records left in processing by a crash are owned by nobody; requeue
	// them before the workers start claiming.
	reset, err := d.store.ResetStuckProcessing(runCtx)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("reset stuck records: %w", err)
	}
	if reset > 0 {
		d.logger.Info("requeued interrupted records", logging.Int64("count", reset))
	}

	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.server != nil {
		if err := d.server.Start(runCtx); err != nil {
			d.workflow.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start webhook server: %w", err)
		}
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("callwatch daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down ingress and workers and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.server != nil {
		d.server.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("callwatch daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if d.server != nil {
		status.WebhookAddr = d.server.Addr()
	}
	return status
}
