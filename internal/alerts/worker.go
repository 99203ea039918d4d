// Package alerts implements the worker that emails alerts for flagged calls.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"callwatch/internal/config"
	"callwatch/internal/logging"
	"callwatch/internal/records"
	"callwatch/internal/retry"
	"callwatch/internal/services"
	"callwatch/internal/services/notify"
	"callwatch/internal/stage"
)

// Worker claims records whose analysis flagged a warning and delivers one
// alert email per record.
type Worker struct {
	store     *records.Store
	notifier  notify.Service
	logger    *slog.Logger
	batchSize int
	policy    retry.Policy
	breaker   *retry.Breaker
}

// NewWorker wires an alert worker from configuration.
func NewWorker(store *records.Store, notifier notify.Service, cfg *config.Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:     store,
		notifier:  notifier,
		logger:    logging.WithComponent(logger, "alert-worker"),
		batchSize: cfg.Workers.BatchSize,
		policy: retry.Policy{
			InitialInterval: retry.DefaultPolicy().InitialInterval,
			MaxInterval:     retry.DefaultPolicy().MaxInterval,
			MaxRetries:      cfg.Workers.MaxRetries,
		},
		breaker: retry.NewBreaker(
			cfg.Workers.BreakerThreshold,
			time.Duration(cfg.Workers.BreakerCooldownSeconds)*time.Second,
		),
	}
}

func (w *Worker) Name() string { return "alerts" }

// HealthCheck reports whether the worker is accepting work.
func (w *Worker) HealthCheck(ctx context.Context) stage.Health {
	if w.breaker.Open() {
		return stage.Unhealthy(w.Name(), "circuit breaker open, cooling down")
	}
	return stage.Healthy(w.Name())
}

// ProcessBatch claims up to one batch of deliverable alerts and sends them.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	if !w.breaker.Allow() {
		w.logger.Warn("skipping batch, circuit breaker open")
		return 0, nil
	}

	pending, err := w.store.PendingAlerts(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending alerts: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	w.logger.Info("processing pending alerts", logging.Int("count", len(pending)))

	sent := 0
	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if !w.breaker.Allow() {
			w.logger.Warn("circuit breaker tripped mid-batch, abandoning remainder")
			return sent, nil
		}
		claimed, err := w.store.CompareAndSetStatus(ctx, record.ID, records.StageAlert, records.StatusPending, records.StatusProcessing)
		if err != nil {
			return sent, fmt.Errorf("claim record %d: %w", record.ID, err)
		}
		if !claimed {
			continue
		}

		// Shutdown cancels the batch context, but a claimed record must still
		// reach a terminal status: delivery and its status writes run
		// detached, and cancellation takes effect between records.
		recordCtx := services.WithRecordID(services.WithStage(context.WithoutCancel(ctx), w.Name()), record.ID)
		recordLog := logging.WithContext(recordCtx, w.logger)
		if err := w.deliver(recordCtx, record); err != nil {
			recordLog.Error("alert delivery failed",
				logging.String(logging.FieldCallID, record.CallID),
				logging.Error(err))
			if failErr := w.store.FailAlert(recordCtx, record.ID, err.Error()); failErr != nil {
				recordLog.Error("record alert failure state", logging.Error(failErr))
			}
			w.breaker.Failure()
			continue
		}
		w.breaker.Success()
		sent++
	}
	return sent, nil
}

// deliver sends one alert. Any non-nil return or panic leaves the record in
// failed, never stuck in processing.
func (w *Worker) deliver(ctx context.Context, record *records.CallRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("alert panic: %v", r)
		}
	}()

	if err := retry.Do(ctx, w.policy, func() error {
		return w.notifier.SendCallAlert(ctx, record)
	}); err != nil {
		return err
	}
	if err := w.store.MarkAlertSent(ctx, record.ID); err != nil {
		return err
	}
	w.logger.Info("alert sent",
		logging.Int64(logging.FieldRecordID, record.ID),
		logging.String(logging.FieldCallID, record.CallID))
	return nil
}

var _ stage.Worker = (*Worker)(nil)
