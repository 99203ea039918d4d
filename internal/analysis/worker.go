// Package analysis implements the worker that turns pending call records
// into scored analyses.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callwatch/internal/config"
	"callwatch/internal/logging"
	"callwatch/internal/records"
	"callwatch/internal/retry"
	"callwatch/internal/services"
	"callwatch/internal/services/analyzer"
	"callwatch/internal/stage"
)

// Analyzer is the model capability the worker drives.
type Analyzer interface {
	AnalyzeAudio(ctx context.Context, path, agentName string) (analyzer.Result, error)
	AnalyzeTranscript(ctx context.Context, transcript, agentName string) (analyzer.Result, error)
}

// Fetcher stages a record's recording on local disk.
type Fetcher interface {
	Fetch(ctx context.Context, localPath, recordingURL string) (string, func(), error)
}

// Worker claims pending records, obtains a verdict from the analyzer, and
// persists the outcome.
type Worker struct {
	store     *records.Store
	analyzer  Analyzer
	fetcher   Fetcher
	logger    *slog.Logger
	batchSize int
	shortCall time.Duration
	policy    retry.Policy
	breaker   *retry.Breaker
}

// NewWorker wires an analysis worker from configuration.
func NewWorker(store *records.Store, az Analyzer, fetcher Fetcher, cfg *config.Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:     store,
		analyzer:  az,
		fetcher:   fetcher,
		logger:    logging.WithComponent(logger, "analysis-worker"),
		batchSize: cfg.Workers.BatchSize,
		shortCall: time.Duration(cfg.Workers.ShortCallSeconds) * time.Second,
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

func (w *Worker) Name() string { return "analysis" }

// HealthCheck reports whether the worker is accepting work.
func (w *Worker) HealthCheck(ctx context.Context) stage.Health {
	if w.breaker.Open() {
		return stage.Unhealthy(w.Name(), "circuit breaker open, cooling down")
	}
	return stage.Healthy(w.Name())
}

// ProcessBatch claims up to one batch of pending records and analyzes them.
// The returned count covers records whose outcome was persisted, including
// non-agent verdicts.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	if !w.breaker.Allow() {
		w.logger.Warn("skipping batch, circuit breaker open")
		return 0, nil
	}

	pending, err := w.store.PendingAnalysis(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending analysis: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	w.logger.Info("processing pending analyses", logging.Int("count", len(pending)))

	processed := 0
	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if !w.breaker.Allow() {
			w.logger.Warn("circuit breaker tripped mid-batch, abandoning remainder")
			return processed, nil
		}
		claimed, err := w.store.CompareAndSetStatus(ctx, record.ID, records.StageAnalysis, records.StatusPending, records.StatusProcessing)
		if err != nil {
			return processed, fmt.Errorf("claim record %d: %w", record.ID, err)
		}
		if !claimed {
			continue
		}

		// Shutdown cancels the batch context, but a claimed record must still
		// reach a terminal status: the unit of work and its status writes run
		// detached, and cancellation takes effect between records.
		recordCtx := services.WithRecordID(services.WithStage(context.WithoutCancel(ctx), w.Name()), record.ID)
		recordLog := logging.WithContext(recordCtx, w.logger)
		if err := w.processRecord(recordCtx, record); err != nil {
			recordLog.Error("analysis failed",
				logging.String(logging.FieldCallID, record.CallID),
				logging.Error(err))
			if failErr := w.store.FailAnalysis(recordCtx, record.ID, err.Error()); failErr != nil {
				recordLog.Error("record analysis failure state", logging.Error(failErr))
			}
			w.breaker.Failure()
			continue
		}
		w.breaker.Success()
		processed++
	}
	return processed, nil
}

// processRecord runs analysis for one claimed record. Any non-nil return or
// panic leaves the record in failed, never stuck in processing.
func (w *Worker) processRecord(ctx context.Context, record *records.CallRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panic: %v", r)
		}
	}()

	result, err := w.obtainVerdict(ctx, record)
	if err != nil {
		return err
	}

	switch {
	case result.ParseFailed:
		w.logger.Warn("analyzer output unparseable, marking non-agent call",
			logging.Int64(logging.FieldRecordID, record.ID))
		return w.store.MarkNotAgentCall(ctx, record.ID, result.WarningReasons, result.Summary)
	case !result.IsAgentCall:
		return w.store.MarkNotAgentCall(ctx, record.ID, result.WarningReasons, result.Summary)
	case w.shortCall > 0 && time.Duration(record.DurationSecs)*time.Second < w.shortCall:
		// Very short calls are non-interactions even when the model scored
		// them; the score is discarded.
		return w.store.MarkNotAgentCall(ctx, record.ID, []string{"short_call"}, result.Summary)
	}

	score := result.Score
	outcome := records.AnalysisOutcome{
		Score:          &score,
		HasWarning:     result.HasWarning,
		WarningReasons: result.WarningReasons,
		Summary:        result.Summary,
		Sentiment:      records.CoerceSentiment(result.Sentiment),
		Department:     result.Department,
	}
	if err := w.store.CompleteAnalysis(ctx, record.ID, outcome); err != nil {
		return err
	}
	w.logger.Info("analysis complete",
		logging.Int64(logging.FieldRecordID, record.ID),
		logging.String(logging.FieldCallID, record.CallID),
		logging.Int("score", score),
		logging.Bool("has_warning", result.HasWarning))
	return nil
}

// obtainVerdict picks the richest available input for the record: a staged
// recording when one exists, the transcript otherwise.
func (w *Worker) obtainVerdict(ctx context.Context, record *records.CallRecord) (analyzer.Result, error) {
	hasAudio := strings.TrimSpace(record.RecordingPath) != "" || strings.TrimSpace(record.RecordingURL) != ""
	hasTranscript := strings.TrimSpace(record.TranscriptText) != ""

	if hasAudio {
		result, err := w.analyzeAudio(ctx, record)
		if err == nil {
			return result, nil
		}
		// A recording that is gone for good should not discard the call when
		// a transcript can still be analyzed.
		if hasTranscript && !services.IsTransient(err) {
			w.logger.Warn("recording unavailable, falling back to transcript",
				logging.Int64(logging.FieldRecordID, record.ID),
				logging.Error(err))
			return w.analyzeTranscript(ctx, record)
		}
		return analyzer.Result{}, err
	}
	if hasTranscript {
		return w.analyzeTranscript(ctx, record)
	}
	return analyzer.Result{}, services.Wrap(services.ErrValidation, w.Name(), "obtain verdict",
		"record has neither recording nor transcript", nil)
}

func (w *Worker) analyzeAudio(ctx context.Context, record *records.CallRecord) (analyzer.Result, error) {
	var result analyzer.Result
	err := retry.Do(ctx, w.policy, func() error {
		path, cleanup, err := w.fetcher.Fetch(ctx, record.RecordingPath, record.RecordingURL)
		if err != nil {
			return err
		}
		defer cleanup()
		verdict, err := w.analyzer.AnalyzeAudio(ctx, path, record.AgentName)
		if err != nil {
			return err
		}
		result = verdict
		return nil
	})
	if err != nil {
		return analyzer.Result{}, err
	}
	return result, nil
}

func (w *Worker) analyzeTranscript(ctx context.Context, record *records.CallRecord) (analyzer.Result, error) {
	var result analyzer.Result
	err := retry.Do(ctx, w.policy, func() error {
		verdict, err := w.analyzer.AnalyzeTranscript(ctx, record.TranscriptText, record.AgentName)
		if err != nil {
			return err
		}
		result = verdict
		return nil
	})
	if err != nil {
		return analyzer.Result{}, err
	}
	return result, nil
}

var _ stage.Worker = (*Worker)(nil)
