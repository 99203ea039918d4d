package records

import (
	"context"
	"fmt"
	"time"
)

// CompareAndSetStatus atomically moves a record's stage status from expected
// to next. It returns true only when this caller won the transition; a false
// result means another worker already claimed the record or its state moved on.
func (s *Store) CompareAndSetStatus(ctx context.Context, id int64, stage Stage, expected, next Status) (bool, error) {
	if !ValidStatus(stage, expected) || !ValidStatus(stage, next) {
		return false, fmt.Errorf("invalid %s transition %s -> %s", stage, expected, next)
	}
	column := statusColumn(stage)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE call_records SET `+column+` = ?, updated_at = ? WHERE id = ? AND `+column+` = ?`,
		next,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		expected,
	)
	if err != nil {
		return false, fmt.Errorf("compare and set %s status: %w", stage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// CompleteAnalysis persists a successful analysis outcome and derives the
// alert status in the same update: warnings queue an alert, clean calls need
// none.
func (s *Store) CompleteAnalysis(ctx context.Context, id int64, outcome AnalysisOutcome) error {
	reasonsJSON, err := encodeWarningReasons(outcome.WarningReasons)
	if err != nil {
		return err
	}
	alertStatus := StatusNotNeeded
	if outcome.HasWarning {
		alertStatus = StatusPending
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var score any
	if outcome.Score != nil {
		score = *outcome.Score
	}

	if _, err := s.execWithRetry(
		ctx,
		`UPDATE call_records SET
            analysis_status = ?, overall_score = ?, has_warning = ?,
            warning_reasons_json = ?, short_summary = ?, customer_sentiment = ?,
            department = ?, analysis_error = NULL, analysis_completed_at = ?,
            alert_status = ?, updated_at = ?
         WHERE id = ?`,
		StatusSuccess,
		score,
		boolToInt(outcome.HasWarning),
		reasonsJSON,
		nullableString(outcome.Summary),
		string(outcome.Sentiment),
		nullableString(outcome.Department),
		now,
		alertStatus,
		now,
		id,
	); err != nil {
		return fmt.Errorf("complete analysis: %w", err)
	}
	return nil
}

// MarkNotAgentCall records that analysis determined the call is not an agent
// conversation. No alert will ever be sent for it.
func (s *Store) MarkNotAgentCall(ctx context.Context, id int64, reasons []string, summary string) error {
	reasonsJSON, err := encodeWarningReasons(reasons)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE call_records SET
            analysis_status = ?, overall_score = NULL, has_warning = 0,
            warning_reasons_json = ?, short_summary = ?, analysis_error = NULL,
            analysis_completed_at = ?, alert_status = ?, updated_at = ?
         WHERE id = ?`,
		StatusNotAgentCall,
		reasonsJSON,
		nullableString(summary),
		now,
		StatusNotNeeded,
		now,
		id,
	); err != nil {
		return fmt.Errorf("mark not agent call: %w", err)
	}
	return nil
}

// FailAnalysis marks a record's analysis as failed with the given message.
func (s *Store) FailAnalysis(ctx context.Context, id int64, message string) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE call_records SET analysis_status = ?, analysis_error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("fail analysis: %w", err)
	}
	return nil
}

// MarkAlertSent records a successful alert delivery.
func (s *Store) MarkAlertSent(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE call_records SET alert_status = ?, alert_error = NULL, alert_sent_at = ?, updated_at = ? WHERE id = ?`,
		StatusSent,
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return nil
}

// FailAlert marks a record's alert delivery as failed with the given message.
func (s *Store) FailAlert(ctx context.Context, id int64, message string) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE call_records SET alert_status = ?, alert_error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("fail alert: %w", err)
	}
	return nil
}

// RequeueAnalysis moves failed analyses back to pending. With no ids given it
// requeues every failed record; otherwise only the named records, and only
// those currently failed.
func (s *Store) RequeueAnalysis(ctx context.Context, ids ...int64) (int64, error) {
	return s.requeueStage(ctx, StageAnalysis, ids)
}

// RequeueAlerts moves failed alerts back to pending so the alert worker picks
// them up again.
func (s *Store) RequeueAlerts(ctx context.Context, ids ...int64) (int64, error) {
	return s.requeueStage(ctx, StageAlert, ids)
}

func (s *Store) requeueStage(ctx context.Context, stage Stage, ids []int64) (int64, error) {
	column := statusColumn(stage)
	errColumn := "analysis_error"
	if stage == StageAlert {
		errColumn = "alert_error"
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE call_records SET `+column+` = ?, `+errColumn+` = NULL, updated_at = ? WHERE `+column+` = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("requeue failed %s: %w", stage, err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE call_records SET `+column+` = ?, `+errColumn+` = NULL, updated_at = ?
         WHERE `+column+` = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue selected %s: %w", stage, err)
	}
	return res.RowsAffected()
}

// Reanalyze wipes a record's analysis outcome and returns both stages to
// pending, regardless of the current outcome. This is an explicit operator
// action; records mid-analysis are left alone and the call reports false.
func (s *Store) Reanalyze(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE call_records SET
            analysis_status = ?,
            overall_score = NULL,
            has_warning = 0,
            warning_reasons_json = NULL,
            short_summary = NULL,
            customer_sentiment = NULL,
            department = NULL,
            analysis_error = NULL,
            analysis_completed_at = NULL,
            alert_status = ?,
            alert_error = NULL,
            alert_sent_at = NULL,
            updated_at = ?
         WHERE id = ? AND analysis_status <> ? AND alert_status <> ?`,
		StatusPending,
		StatusPending,
		now,
		id,
		StatusProcessing,
		StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("reanalyze record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// ResetStuckProcessing returns records left in a transient processing state
// (for example after a crash) to pending so workers reclaim them on startup.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE call_records SET
            analysis_status = CASE analysis_status WHEN ? THEN ? ELSE analysis_status END,
            alert_status = CASE alert_status WHEN ? THEN ? ELSE alert_status END,
            updated_at = ?
         WHERE analysis_status = ? OR alert_status = ?`,
		StatusProcessing, StatusPending,
		StatusProcessing, StatusPending,
		now,
		StatusProcessing,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck records: %w", err)
	}
	return res.RowsAffected()
}

func statusColumn(stage Stage) string {
	if stage == StageAlert {
		return "alert_status"
	}
	return "analysis_status"
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
