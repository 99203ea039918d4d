package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"callwatch/internal/config"
)

// Store manages call record persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the records database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the location of the underlying database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const recordColumns = "id, call_id, agent_id, agent_name, customer_number, start_time, end_time, duration_seconds, recording_url, recording_path, transcript_text, analysis_status, overall_score, has_warning, warning_reasons_json, short_summary, customer_sentiment, department, analysis_error, analysis_completed_at, alert_status, alert_error, alert_sent_at, created_at, updated_at"

// Insert persists a freshly ingested call with both stages pending. The
// unique call_id constraint surfaces as ErrDuplicateCall.
func (s *Store) Insert(ctx context.Context, params NewCallParams) (*CallRecord, error) {
	if strings.TrimSpace(params.CallID) == "" {
		return nil, errors.New("call id is required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO call_records (
            call_id, agent_id, agent_name, customer_number,
            start_time, end_time, duration_seconds,
            recording_url, recording_path, transcript_text,
            analysis_status, alert_status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.CallID,
		nullableString(params.AgentID),
		nullableString(params.AgentName),
		nullableString(params.CustomerNumber),
		nullableTime(params.StartTime),
		nullableTime(params.EndTime),
		params.DurationSecs,
		nullableString(params.RecordingURL),
		nullableString(params.RecordingPath),
		nullableString(params.TranscriptText),
		StatusPending,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCall, params.CallID)
		}
		return nil, fmt.Errorf("insert call: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a call record by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*CallRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM call_records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// FindByCallID returns the record for an upstream call identifier, if any.
func (s *Store) FindByCallID(ctx context.Context, callID string) (*CallRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+recordColumns+` FROM call_records WHERE call_id = ? LIMIT 1`,
		callID,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by call id: %w", err)
	}
	return record, nil
}

// PendingAnalysis returns up to limit records awaiting analysis, oldest first.
func (s *Store) PendingAnalysis(ctx context.Context, limit int) ([]*CallRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM call_records
         WHERE analysis_status = ? ORDER BY created_at, id LIMIT ?`,
		StatusPending,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending analysis: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// PendingAlerts returns up to limit records whose analysis flagged a warning
// and whose alert has not yet been delivered, oldest first.
func (s *Store) PendingAlerts(ctx context.Context, limit int) ([]*CallRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM call_records
         WHERE analysis_status = ? AND has_warning = 1 AND alert_status = ?
         ORDER BY created_at, id LIMIT ?`,
		StatusSuccess,
		StatusPending,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending alerts: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// List returns records whose analysis or alert status matches, newest first.
// An empty status returns everything.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]*CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+recordColumns+` FROM call_records ORDER BY created_at DESC, id DESC LIMIT ?`,
			limit,
		)
	} else {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+recordColumns+` FROM call_records
             WHERE analysis_status = ? OR alert_status = ?
             ORDER BY created_at DESC, id DESC LIMIT ?`,
			status,
			status,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Health aggregates record counts for status reporting.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	summary := HealthSummary{}
	rows, err := s.db.QueryContext(ctx, `SELECT analysis_status, COUNT(1) FROM call_records GROUP BY analysis_status`)
	if err != nil {
		return summary, fmt.Errorf("count analysis statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return summary, fmt.Errorf("scan analysis count: %w", err)
		}
		summary.Total += count
		switch Status(status) {
		case StatusPending:
			summary.AnalysisPending = count
		case StatusProcessing:
			summary.AnalysisRunning = count
		case StatusFailed:
			summary.AnalysisFailed = count
		case StatusSuccess:
			summary.AnalysisComplete = count
		case StatusNotAgentCall:
			summary.NonAgentCalls = count
		}
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("iterate analysis counts: %w", err)
	}

	// Every row starts with a pending alert status, so a raw group count
	// would include calls whose analysis never flagged anything. Count only
	// alerts that are actually deliverable.
	err = s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM call_records WHERE analysis_status = ? AND has_warning = 1 AND alert_status = ?`,
		StatusSuccess,
		StatusPending,
	).Scan(&summary.AlertsPending)
	if err != nil {
		return summary, fmt.Errorf("count pending alerts: %w", err)
	}
	err = s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM call_records WHERE alert_status = ?`,
		StatusSent,
	).Scan(&summary.AlertsSent)
	if err != nil {
		return summary, fmt.Errorf("count sent alerts: %w", err)
	}
	err = s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM call_records WHERE alert_status = ?`,
		StatusFailed,
	).Scan(&summary.AlertsFailed)
	if err != nil {
		return summary, fmt.Errorf("count failed alerts: %w", err)
	}

	return summary, nil
}

func collectRecords(rows *sql.Rows) ([]*CallRecord, error) {
	var result []*CallRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return result, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*CallRecord, error) {
	var (
		id              int64
		callID          string
		agentID         sql.NullString
		agentName       sql.NullString
		customerNumber  sql.NullString
		startRaw        sql.NullString
		endRaw          sql.NullString
		duration        sql.NullInt64
		recordingURL    sql.NullString
		recordingPath   sql.NullString
		transcript      sql.NullString
		analysisStatus  string
		overallScore    sql.NullInt64
		hasWarning      sql.NullInt64
		warningReasons  sql.NullString
		shortSummary    sql.NullString
		sentiment       sql.NullString
		department      sql.NullString
		analysisError   sql.NullString
		analysisDoneRaw sql.NullString
		alertStatus     string
		alertError      sql.NullString
		alertSentRaw    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&callID,
		&agentID,
		&agentName,
		&customerNumber,
		&startRaw,
		&endRaw,
		&duration,
		&recordingURL,
		&recordingPath,
		&transcript,
		&analysisStatus,
		&overallScore,
		&hasWarning,
		&warningReasons,
		&shortSummary,
		&sentiment,
		&department,
		&analysisError,
		&analysisDoneRaw,
		&alertStatus,
		&alertError,
		&alertSentRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &CallRecord{
		ID:                 id,
		CallID:             callID,
		AgentID:            agentID.String,
		AgentName:          agentName.String,
		CustomerNumber:     customerNumber.String,
		DurationSecs:       int(duration.Int64),
		RecordingURL:       recordingURL.String,
		RecordingPath:      recordingPath.String,
		TranscriptText:     transcript.String,
		AnalysisStatus:     Status(analysisStatus),
		HasWarning:         hasWarning.Int64 != 0,
		WarningReasonsJSON: warningReasons.String,
		ShortSummary:       shortSummary.String,
		CustomerSentiment:  Sentiment(sentiment.String),
		Department:         department.String,
		AnalysisError:      analysisError.String,
		AlertStatus:        Status(alertStatus),
		AlertError:         alertError.String,
	}
	if overallScore.Valid {
		score := int(overallScore.Int64)
		record.OverallScore = &score
	}

	if start, err := parseTimeString(startRaw.String); err == nil {
		record.StartTime = &start
	}
	if end, err := parseTimeString(endRaw.String); err == nil {
		record.EndTime = &end
	}
	if done, err := parseTimeString(analysisDoneRaw.String); err == nil {
		record.AnalysisCompletedAt = &done
	}
	if sent, err := parseTimeString(alertSentRaw.String); err == nil {
		record.AlertSentAt = &sent
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func encodeWarningReasons(reasons []string) (string, error) {
	if len(reasons) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("marshal warning reasons: %w", err)
	}
	return string(data), nil
}
