package records

import (
	"encoding/json"
	"strings"
	"time"
)

// Stage identifies one pipeline phase with its own status column and worker.
type Stage string

const (
	StageAnalysis Stage = "analysis"
	StageAlert    Stage = "alert"
)

// Status represents a lifecycle state within a stage.
//
// Analysis statuses: pending, processing, success, not_agent_call, failed.
// Alert statuses: not_needed, pending, processing, sent, failed. The
// "processing" value is the transient single-owner marker a worker sets before
// starting work; it never survives a worker iteration.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusSuccess      Status = "success"
	StatusNotAgentCall Status = "not_agent_call"
	StatusFailed       Status = "failed"
	StatusNotNeeded    Status = "not_needed"
	StatusSent         Status = "sent"
)

var analysisStatuses = map[Status]struct{}{
	StatusPending:      {},
	StatusProcessing:   {},
	StatusSuccess:      {},
	StatusNotAgentCall: {},
	StatusFailed:       {},
}

var alertStatuses = map[Status]struct{}{
	StatusNotNeeded:  {},
	StatusPending:    {},
	StatusProcessing: {},
	StatusSent:       {},
	StatusFailed:     {},
}

// ValidStatus reports whether status is a known value for the given stage.
func ValidStatus(stage Stage, status Status) bool {
	switch stage {
	case StageAnalysis:
		_, ok := analysisStatuses[status]
		return ok
	case StageAlert:
		_, ok := alertStatuses[status]
		return ok
	default:
		return false
	}
}

// ParseStatus converts a string into a known Status for either stage.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	if _, ok := analysisStatuses[normalized]; ok {
		return normalized, true
	}
	if _, ok := alertStatuses[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// Sentiment is the fixed customer-sentiment enum produced by analysis.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// CoerceSentiment maps arbitrary model output onto the fixed enum, defaulting
// to neutral.
func CoerceSentiment(value string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(value))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// CallRecord is one persisted row per detected call.
type CallRecord struct {
	ID             int64
	CallID         string
	AgentID        string
	AgentName      string
	CustomerNumber string
	StartTime      *time.Time
	EndTime        *time.Time
	DurationSecs   int
	RecordingURL   string
	RecordingPath  string
	TranscriptText string

	AnalysisStatus      Status
	OverallScore        *int
	HasWarning          bool
	WarningReasonsJSON  string
	ShortSummary        string
	CustomerSentiment   Sentiment
	Department          string
	AnalysisError       string
	AnalysisCompletedAt *time.Time

	AlertStatus Status
	AlertError  string
	AlertSentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WarningReasons decodes the stored warning tag list. Malformed or non-list
// payloads yield an empty slice rather than an error.
func (r *CallRecord) WarningReasons() []string {
	raw := strings.TrimSpace(r.WarningReasonsJSON)
	if raw == "" {
		return nil
	}
	var reasons []string
	if err := json.Unmarshal([]byte(raw), &reasons); err != nil {
		return nil
	}
	return reasons
}

// StatusFor returns the record's status for the given stage.
func (r *CallRecord) StatusFor(stage Stage) Status {
	if stage == StageAlert {
		return r.AlertStatus
	}
	return r.AnalysisStatus
}

// NewCallParams carries the fields the webhook ingress extracts for insertion.
type NewCallParams struct {
	CallID         string
	AgentID        string
	AgentName      string
	CustomerNumber string
	StartTime      *time.Time
	EndTime        *time.Time
	DurationSecs   int
	RecordingURL   string
	RecordingPath  string
	TranscriptText string
}

// AnalysisOutcome is the normalized result a successful analysis persists.
type AnalysisOutcome struct {
	Score          *int
	HasWarning     bool
	WarningReasons []string
	Summary        string
	Sentiment      Sentiment
	Department     string
}

// HealthSummary describes aggregated record counts per key lifecycle state.
type HealthSummary struct {
	Total            int
	AnalysisPending  int
	AnalysisRunning  int
	AnalysisFailed   int
	AnalysisComplete int
	NonAgentCalls    int
	AlertsPending    int
	AlertsSent       int
	AlertsFailed     int
}
