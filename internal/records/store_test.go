package records_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"callwatch/internal/records"
	"callwatch/internal/testsupport"
)

func TestInsertAndFetch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	start := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	record, err := store.Insert(ctx, records.NewCallParams{
		CallID:         "call-abc",
		AgentID:        "agent-7",
		AgentName:      "Dana",
		CustomerNumber: "+15550002222",
		StartTime:      &start,
		DurationSecs:   95,
		RecordingURL:   "https://recordings.example.com/call-abc.mp3",
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("expected record ID to be assigned")
	}
	if record.AnalysisStatus != records.StatusPending {
		t.Fatalf("expected pending analysis, got %s", record.AnalysisStatus)
	}
	if record.AlertStatus != records.StatusPending {
		t.Fatalf("expected pending alert, got %s", record.AlertStatus)
	}
	if record.StartTime == nil || !record.StartTime.Equal(start) {
		t.Fatalf("unexpected start time: %v", record.StartTime)
	}

	fetched, err := store.FindByCallID(ctx, "call-abc")
	if err != nil {
		t.Fatalf("FindByCallID failed: %v", err)
	}
	if fetched == nil || fetched.ID != record.ID {
		t.Fatalf("expected to find inserted record, got %#v", fetched)
	}
}

func TestInsertRejectsDuplicateCallID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.Insert(ctx, records.NewCallParams{CallID: "call-dup"}); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	_, err := store.Insert(ctx, records.NewCallParams{CallID: "call-dup"})
	if !errors.Is(err, records.ErrDuplicateCall) {
		t.Fatalf("expected ErrDuplicateCall, got %v", err)
	}
}

func TestInsertRequiresCallID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Insert(context.Background(), records.NewCallParams{}); err == nil {
		t.Fatal("expected error when call id missing")
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	record, err := store.GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil for missing record, got %#v", record)
	}
}

func TestPendingAnalysisOrdersOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewCall(t, store)
	second := testsupport.NewCall(t, store)
	third := testsupport.NewCall(t, store)

	pending, err := store.PendingAnalysis(ctx, 2)
	if err != nil {
		t.Fatalf("PendingAnalysis failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending records, got %d", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("unexpected ordering: %d, %d", pending[0].ID, pending[1].ID)
	}
	_ = third

	if claimed, err := store.CompareAndSetStatus(ctx, first.ID, records.StageAnalysis, records.StatusPending, records.StatusProcessing); err != nil || !claimed {
		t.Fatalf("claim failed: claimed=%v err=%v", claimed, err)
	}
	pending, err = store.PendingAnalysis(ctx, 10)
	if err != nil {
		t.Fatalf("PendingAnalysis failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected claimed record excluded, got %d pending", len(pending))
	}
}

func TestPendingAlertsRequiresWarningAndSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	flagged := testsupport.NewCall(t, store)
	clean := testsupport.NewCall(t, store)
	nonAgent := testsupport.NewCall(t, store)

	score := 2
	if err := store.CompleteAnalysis(ctx, flagged.ID, records.AnalysisOutcome{
		Score:          &score,
		HasWarning:     true,
		WarningReasons: []string{"pricing_promise"},
		Summary:        "Agent promised an unapproved discount.",
		Sentiment:      records.SentimentNegative,
	}); err != nil {
		t.Fatalf("CompleteAnalysis failed: %v", err)
	}
	goodScore := 5
	if err := store.CompleteAnalysis(ctx, clean.ID, records.AnalysisOutcome{
		Score:     &goodScore,
		Summary:   "Routine billing question.",
		Sentiment: records.SentimentPositive,
	}); err != nil {
		t.Fatalf("CompleteAnalysis failed: %v", err)
	}
	if err := store.MarkNotAgentCall(ctx, nonAgent.ID, []string{"voicemail"}, "Voicemail, no agent."); err != nil {
		t.Fatalf("MarkNotAgentCall failed: %v", err)
	}

	alerts, err := store.PendingAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("PendingAlerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != flagged.ID {
		t.Fatalf("expected only flagged record pending alert, got %#v", alerts)
	}
	if got := alerts[0].WarningReasons(); len(got) != 1 || got[0] != "pricing_promise" {
		t.Fatalf("unexpected warning reasons: %v", got)
	}

	updated, err := store.GetByID(ctx, clean.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.AlertStatus != records.StatusNotNeeded {
		t.Fatalf("clean call should not need alert, got %s", updated.AlertStatus)
	}
}

func TestHealthCountsStatuses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	done := testsupport.NewCall(t, store)
	failed := testsupport.NewCall(t, store)
	testsupport.NewCall(t, store)

	score := 4
	if err := store.CompleteAnalysis(ctx, done.ID, records.AnalysisOutcome{
		Score:      &score,
		HasWarning: true,
		Sentiment:  records.SentimentNeutral,
	}); err != nil {
		t.Fatalf("CompleteAnalysis failed: %v", err)
	}
	if err := store.FailAnalysis(ctx, failed.ID, "model timeout"); err != nil {
		t.Fatalf("FailAnalysis failed: %v", err)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if summary.Total != 3 {
		t.Fatalf("expected 3 records, got %d", summary.Total)
	}
	if summary.AnalysisComplete != 1 || summary.AnalysisFailed != 1 || summary.AnalysisPending != 1 {
		t.Fatalf("unexpected analysis counts: %+v", summary)
	}
	if summary.AlertsPending != 1 {
		t.Fatalf("expected one pending alert, got %+v", summary)
	}
}

func TestListFiltersEitherStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	flagged := testsupport.NewCall(t, store)
	score := 2
	if err := store.CompleteAnalysis(ctx, flagged.ID, records.AnalysisOutcome{
		Score:      &score,
		HasWarning: true,
		Summary:    "Escalation mishandled.",
		Sentiment:  records.SentimentNegative,
	}); err != nil {
		t.Fatalf("CompleteAnalysis failed: %v", err)
	}
	if err := store.MarkAlertSent(ctx, flagged.ID); err != nil {
		t.Fatalf("MarkAlertSent failed: %v", err)
	}
	testsupport.NewCall(t, store)

	all, err := store.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}

	sent, err := store.List(ctx, records.StatusSent, 10)
	if err != nil {
		t.Fatalf("List sent failed: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != flagged.ID {
		t.Fatalf("sent filter returned %d records", len(sent))
	}

	succeeded, err := store.List(ctx, records.StatusSuccess, 10)
	if err != nil {
		t.Fatalf("List success failed: %v", err)
	}
	if len(succeeded) != 1 || succeeded[0].ID != flagged.ID {
		t.Fatalf("success filter returned %d records", len(succeeded))
	}
}
