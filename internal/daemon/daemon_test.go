package daemon_test

import (
	"context"
	"testing"

	"callwatch/internal/config"
	"callwatch/internal/daemon"
	"callwatch/internal/records"
	"callwatch/internal/stage"
	"callwatch/internal/testsupport"
	"callwatch/internal/workflow"
)

type idleWorker struct{ name string }

func (w idleWorker) Name() string                                  { return w.name }
func (w idleWorker) ProcessBatch(ctx context.Context) (int, error) { return 0, nil }
func (w idleWorker) HealthCheck(ctx context.Context) stage.Health  { return stage.Healthy(w.name) }

func newDaemonFixture(t *testing.T) (*config.Config, *records.Store, *daemon.Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workers.PollIntervalSeconds = 1
	store := testsupport.MustOpenStore(t, cfg)

	mgr := workflow.NewManager(cfg, store, nil)
	mgr.Register(idleWorker{name: "analysis"})

	d, err := daemon.New(cfg, store, nil, mgr, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Stop)
	return cfg, store, d
}

func TestDaemonLifecycle(t *testing.T) {
	_, _, d := newDaemonFixture(t)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("status should report running")
	}
	if status.PID <= 0 || status.LockFilePath == "" || status.DatabasePath == "" {
		t.Fatalf("incomplete status: %+v", status)
	}
	if !status.Workflow.Running {
		t.Fatal("workflow should report running")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("status should report stopped")
	}
}

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workers.PollIntervalSeconds = 1
	store := testsupport.MustOpenStore(t, cfg)

	first := workflow.NewManager(cfg, store, nil)
	first.Register(idleWorker{name: "analysis"})
	d1, err := daemon.New(cfg, store, nil, first, nil)
	if err != nil {
		t.Fatalf("New first: %v", err)
	}
	t.Cleanup(d1.Stop)
	if err := d1.Start(context.Background()); err != nil {
		t.Fatalf("Start first: %v", err)
	}

	second := workflow.NewManager(cfg, store, nil)
	second.Register(idleWorker{name: "analysis"})
	d2, err := daemon.New(cfg, store, nil, second, nil)
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	t.Cleanup(d2.Stop)
	if err := d2.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to be rejected")
	}

	d1.Stop()
	if err := d2.Start(context.Background()); err != nil {
		t.Fatalf("Start after release: %v", err)
	}
}

func TestDaemonRequeuesInterruptedRecords(t *testing.T) {
	_, store, d := newDaemonFixture(t)
	ctx := context.Background()

	record := testsupport.NewCall(t, store)
	claimed, err := store.CompareAndSetStatus(ctx, record.ID, records.StageAnalysis, records.StatusPending, records.StatusProcessing)
	if err != nil || !claimed {
		t.Fatalf("claim record: claimed=%v err=%v", claimed, err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.AnalysisStatus != records.StatusPending {
		t.Fatalf("analysis status = %s, want pending after restart recovery", got.AnalysisStatus)
	}
}
