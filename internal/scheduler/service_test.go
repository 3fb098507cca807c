package scheduler

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/restock-pipeline/internal/pipeline"
	"github.com/angelmondragon/restock-pipeline/pkg/enums"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"github.com/angelmondragon/restock-pipeline/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type scriptedRunner struct {
	calls []enums.Stage
	fail  map[enums.Stage]error
}

func (r *scriptedRunner) Run(_ context.Context, stage enums.Stage, date string) (*pipeline.Report, error) {
	r.calls = append(r.calls, stage)
	if err := r.fail[stage]; err != nil {
		return nil, err
	}
	return &pipeline.Report{RunID: "run-" + string(stage), Stage: stage, Date: date}, nil
}

type harness struct {
	svc    *Service
	runner *scriptedRunner
	lock   *fakeLock
	store  *memRedis
	ledger *Ledger
	reg    *prometheus.Registry
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{
		runner: &scriptedRunner{fail: map[enums.Stage]error{}},
		lock:   &fakeLock{},
		store:  newMemRedis(),
		reg:    prometheus.NewRegistry(),
	}
	var err error
	h.ledger, err = NewLedger(h.store, time.Hour)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	loc := time.FixedZone("UTC+1", 3600)
	h.svc, err = NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: PipelineRegistry(h.runner),
		Lock:     h.lock,
		Ledger:   h.ledger,
		Metrics:  metrics.NewJobMetrics(h.reg),
		RunHour:  22,
		Location: loc,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc.now = func() time.Time { return now }
	return h
}

// 22:30 on 2025-06-01 at UTC+1.
var dueTime = time.Date(2025, 6, 1, 21, 30, 0, 0, time.UTC)

func expectStages(t *testing.T, got []enums.Stage, want ...enums.Stage) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected stages %v, got %v", want, got)
	}
}

func ledgerEntries(t *testing.T, h *harness, date string) []Entry {
	t.Helper()
	entries, err := h.ledger.Entries(context.Background(), date)
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	return entries
}

func TestDueDate(t *testing.T) {
	h := newHarness(t, dueTime)
	date, ok := h.svc.DueDate(dueTime)
	if !ok || date != "2025-06-01" {
		t.Fatalf("expected 2025-06-01 due, got %q ok=%v", date, ok)
	}

	if _, ok := h.svc.DueDate(time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)); ok {
		t.Fatalf("21:00 local is before the run hour")
	}
}

func TestRunCycleBeforeRunHourDoesNothing(t *testing.T) {
	h := newHarness(t, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	if err := h.svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	expectStages(t, h.runner.calls)
	if h.lock.releases != 0 {
		t.Fatalf("lock should not be touched, got %d releases", h.lock.releases)
	}
}

func TestRunCycleRunsStagesInOrderOnce(t *testing.T) {
	h := newHarness(t, dueTime)
	ctx := context.Background()
	if err := h.svc.runCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	expectStages(t, h.runner.calls, enums.StageGenerate, enums.StageAggregate, enums.StageUpload)
	if h.lock.releases != 1 {
		t.Fatalf("expected one release, got %d", h.lock.releases)
	}

	entries := ledgerEntries(t, h, "2025-06-01")
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %+v", entries)
	}
	for _, e := range entries {
		if e.Status != enums.RunStatusSucceeded || e.RunID != "run-"+string(e.Stage) {
			t.Fatalf("unexpected entry %+v", e)
		}
	}

	// a later tick on the same date has nothing left to do
	if err := h.svc.runCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(h.runner.calls) != 3 {
		t.Fatalf("stages re-ran: %v", h.runner.calls)
	}
	if got := jobCounter(t, h.reg, "restock_job_success_total", "upload"); got != 1 {
		t.Fatalf("expected 1 upload success, got %v", got)
	}
}

func TestRunCycleStopsAtFirstFailureAndResumes(t *testing.T) {
	h := newHarness(t, dueTime)
	ctx := context.Background()
	h.runner.fail[enums.StageAggregate] = pkgerrors.New(pkgerrors.CodePartitionIO, "read partition")

	err := h.svc.runCycle(ctx)
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodePartitionIO {
		t.Fatalf("expected PARTITION_IO, got %v", err)
	}
	expectStages(t, h.runner.calls, enums.StageGenerate, enums.StageAggregate)

	entries := ledgerEntries(t, h, "2025-06-01")
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %+v", entries)
	}
	if entries[1].Status != enums.RunStatusFailed || entries[1].Code != "PARTITION_IO" {
		t.Fatalf("unexpected failure entry %+v", entries[1])
	}
	if got := jobCounter(t, h.reg, "restock_job_failure_total", "aggregate"); got != 1 {
		t.Fatalf("expected 1 aggregate failure, got %v", got)
	}

	delete(h.runner.fail, enums.StageAggregate)
	h.runner.calls = nil
	if err := h.svc.runCycle(ctx); err != nil {
		t.Fatalf("resume cycle: %v", err)
	}
	expectStages(t, h.runner.calls, enums.StageAggregate, enums.StageUpload)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	h := newHarness(t, dueTime)
	h.lock.acquired = true
	if err := h.svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	expectStages(t, h.runner.calls)
}

func TestRunCycleSurfacesLedgerWriteFailure(t *testing.T) {
	h := newHarness(t, dueTime)
	h.store.hsetErr = errors.New("redis down")
	err := h.svc.runCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "write ledger") {
		t.Fatalf("expected ledger write error, got %v", err)
	}
	expectStages(t, h.runner.calls, enums.StageGenerate)
	if h.lock.acquired {
		t.Fatalf("lock must be released after failure")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewServiceValidates(t *testing.T) {
	ledger, err := NewLedger(newMemRedis(), 0)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	tests := []struct {
		name   string
		params ServiceParams
	}{
		{name: "no logger", params: ServiceParams{Lock: &fakeLock{}, Ledger: ledger}},
		{name: "no lock", params: ServiceParams{Logger: logger.Nop(), Ledger: ledger}},
		{name: "no ledger", params: ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}}},
		{name: "bad run hour", params: ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}, Ledger: ledger, RunHour: 24}},
	}
	for _, tt := range tests {
		if _, err := NewService(tt.params); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func jobCounter(t *testing.T, reg *prometheus.Registry, name, job string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "job" && l.GetValue() == job {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
