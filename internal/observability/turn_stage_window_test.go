package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe(StageGenerate, 500)
	w.Observe(StageGenerate, 700)
	w.Observe(StageGenerate, 900)
	w.ObserveIndicator("fallback_reply")
	w.ObserveIndicator("fallback_reply")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageGenerate {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageGenerate)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 6000 {
		t.Fatalf("TargetP95MS = %.2f, want 6000", s.TargetP95MS)
	}
	if s.MaxMS != 900 || s.OverTarget != 0 {
		t.Fatalf("MaxMS/OverTarget = %.2f/%d, want 900/0", s.MaxMS, s.OverTarget)
	}
	if got := snap.Indicators["fallback_reply"]; got != 2 || len(snap.Indicators) != 1 {
		t.Fatalf("Indicators = %v, want fallback_reply x2", snap.Indicators)
	}
}

func TestTurnStageWindowCountsSamplesOverBudget(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe(StageClassify, 1)
	w.Observe(StageClassify, 5)
	w.Observe(StageClassify, 9)
	w.Observe("custom_stage", 10)

	snap := w.Snapshot()
	if len(snap.Stages) != 2 || snap.Stages[0].Stage != StageClassify {
		t.Fatalf("Stages = %+v, want classify first", snap.Stages)
	}
	if snap.Stages[0].OverTarget != 2 {
		t.Fatalf("OverTarget = %d, want 2", snap.Stages[0].OverTarget)
	}
	if snap.Stages[1].TargetP95MS != 0 || snap.Stages[1].OverTarget != 0 {
		t.Fatalf("unbudgeted stage = %+v", snap.Stages[1])
	}
}

func TestTurnStageWindowWrapsAround(t *testing.T) {
	w := newTurnStageWindow(2)
	w.Observe(StageClassify, 1)
	w.Observe(StageClassify, 2)
	w.Observe(StageClassify, 3)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 2.5 {
		t.Fatalf("AvgMS = %.2f, want 2.5", s.AvgMS)
	}
}

func TestTurnStageWindowIgnoresInvalidSamples(t *testing.T) {
	w := newTurnStageWindow(4)
	w.Observe("", 10)
	w.Observe(StageClassify, -1)
	w.ObserveIndicator("  ")
	snap := w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot = %+v, want empty", snap)
	}
}

func TestMetricsRecordTurnOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("solace_test", reg)

	m.IncTurn("HIGH")
	m.IncTurn("HIGH")
	m.IncDegraded("storage_write")
	m.IncAlert("delivered")
	m.ObserveTurnStage(StageClassify, 3*time.Millisecond)
	m.ObserveTurnLatency(40 * time.Millisecond)

	if got := testutil.ToFloat64(m.Turns.WithLabelValues("HIGH")); got != 2 {
		t.Fatalf("turns_total{HIGH} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DegradedEvents.WithLabelValues("storage_write")); got != 1 {
		t.Fatalf("degraded_events_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("delivered")); got != 1 {
		t.Fatalf("alerts_total = %v, want 1", got)
	}

	snap := m.SnapshotTurnStages()
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2 (classify, turn_total)", len(snap.Stages))
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncTurn("LOW")
	m.IncDegraded("generation")
	m.ObserveTurnStage(StageGenerate, time.Second)
	if snap := m.SnapshotTurnStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v", snap)
	}
}
