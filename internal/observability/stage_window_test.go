package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageGenerate, 500)
	w.Observe(StageGenerate, 700)
	w.Observe(StageGenerate, 900)
	w.Observe("", 10)
	w.Observe(StageRoute, -1)
	w.ObserveIndicator("backend_error")
	w.ObserveIndicator("backend_error")
	w.ObserveIndicator("  ")

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
	if s.TargetP95MS != 8000 {
		t.Fatalf("TargetP95MS = %.2f, want 8000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want one backend_error with count 2", snap.Indicators)
	}
}

func TestStageWindowWrapsAtCapacity(t *testing.T) {
	w := newStageWindow(3)
	for _, v := range []float64{1, 2, 3, 100, 200} {
		w.Observe(StageRoute, v)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.P50MS != 100 {
		t.Fatalf("P50MS = %.2f, want 100 (oldest samples evicted)", s.P50MS)
	}

	w.Reset()
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) after Reset = %d, want 0", got)
	}
}

func TestMetricsObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry("agentforge_test", reg, reg)

	m.ObserveRequest("PromptOptimizerAgent", "ok", 120*time.Millisecond)
	m.ObserveRequest("PromptOptimizerAgent", "ok", 80*time.Millisecond)
	m.ObserveBackendError("ollama")
	m.ObserveIndexWriteFailure()
	m.ObserveTraceDrop()

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("PromptOptimizerAgent", "ok")); got != 2 {
		t.Fatalf("requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BackendErrors.WithLabelValues("ollama")); got != 1 {
		t.Fatalf("backend_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TraceDrops); got != 1 {
		t.Fatalf("trace_drops_total = %v, want 1", got)
	}
	snap := m.SnapshotStages()
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != StageTotal || snap.Stages[0].Samples != 2 {
		t.Fatalf("stages = %+v, want request_total with 2 samples", snap.Stages)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("x", "ok", time.Second)
	m.ObserveBackendError("x")
	m.ObserveStage(StageRoute, time.Millisecond)
	m.ObserveIndicator("x")
	m.ObserveTraceDrop()
	m.ObserveIndexWriteFailure()
	m.ResetStages()
	if snap := m.SnapshotStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v", snap)
	}
	if m.Handler() == nil {
		t.Fatalf("nil metrics handler should fall back to the default handler")
	}
}
