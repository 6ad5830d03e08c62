package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecording(t *testing.T) {
	metrics := NewMetrics()

	metrics.IncCycle("ok")
	metrics.IncClassification("new")
	metrics.IncDelivery("ops", "success")
	metrics.ObserveDeliveryDuration("ops", 120*time.Millisecond)
	metrics.IncInflight()
	metrics.DecInflight()
	metrics.SetFetchedProblems(7)

	if got := testutil.ToFloat64(metrics.cyclesTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("cyclesTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.classificationsTotal.WithLabelValues("new")); got != 1 {
		t.Errorf("classificationsTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveriesTotal.WithLabelValues("ops", "success")); got != 1 {
		t.Errorf("deliveriesTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveriesInflight); got != 0 {
		t.Errorf("deliveriesInflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.fetchedProblems); got != 7 {
		t.Errorf("fetchedProblems = %v, want 7", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics

	metrics.IncCycle("ok")
	metrics.IncClassification("new")
	metrics.IncDelivery("ops", "failed")
	metrics.ObserveDeliveryDuration("ops", time.Second)
	metrics.IncInflight()
	metrics.DecInflight()
	metrics.SetFetchedProblems(1)

	if metrics.Handler() == nil {
		t.Fatal("nil metrics should still return a handler")
	}
}
