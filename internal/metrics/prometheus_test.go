package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OpportunitiesDetected.Inc()
	prom.Metrics.OpportunitiesRejected.Inc()
	prom.Metrics.OrdersSubmitted.Inc()
	prom.Metrics.OrdersFailed.Inc()
	prom.Metrics.StopLossTriggered.Inc()
	prom.Metrics.FeedDropped.Add(3)
	prom.Metrics.IntentDropped.Inc()
	prom.Metrics.Resyncs.Inc()
	prom.Metrics.InvalidBooks.Inc()

	assertCounter(t, prom.oppsDetected, 1)
	assertCounter(t, prom.oppsRejected, 1)
	assertCounter(t, prom.ordersSubmit, 1)
	assertCounter(t, prom.ordersFailed, 1)
	assertCounter(t, prom.stopLoss, 1)
	assertCounter(t, prom.feedDropped, 3)
	assertCounter(t, prom.intentDropped, 1)
	assertCounter(t, prom.resyncs, 1)
	assertCounter(t, prom.invalidBooks, 1)
}

func TestAddIgnoresNegativeDelta(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.FeedDropped.Add(-1)
	assertCounter(t, prom.feedDropped, 0)
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
