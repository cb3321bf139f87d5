package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("node-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordConnect("tcp", 3*time.Millisecond, true)
	RecordRetry("tcp", ReasonRefused)

	before := testutil.ToFloat64(accepts.WithLabelValues("metrics-test", OutcomeDispatched))
	RecordAccept("metrics-test", OutcomeDispatched)
	if got := testutil.ToFloat64(accepts.WithLabelValues("metrics-test", OutcomeDispatched)); got != before+1 {
		t.Fatalf("accepts: got %v want %v", got, before+1)
	}
}

func TestActiveConnectionGaugeTracksOpenClose(t *testing.T) {
	ConnOpened("gauge-test")
	ConnOpened("gauge-test")
	ConnClosed("gauge-test")
	if got := testutil.ToFloat64(activeConns.WithLabelValues("gauge-test")); got != 1 {
		t.Fatalf("active connections: got %v want 1", got)
	}
	ConnClosed("gauge-test")
}
