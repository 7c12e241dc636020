package crashmetrics

import (
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rgoodwin/crash-telemetry-service/internal/fatalevent"
)

// TestRecord_IncrementsByExactlyOne verifies each Record call adds exactly 1
// to the counter for the event's label set; N identical calls yield N.
func TestRecord_IncrementsByExactlyOne(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg, "crash-telemetry-service", "instance-1")

	ev := fatalevent.FromPanic("boom", nil)
	for i := 1; i <= 3; i++ {
		rec.Record(ev)
		got := testutil.ToFloat64(rec.crashesTotal.WithLabelValues(
			"uncaughtException", "crash-telemetry-service", "instance-1"))
		if got != float64(i) {
			t.Errorf("after %d records counter = %v, want %d", i, got, i)
		}
	}
}

// TestRecord_SetsLastExitGauge verifies the gauge carries the event time.
func TestRecord_SetsLastExitGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg, "svc", "i-1")

	ev := fatalevent.FromSignal(syscall.SIGTERM)
	rec.Record(ev)

	got := testutil.ToFloat64(rec.lastExitTimestamp.WithLabelValues("SIGTERM", "svc", "i-1"))
	want := float64(ev.OccurredAt.Unix())
	if got != want {
		t.Errorf("lastExitTimestamp = %v, want %v", got, want)
	}
	if time.Since(time.Unix(int64(got), 0)) > time.Minute {
		t.Errorf("lastExitTimestamp %v is not recent", got)
	}
}

// TestRecord_SeparateReasonsSeparateSeries verifies reasons do not share a series.
func TestRecord_SeparateReasonsSeparateSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg, "svc", "i-1")

	rec.Record(fatalevent.FromPanic("a", nil))
	rec.Record(fatalevent.FromBackgroundError(nil))
	rec.Record(fatalevent.FromBackgroundError(nil))

	if got := testutil.ToFloat64(rec.crashesTotal.WithLabelValues("uncaughtException", "svc", "i-1")); got != 1 {
		t.Errorf("uncaughtException counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.crashesTotal.WithLabelValues("unhandledRejection", "svc", "i-1")); got != 2 {
		t.Errorf("unhandledRejection counter = %v, want 2", got)
	}
}
