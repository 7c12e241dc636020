package crashmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rgoodwin/crash-telemetry-service/internal/fatalevent"
)

// Recorder mutates the crash metrics for a fatal event. Pure in-memory, no
// I/O, never fails: the reason label set is the fixed four-value enum, so
// cardinality cannot blow up.
type Recorder struct {
	service  string
	instance string

	// Crash count by reason. Watch for: any nonzero rate() = instances dying.
	crashesTotal *prometheus.CounterVec

	// Unix time of the last exit per reason. Watch for: recent restarts, crash loops.
	lastExitTimestamp *prometheus.GaugeVec
}

// NewRecorder registers the crash metrics on reg and returns a Recorder
// labelling them with the service/instance identity.
func NewRecorder(reg prometheus.Registerer, service, instance string) *Recorder {
	r := &Recorder{
		service:  service,
		instance: instance,
		crashesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processCrashesTotal",
				Help: "Total number of fatal process exits by reason",
			},
			[]string{"reason", "service", "instance"},
		),
		lastExitTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "processLastExitTimestampSeconds",
				Help: "Unix timestamp of the most recent fatal exit by reason",
			},
			[]string{"reason", "service", "instance"},
		),
	}
	reg.MustRegister(r.crashesTotal, r.lastExitTimestamp)
	return r
}

// Record increments the crash counter for the event's reason by exactly one
// and sets the last-exit gauge to the event time. Synchronous; safe to call
// before any network step so the snapshot always carries the crash.
func (r *Recorder) Record(ev fatalevent.Event) {
	labels := prometheus.Labels{
		"reason":   ev.Reason(),
		"service":  r.service,
		"instance": r.instance,
	}
	r.crashesTotal.With(labels).Inc()
	r.lastExitTimestamp.With(labels).Set(float64(ev.OccurredAt.Unix()))
}
