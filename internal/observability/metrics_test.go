package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies the instruments can be used without panic and
// that label dimensions match their usage in the http package.
func TestMetrics_Usable(t *testing.T) {
	m := NewMetrics()
	// Route uses a path template to avoid cardinality.
	m.HTTPRequestsTotal.WithLabelValues("GET", "/metrics", "2xx").Inc()
	m.HTTPRequestDuration.WithLabelValues("GET", "/metrics").Observe(0.01)
	m.HTTPRequestsInFlight.Inc()
	m.HTTPRequestsInFlight.Dec()
}

// TestMetrics_IndependentRegistries verifies two Metrics values do not share
// state: the registry is per-context, not package-global.
func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	if a.Registry == b.Registry {
		t.Error("each Metrics must own a private registry")
	}
	// Registering both is only possible because nothing is package-global.
	a.HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	b.HTTPRequestsTotal.WithLabelValues("GET", "/health", "5xx").Inc()
}

// TestMetricsHandler_ServesPrometheusFormat verifies the scrape handler
// serves the text exposition format from the private registry.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	m := NewMetrics()
	m.HTTPRequestsTotal.WithLabelValues("GET", "/metrics", "2xx").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("metrics handler status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want negotiated exposition content type", ct)
	}
	if body := w.Body.String(); !strings.Contains(body, "httpRequestsTotal") {
		t.Error("metrics response should contain metric output")
	}
}
