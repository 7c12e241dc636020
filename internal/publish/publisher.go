// Package publish sends the full metrics snapshot to a Prometheus
// Pushgateway. The gateway holds the final push for the regular scrape
// collector, which is how metrics from a process that is about to exit
// survive the exit.
package publish

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
)

// Publisher performs one bounded, best-effort push of a metrics registry.
// The grouping key (job = service, instance label) makes each push atomically
// replace the previous one from the same instance.
type Publisher struct {
	pusher *push.Pusher
}

// NewPublisher returns a Publisher targeting the gateway at url. gatherer is
// the registry to snapshot; job is the service name; instance becomes the
// grouping-key label. httpClient may be nil for http.DefaultClient.
func NewPublisher(url, job, instance string, gatherer prometheus.Gatherer, httpClient *http.Client) *Publisher {
	p := push.New(url, job).
		Gatherer(gatherer).
		Grouping("instance", instance).
		Format(expfmt.NewFormat(expfmt.TypeTextPlain))
	if httpClient != nil {
		p = p.Client(httpClient)
	}
	return &Publisher{pusher: p}
}

// Push transmits the snapshot once, bounded by ctx. No retries: a failed or
// timed-out push is reported to the caller to log and swallow — losing the
// final snapshot is the accepted trade-off, blocking shutdown is not.
func (p *Publisher) Push(ctx context.Context) error {
	start := time.Now()
	if err := p.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics snapshot after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}
	return nil
}
