// Package flush drains registered log transports before process exit.
package flush

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Transport is a registered log destination. Transports that can force out
// their buffers also implement Flusher; the rest get a fixed grace delay so
// already-enqueued writes have a chance to leave the process.
type Transport interface {
	Name() string
}

// Flusher is a Transport with an explicit flush operation.
type Flusher interface {
	Transport
	Flush(ctx context.Context) error
}

// LogFlusher drains every registered transport within an aggregate deadline.
// Best effort only: it bounds the wait, it does not guarantee delivery.
type LogFlusher struct {
	transports []Transport
	graceDelay time.Duration
	logger     *zap.Logger
}

// NewLogFlusher returns a LogFlusher over transports. graceDelay is the wait
// granted to transports without an explicit flush.
func NewLogFlusher(transports []Transport, graceDelay time.Duration, logger *zap.Logger) *LogFlusher {
	return &LogFlusher{transports: transports, graceDelay: graceDelay, logger: logger}
}

// Flush drains all transports concurrently and waits for completion or the
// ctx deadline, whichever comes first. One transport erroring or stalling
// never blocks the others; per-transport errors are logged, not returned.
// Returns ctx.Err() when the deadline cut the drain short, nil otherwise.
// A transport that never completes leaks its goroutine, which is acceptable
// because the process exits right after.
func (f *LogFlusher) Flush(ctx context.Context) error {
	done := make(chan struct{}, len(f.transports))
	for _, tr := range f.transports {
		go func(tr Transport) {
			defer func() { done <- struct{}{} }()
			f.drainOne(ctx, tr)
		}(tr)
	}

	for range f.transports {
		select {
		case <-done:
		case <-ctx.Done():
			f.logger.Warn("log flush deadline reached with transports still draining")
			return ctx.Err()
		}
	}
	return nil
}

func (f *LogFlusher) drainOne(ctx context.Context, tr Transport) {
	fl, ok := tr.(Flusher)
	if !ok {
		// No explicit flush; grant the grace delay, bounded by ctx.
		select {
		case <-time.After(f.graceDelay):
		case <-ctx.Done():
		}
		return
	}
	if err := fl.Flush(ctx); err != nil {
		f.logger.Warn("log transport flush failed", zap.String("transport", tr.Name()), zap.Error(err))
	}
}
