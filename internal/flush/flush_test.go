package flush

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeTransport struct {
	name    string
	flushed atomic.Int32
	err     error
	block   bool // never completes when true
}

func (t *fakeTransport) Name() string { return t.name }

func (t *fakeTransport) Flush(ctx context.Context) error {
	if t.block {
		<-ctx.Done()
		return ctx.Err()
	}
	t.flushed.Add(1)
	return t.err
}

// plainTransport has no explicit flush; it should get the grace delay.
type plainTransport struct{ name string }

func (t plainTransport) Name() string { return t.name }

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// TestFlush_InvokesExplicitFlush verifies every flushable transport gets
// exactly one flush call.
func TestFlush_InvokesExplicitFlush(t *testing.T) {
	logger, _ := observedLogger()
	a := &fakeTransport{name: "a"}
	b := &fakeTransport{name: "b"}
	f := NewLogFlusher([]Transport{a, b}, 10*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if a.flushed.Load() != 1 || b.flushed.Load() != 1 {
		t.Errorf("flush counts = %d, %d, want 1, 1", a.flushed.Load(), b.flushed.Load())
	}
}

// TestFlush_OneFailureDoesNotBlockOthers verifies a transport error is logged
// and the remaining transports still drain.
func TestFlush_OneFailureDoesNotBlockOthers(t *testing.T) {
	logger, logs := observedLogger()
	bad := &fakeTransport{name: "bad", err: errors.New("sink unreachable")}
	good := &fakeTransport{name: "good"}
	f := NewLogFlusher([]Transport{bad, good}, 10*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if good.flushed.Load() != 1 {
		t.Error("good transport should still flush when another fails")
	}
	if logs.FilterMessage("log transport flush failed").Len() != 1 {
		t.Error("transport failure should be logged")
	}
}

// TestFlush_ReturnsWithinDeadlineWithStuckTransport verifies a transport that
// never signals completion cannot hold Flush past the deadline.
func TestFlush_ReturnsWithinDeadlineWithStuckTransport(t *testing.T) {
	logger, _ := observedLogger()
	stuck := &fakeTransport{name: "stuck", block: true}
	f := NewLogFlusher([]Transport{stuck}, 10*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := f.Flush(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Flush took %v, want return shortly after the 100ms deadline", elapsed)
	}
}

// TestFlush_GraceDelayForPlainTransports verifies transports without an
// explicit flush are granted the grace delay and no more.
func TestFlush_GraceDelayForPlainTransports(t *testing.T) {
	logger, _ := observedLogger()
	f := NewLogFlusher([]Transport{plainTransport{name: "console"}}, 50*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond {
		t.Errorf("Flush returned in %v, grace delay of 50ms not honored", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Flush took %v, grace delay should not stretch the drain", elapsed)
	}
}

// TestFlush_NoTransports verifies an empty transport set flushes immediately.
func TestFlush_NoTransports(t *testing.T) {
	logger, _ := observedLogger()
	f := NewLogFlusher(nil, time.Second, logger)
	if err := f.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v, want nil", err)
	}
}
