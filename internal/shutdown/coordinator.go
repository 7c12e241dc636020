// Package shutdown coordinates the fatal-event exit sequence:
// record crash metric → push snapshot → flush logs → exit, single-flight,
// within a bounded time budget.
package shutdown

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rgoodwin/crash-telemetry-service/internal/fatalevent"
)

// State is the coordinator lifecycle. Transitions are monotonic:
// Idle → InProgress → Completed, exactly one Idle→InProgress per process.
type State int32

const (
	Idle State = iota
	InProgress
	Completed
)

// String returns the state name for health reporting and logs.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InProgress:
		return "in-progress"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Recorder captures the crash in the in-memory registry.
type Recorder interface {
	Record(fatalevent.Event)
}

// Publisher pushes the metrics snapshot, bounded by ctx.
type Publisher interface {
	Push(ctx context.Context) error
}

// Flusher drains the log transports, bounded by ctx.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Config holds the coordinator's time budget and collaborators.
type Config struct {
	Logger    *zap.Logger
	Recorder  Recorder
	Publisher Publisher
	Flusher   Flusher

	// Drain, when set, runs before the telemetry sequence on graceful
	// signals only: stop accepting requests, wait for in-flight ones.
	Drain func(ctx context.Context) error

	PublishTimeout time.Duration
	FlushTimeout   time.Duration
	DrainTimeout   time.Duration
	// WatchdogTimeout bounds the whole sequence independently of the
	// per-step deadlines. Zero derives it from the step budgets.
	WatchdogTimeout time.Duration

	// Exit terminates the process. Defaults to os.Exit; injected in tests.
	Exit func(code int)
	// LastResort receives diagnostics when the sequence itself fails.
	// Defaults to os.Stderr.
	LastResort io.Writer
}

// Coordinator owns the shutdown state machine for the process lifetime.
type Coordinator struct {
	cfg   Config
	state atomic.Int32
}

// NewCoordinator returns an Idle coordinator. cfg.Logger, Recorder,
// Publisher, and Flusher are required.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	if cfg.LastResort == nil {
		cfg.LastResort = os.Stderr
	}
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = cfg.DrainTimeout + cfg.PublishTimeout + cfg.FlushTimeout + time.Second
	}
	if cfg.WatchdogTimeout < time.Second {
		cfg.WatchdogTimeout = time.Second
	}
	return &Coordinator{cfg: cfg}
}

// State returns the current lifecycle state. Used by the health handler to
// report shutting-down.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Trigger runs the shutdown sequence for the first fatal event and ignores
// the rest. Safe to call from any goroutine: the Idle→InProgress swap is the
// single-flight guard, so concurrent triggers cannot produce duplicate
// pushes, flushes, or a race on the exit code. Does not return on the
// winning path; the process exits.
func (c *Coordinator) Trigger(ev fatalevent.Event) {
	if !c.state.CompareAndSwap(int32(Idle), int32(InProgress)) {
		c.cfg.Logger.Warn("secondary fatal trigger ignored, shutdown already in progress",
			zap.String("reason", ev.Reason()),
			zap.String("error", ev.ErrorMessage()))
		return
	}

	code := ev.Kind.ExitCode()

	// The sequence itself must never escape. Whatever breaks inside it goes
	// to stderr directly — the structured logger may be the broken part —
	// and the process still exits.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(c.cfg.LastResort, "shutdown sequence panic: %v (trigger: %s)\n", r, ev.Reason())
			c.cfg.Exit(1)
		}
	}()

	// Log the original failure before anything else so the diagnostic signal
	// survives even if every downstream step fails.
	fields := []zap.Field{
		zap.String("reason", ev.Reason()),
		zap.Time("occurred_at", ev.OccurredAt),
		zap.Int("exit_code", code),
	}
	if ev.Err != nil {
		fields = append(fields, zap.String("error", ev.ErrorMessage()))
	}
	if ev.Stack != "" {
		fields = append(fields, zap.String("stack", ev.Stack))
	}
	if ev.SignalName != "" {
		fields = append(fields, zap.String("signal", ev.SignalName))
	}
	if ev.Kind.Graceful() {
		c.cfg.Logger.Info("termination signal received, shutting down", fields...)
	} else {
		c.cfg.Logger.Error("fatal event, shutting down", fields...)
	}

	// Absolute bound on the whole sequence. A step whose network call never
	// resolves cannot hang the process: the watchdog exits with the code
	// already computed from the trigger.
	watchdog := time.AfterFunc(c.cfg.WatchdogTimeout, func() {
		fmt.Fprintf(c.cfg.LastResort, "shutdown watchdog expired after %s, forcing exit %d\n",
			c.cfg.WatchdogTimeout, code)
		c.cfg.Exit(code)
	})
	defer watchdog.Stop()

	if ev.Kind.Graceful() && c.cfg.Drain != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
		if err := c.cfg.Drain(drainCtx); err != nil {
			c.cfg.Logger.Warn("drain incomplete", zap.Error(err))
		}
		cancel()
	}

	c.cfg.Recorder.Record(ev)

	pushCtx, cancelPush := context.WithTimeout(context.Background(), c.cfg.PublishTimeout)
	if err := c.cfg.Publisher.Push(pushCtx); err != nil {
		c.cfg.Logger.Error("metrics publish failed", zap.Error(err))
	}
	cancelPush()

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), c.cfg.FlushTimeout)
	if err := c.cfg.Flusher.Flush(flushCtx); err != nil {
		c.cfg.Logger.Warn("log flush incomplete", zap.Error(err))
	}
	cancelFlush()

	c.state.Store(int32(Completed))
	c.cfg.Logger.Info("shutdown complete", zap.Int("exit_code", code))
	c.cfg.Exit(code)
}
