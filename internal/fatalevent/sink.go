package fatalevent

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
)

// Coordinator receives normalized fatal events. Implemented by the shutdown
// coordinator; declared here so the sink does not depend on it.
type Coordinator interface {
	Trigger(Event)
}

// Sink subscribes to fatal-trigger sources and forwards normalized events to
// the coordinator. It must never fail itself: any panic inside the handling
// path is recovered and written to the last-resort writer (stderr), because
// the structured logger may be the component that is failing.
type Sink struct {
	coord      Coordinator
	lastResort io.Writer
}

// NewSink returns a Sink forwarding to coord. lastResort defaults to
// os.Stderr when nil.
func NewSink(coord Coordinator, lastResort io.Writer) *Sink {
	if lastResort == nil {
		lastResort = os.Stderr
	}
	return &Sink{coord: coord, lastResort: lastResort}
}

// OnPanic handles a recovered panic value. Call from a deferred recover at
// goroutine boundaries.
func (s *Sink) OnPanic(v interface{}) {
	s.forward(FromPanic(v, debug.Stack()))
}

// OnBackgroundError handles an error surfaced by a background task (server
// loop, worker) that has no caller left to return to.
func (s *Sink) OnBackgroundError(v interface{}) {
	s.forward(FromBackgroundError(v))
}

// OnSignal handles a termination signal.
func (s *Sink) OnSignal(sig os.Signal) {
	s.forward(FromSignal(sig))
}

// Listen consumes the signal and background-error channels until the process
// exits. Blocks; call from main. The coordinator terminates the process on
// the first event, so Listen never returns in practice.
func (s *Sink) Listen(signals <-chan os.Signal, errs <-chan error) {
	for {
		select {
		case sig := <-signals:
			s.OnSignal(sig)
		case err := <-errs:
			s.OnBackgroundError(err)
		}
	}
}

// forward delivers the event to the coordinator behind a recover guard.
// A panic while handling a fatal event must not recurse into the fatal path.
func (s *Sink) forward(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(s.lastResort, "fatal handler panic: %v (original: %s %s)\n",
				r, ev.Reason(), ev.ErrorMessage())
		}
	}()
	s.coord.Trigger(ev)
}
