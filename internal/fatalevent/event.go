package fatalevent

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// Kind classifies a process-fatal trigger.
type Kind int

const (
	// UncaughtException is a panic that escaped all handlers.
	UncaughtException Kind = iota
	// UnhandledRejection is an error reported by a background task with no
	// caller left to handle it.
	UnhandledRejection
	// SignalInterrupt is SIGINT (operator Ctrl+C).
	SignalInterrupt
	// SignalTerminate is SIGTERM (process manager / container runtime stop).
	SignalTerminate
)

// Reason returns the metric label value for the kind. The set is fixed at
// four values, keeping crash-metric cardinality bounded.
func (k Kind) Reason() string {
	switch k {
	case UncaughtException:
		return "uncaughtException"
	case UnhandledRejection:
		return "unhandledRejection"
	case SignalInterrupt:
		return "SIGINT"
	case SignalTerminate:
		return "SIGTERM"
	default:
		return "unknown"
	}
}

// ExitCode returns the process exit code mandated by the kind:
// 0 for signal-driven termination, 1 for the fatal error path.
func (k Kind) ExitCode() int {
	switch k {
	case SignalInterrupt, SignalTerminate:
		return 0
	default:
		return 1
	}
}

// Graceful reports whether the kind represents an orderly stop request
// rather than a fault. Graceful shutdowns drain in-flight work first.
func (k Kind) Graceful() bool {
	return k == SignalInterrupt || k == SignalTerminate
}

// Event is the canonical form of a fatal trigger. Immutable once constructed.
type Event struct {
	Kind       Kind
	OccurredAt time.Time
	// Err carries the failure for UncaughtException and UnhandledRejection.
	// Non-error trigger values are wrapped into a synthetic error.
	Err error
	// Stack is the goroutine stack captured at the panic site, when available.
	Stack string
	// SignalName is set for signal kinds, e.g. "SIGTERM".
	SignalName string
}

// FromPanic normalizes a recovered panic value into an UncaughtException
// event. stack may be empty when the caller did not capture one.
func FromPanic(v interface{}, stack []byte) Event {
	return Event{
		Kind:       UncaughtException,
		OccurredAt: time.Now(),
		Err:        wrapValue(v),
		Stack:      string(stack),
	}
}

// FromBackgroundError normalizes an error from a background task into an
// UnhandledRejection event.
func FromBackgroundError(v interface{}) Event {
	return Event{
		Kind:       UnhandledRejection,
		OccurredAt: time.Now(),
		Err:        wrapValue(v),
	}
}

// FromSignal normalizes a termination signal. SIGINT maps to SignalInterrupt;
// everything else delivered by the signal subscription maps to SignalTerminate.
func FromSignal(sig os.Signal) Event {
	kind := SignalTerminate
	if sig == os.Interrupt || sig == syscall.SIGINT {
		kind = SignalInterrupt
	}
	return Event{
		Kind:       kind,
		OccurredAt: time.Now(),
		SignalName: kind.Reason(),
	}
}

// Reason returns the metric label value for the event.
func (e Event) Reason() string {
	return e.Kind.Reason()
}

// ErrorMessage returns the failure message, or "" for signal events.
func (e Event) ErrorMessage() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// wrapValue turns an arbitrary trigger value into an error. Errors pass
// through; everything else is stringified into a synthetic error so the
// original content survives into logs and metrics labels.
func wrapValue(v interface{}) error {
	switch x := v.(type) {
	case nil:
		return fmt.Errorf("fatal trigger with nil value")
	case error:
		return x
	default:
		return fmt.Errorf("non-error fatal value: %v", x)
	}
}
