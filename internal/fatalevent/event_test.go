package fatalevent

import (
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
)

// TestKind_Reason verifies the fixed reason label set used for crash metrics.
func TestKind_Reason(t *testing.T) {
	tests := []struct {
		kind   Kind
		reason string
	}{
		{UncaughtException, "uncaughtException"},
		{UnhandledRejection, "unhandledRejection"},
		{SignalInterrupt, "SIGINT"},
		{SignalTerminate, "SIGTERM"},
	}
	for _, tt := range tests {
		if got := tt.kind.Reason(); got != tt.reason {
			t.Errorf("Kind(%d).Reason() = %q, want %q", tt.kind, got, tt.reason)
		}
	}
}

// TestKind_ExitCode verifies the exit-code mapping: signals exit 0, faults exit 1.
func TestKind_ExitCode(t *testing.T) {
	tests := []struct {
		kind Kind
		code int
	}{
		{SignalInterrupt, 0},
		{SignalTerminate, 0},
		{UncaughtException, 1},
		{UnhandledRejection, 1},
	}
	for _, tt := range tests {
		if got := tt.kind.ExitCode(); got != tt.code {
			t.Errorf("Kind(%d).ExitCode() = %d, want %d", tt.kind, got, tt.code)
		}
	}
}

// TestFromPanic_WrapsNonErrorValues verifies non-error panic values are
// wrapped into a synthetic error carrying the stringified content.
func TestFromPanic_WrapsNonErrorValues(t *testing.T) {
	ev := FromPanic("boom", []byte("stack trace here"))
	if ev.Kind != UncaughtException {
		t.Errorf("Kind = %v, want UncaughtException", ev.Kind)
	}
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "boom") {
		t.Errorf("Err = %v, want wrapped value containing %q", ev.Err, "boom")
	}
	if ev.Stack != "stack trace here" {
		t.Errorf("Stack = %q, want captured stack", ev.Stack)
	}
	if ev.OccurredAt.IsZero() {
		t.Error("OccurredAt should be set")
	}
}

// TestFromPanic_ErrorPassesThrough verifies error values are kept as-is.
func TestFromPanic_ErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("boom")
	ev := FromPanic(sentinel, nil)
	if !errors.Is(ev.Err, sentinel) {
		t.Errorf("Err = %v, want original error preserved", ev.Err)
	}
}

// TestFromBackgroundError_NilValue verifies a nil trigger still produces a
// usable synthetic error rather than a nil Err.
func TestFromBackgroundError_NilValue(t *testing.T) {
	ev := FromBackgroundError(nil)
	if ev.Kind != UnhandledRejection {
		t.Errorf("Kind = %v, want UnhandledRejection", ev.Kind)
	}
	if ev.Err == nil {
		t.Error("Err should never be nil for a rejection event")
	}
}

// TestFromSignal_Classification verifies SIGINT maps to interrupt and
// SIGTERM to terminate.
func TestFromSignal_Classification(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		kind Kind
		name string
	}{
		{syscall.SIGINT, SignalInterrupt, "SIGINT"},
		{os.Interrupt, SignalInterrupt, "SIGINT"},
		{syscall.SIGTERM, SignalTerminate, "SIGTERM"},
	}
	for _, tt := range tests {
		ev := FromSignal(tt.sig)
		if ev.Kind != tt.kind {
			t.Errorf("FromSignal(%v).Kind = %v, want %v", tt.sig, ev.Kind, tt.kind)
		}
		if ev.SignalName != tt.name {
			t.Errorf("FromSignal(%v).SignalName = %q, want %q", tt.sig, ev.SignalName, tt.name)
		}
		if ev.Err != nil {
			t.Errorf("FromSignal(%v).Err = %v, want nil", tt.sig, ev.Err)
		}
	}
}

// TestEvent_ErrorMessage verifies signal events report an empty message.
func TestEvent_ErrorMessage(t *testing.T) {
	if msg := FromSignal(syscall.SIGTERM).ErrorMessage(); msg != "" {
		t.Errorf("ErrorMessage() = %q, want empty for signal events", msg)
	}
	if msg := FromBackgroundError(errors.New("db gone")).ErrorMessage(); msg != "db gone" {
		t.Errorf("ErrorMessage() = %q, want %q", msg, "db gone")
	}
}
