package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rgoodwin/crash-telemetry-service/internal/shutdown"
)

// FatalTrigger is the slice of the fatal-event sink the test endpoints use.
type FatalTrigger interface {
	OnPanic(v interface{})
	OnBackgroundError(v interface{})
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	logger    *zap.Logger
	stateFn   func() shutdown.State
	trigger   FatalTrigger
	startTime time.Time
}

// NewHandler returns a new Handler. stateFn reports the coordinator state for
// health; trigger may be nil when testing mode is off.
func NewHandler(logger *zap.Logger, stateFn func() shutdown.State, trigger FatalTrigger) *Handler {
	return &Handler{
		logger:    logger,
		stateFn:   stateFn,
		trigger:   trigger,
		startTime: time.Now(),
	}
}

// GetHealth handles GET /health. Reports 503 shutting-down once the
// coordinator has left Idle, so load balancers stop routing during the drain.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	state := h.stateFn()
	status := "ok"
	code := http.StatusOK
	if state != shutdown.Idle {
		status = "shutting-down"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// PostTestAction handles POST /test/{action} for panic and bgerror.
// Only routed in testing mode; both actions start the real shutdown sequence.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	if h.trigger == nil {
		writeError(w, r, http.StatusServiceUnavailable, "NO_TRIGGER", "fatal trigger not wired")
		return
	}
	switch action {
	case "panic":
		writeJSON(w, http.StatusAccepted, map[string]string{"triggered": "panic"})
		// After the response: the sequence ends in process exit.
		go h.trigger.OnPanic(errors.New("panic triggered via test endpoint"))
	case "bgerror":
		writeJSON(w, http.StatusAccepted, map[string]string{"triggered": "bgerror"})
		go h.trigger.OnBackgroundError(errors.New("background error triggered via test endpoint"))
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID, _ = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
