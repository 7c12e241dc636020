package observability

import (
	"go.uber.org/zap"

	"github.com/rgoodwin/crash-telemetry-service/internal/config"
	"github.com/rgoodwin/crash-telemetry-service/internal/flush"
	"github.com/rgoodwin/crash-telemetry-service/internal/logsink"
)

// Context is the process-lifetime observability aggregate: registry, logger,
// and the log transport set, plus the identity labels every telemetry write
// carries. Constructed once in main and passed to every component — no
// implicit globals.
type Context struct {
	ServiceName string
	InstanceID  string
	Environment string

	Logger     *zap.Logger
	Metrics    *Metrics
	Transports []flush.Transport
}

// consoleTransport represents the stderr core in the transport set. It has
// no explicit network flush; the flusher grants it the fixed grace delay.
type consoleTransport struct{}

func (consoleTransport) Name() string { return "console" }

// NewContext wires metrics, logger, and transports from cfg. The remote log
// sink is only attached when an endpoint is configured; the console transport
// is always present.
func NewContext(cfg *config.Config) *Context {
	metrics := NewMetrics()
	transports := []flush.Transport{consoleTransport{}}

	var logger *zap.Logger
	if cfg.LogSinkURL != "" {
		sink := logsink.New(logsink.Config{
			URL:           cfg.LogSinkURL,
			Stream:        cfg.LogSinkStream,
			Service:       cfg.ServiceName,
			Environment:   cfg.Environment,
			BatchSize:     cfg.LogSinkBatchSize,
			FlushInterval: cfg.LogSinkInterval,
		})
		transports = append(transports, sink)
		logger = NewLogger(sink)
	} else {
		logger = NewLogger()
	}

	return &Context{
		ServiceName: cfg.ServiceName,
		InstanceID:  cfg.InstanceID,
		Environment: cfg.Environment,
		Logger:      logger,
		Metrics:     metrics,
		Transports:  transports,
	}
}
