package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rgoodwin/crash-telemetry-service/internal/config"
	"github.com/rgoodwin/crash-telemetry-service/internal/crashmetrics"
	"github.com/rgoodwin/crash-telemetry-service/internal/fatalevent"
	"github.com/rgoodwin/crash-telemetry-service/internal/flush"
	httphandler "github.com/rgoodwin/crash-telemetry-service/internal/http"
	"github.com/rgoodwin/crash-telemetry-service/internal/observability"
	"github.com/rgoodwin/crash-telemetry-service/internal/publish"
	"github.com/rgoodwin/crash-telemetry-service/internal/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	obs := observability.NewContext(cfg)
	logger := obs.Logger

	recorder := crashmetrics.NewRecorder(obs.Metrics.Registry, cfg.ServiceName, cfg.InstanceID)
	publisher := publish.NewPublisher(cfg.PushgatewayURL, cfg.ServiceName, cfg.InstanceID, obs.Metrics.Registry, nil)
	flusher := flush.NewLogFlusher(obs.Transports, cfg.FlushGraceDelay, logger)

	tracker := &httphandler.InFlightTracker{}

	srv := &http.Server{Addr: ":" + cfg.ServerPort}

	coordinator := shutdown.NewCoordinator(shutdown.Config{
		Logger:          logger,
		Recorder:        recorder,
		Publisher:       publisher,
		Flusher:         flusher,
		PublishTimeout:  cfg.PublishTimeout,
		FlushTimeout:    cfg.FlushTimeout,
		DrainTimeout:    cfg.DrainTimeout,
		WatchdogTimeout: cfg.WatchdogTimeout,
		Drain: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			if err := tracker.WaitForZero(ctx, cfg.DrainCheckInterval); err != nil {
				return fmt.Errorf("%d requests still in flight: %w", tracker.Count(), err)
			}
			return nil
		},
	})

	sink := fatalevent.NewSink(coordinator, nil)
	defer func() {
		if r := recover(); r != nil {
			sink.OnPanic(r)
		}
	}()

	var trigger httphandler.FatalTrigger
	if cfg.TestingMode {
		logger.Warn("testing mode enabled; /test trigger endpoints exposed")
		trigger = sink
	}
	handler := httphandler.NewHandler(logger, coordinator.State, trigger)

	router := mux.NewRouter()
	router.Use(httphandler.RecoverMiddleware(sink))
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware(obs.Metrics, tracker))
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", obs.Metrics.Handler())
	if cfg.TestingMode {
		testRouter := router.PathPrefix("/test").Subrouter()
		testRouter.Use(httphandler.RateLimitMiddleware(
			rate.NewLimiter(rate.Limit(cfg.TriggerRateRPS), cfg.TriggerRateBurst)))
		testRouter.HandleFunc("/{action}", handler.PostTestAction).Methods("POST")
	}
	srv.Handler = router

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("service", cfg.ServiceName),
			zap.String("instance", cfg.InstanceID),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrs <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	// Blocks for the process lifetime; the coordinator exits the process on
	// the first fatal event.
	sink.Listen(signals, serverErrs)
}
