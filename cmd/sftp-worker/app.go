package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"sfex/internal/config"
	"sfex/internal/constants"
	"sfex/internal/logger"
	"sfex/internal/sftp"
	"sfex/internal/vendors"
	"sfex/pkg/bootstrap"
	"sfex/pkg/health"
	"sfex/pkg/logging"
	"sfex/pkg/metrics"
	"sfex/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	store          *vendors.Store
	poller         *sftp.Poller
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("sftp-worker")
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	store, err := vendors.LoadStore(a.Config.Vendors.File)
	if err != nil {
		return fmt.Errorf("failed to load vendor profiles: %w", err)
	}
	a.store = store
	a.Logger.Infow("Vendor profiles loaded", "count", store.Len())

	if err := a.InitProducerOnly(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.poller = sftp.NewPoller(a.store, a.Producer, sftp.Dial, a.Config.Ingestion, a.Logger)

	tp, err := tracing.Init(a.Config.Tracing, "sftp-worker")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterIngestionMetrics()
	metrics.RegisterBrokerMetrics()

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	if pinger, ok := a.Producer.(interface{ Ping(context.Context) error }); ok {
		healthRegistry.Register(health.NewFuncChecker("broker", pinger.Ping))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		pollCtx := logging.WithServiceName(gCtx, "sftp-worker")
		return a.poller.Run(pollCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "sftp-worker")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down ingestion worker")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
