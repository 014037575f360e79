// Package main runs the long-lived operations API for fleetcare.
//
// It serves:
//
//	POST /v1/runs                             trigger a maintenance run
//	POST /v1/requests/{id}/notify-completed   raise the completed event
//	GET  /v1/risk                             side-effect-free fleet risk report
//	GET  /v1/rules/{id}/next?n=5              preview upcoming occurrences
//	GET  /healthz                             database probe
//	GET  /metrics                             Prometheus, when enabled
//
// The /v1 routes require ADMIN_API_KEY when it is set.
//
// Graceful shutdown is handled via SIGINT and SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetcare/internal/app"
	"fleetcare/internal/config"
	"fleetcare/internal/core"
	"fleetcare/internal/db"
	"fleetcare/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ops server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel).With("service", "ops-server", "version", cfg.Build.Version)
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := app.OpenPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	var opts app.Options
	var metricsHandler http.Handler
	if cfg.Observability.EnablePrometheus {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := metrics.NewPrometheusRecorder(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		opts.ExtraRecorders = append(opts.ExtraRecorders, rec)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	engine, err := app.Build(ctx, cfg, pool, logger, opts)
	if err != nil {
		return fmt.Errorf("wiring engine: %w", err)
	}

	srv, err := core.NewServer(core.Options{
		Runner:      engine,
		Assets:      db.NewAssetRepository(pool),
		Rules:       db.NewScheduleRuleRepository(pool),
		Probes:      []core.HealthProbe{dbProbe(pool)},
		Metrics:     metricsHandler,
		AdminAPIKey: cfg.Server.AdminAPIKey.Unmask(),
		WindowDays:  cfg.Scheduler.WindowDays,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if cfg.Server.AdminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY is not set; /v1 routes are unauthenticated")
	}

	return serve(srv, ":"+cfg.Server.Port, logger)
}

func dbProbe(pool *pgxpool.Pool) core.HealthProbe {
	return core.PingProbe{Label: "database", Ping: pool.Ping}
}

// serve blocks until a signal arrives or the listener fails, then drains
// in-flight requests for up to 30s.
func serve(srv *core.Server, addr string, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}
