// Package main is the entrypoint for the maintenance scheduler Lambda.
//
// An EventBridge schedule invokes it with an optional reference time:
//
//	{"reference_time": "2026-03-10T03:00:00Z"}
//
// Each invocation performs one Engine.Run: due preventive-maintenance rules
// become routine visits, high-risk carts without an open request get one
// inspection each, and overdue and upcoming events go to the notification
// queue. Reruns and overlapping invocations are safe; the store rejects
// duplicates.
//
// With APP_ENV=local the payload is read from stdin instead:
//
//	echo '{}' | go run ./cmd/scheduler
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"fleetcare/internal/app"
	"fleetcare/internal/config"
	"fleetcare/internal/scheduler"
	"fleetcare/internal/types"
)

// Runner is the Engine surface the handler needs.
type Runner interface {
	Run(ctx context.Context, now time.Time) (scheduler.RunReport, error)
}

// Handler adapts Runner to the Lambda runtime.
type Handler struct {
	Runner Runner
	Logger *slog.Logger
	Now    func() time.Time
}

// Handle runs one maintenance pass. The Lambda request ID becomes the run
// ID so CloudWatch logs and job_history rows line up.
func (h *Handler) Handle(ctx context.Context, payload scheduler.RunPayload) (scheduler.RunReport, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := h.Now
	if clock == nil {
		clock = time.Now
	}

	now := clock().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		ctx = types.WithRunID(ctx, lc.AwsRequestID)
	}

	logger.InfoContext(ctx, "scheduler invoked",
		"reference_time", now.Format(time.RFC3339),
		"backfill", payload.ReferenceTime != nil,
	)

	report, err := h.Runner.Run(ctx, now)
	if err != nil {
		return report, fmt.Errorf("maintenance run %s: %w", report.RunID, err)
	}
	return report, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("Scheduler Lambda initializing (cold start)")

	if err := run(logger); err != nil {
		logger.Error("Scheduler exited", "error", err)
		os.Exit(1)
	}
}

// run wires the engine and either serves Lambda invocations or performs one
// local run. Deferred cleanup always executes before main exits.
func run(logger *slog.Logger) error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger = config.NewLogger(os.Stdout, cfg.LogLevel).With("service", cfg.Service, "version", cfg.Build.Version)

	ctx := context.Background()
	pool, err := app.OpenPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	engine, err := app.Build(ctx, cfg, pool, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("wiring engine: %w", err)
	}

	handler := &Handler{Runner: engine, Logger: logger}
	logger.Info("Scheduler Lambda initialized", "environment", cfg.Environment)

	if cfg.Environment == "local" {
		if err := runLocal(ctx, handler, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("local run: %w", err)
		}
		return nil
	}

	lambda.Start(handler.Handle)
	return nil
}

// runLocal reads one RunPayload from r (empty input means "now") and writes
// the report to w.
func runLocal(ctx context.Context, h *Handler, r io.Reader, w io.Writer) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	var payload scheduler.RunPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
	}
	report, err := h.Handle(ctx, payload)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil && err == nil {
		err = encErr
	}
	return err
}
