// Package core provides the HTTP chassis for the fleetcare operations API.
// It builds a chi router with the cross-cutting concerns (panic recovery,
// request correlation, logging and admin authentication) in front of the
// run trigger, risk report and recurrence preview handlers.
package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fleetcare/internal/scheduler"
	"fleetcare/internal/types"
)

// RunTrigger starts maintenance runs and raises completion events.
// *scheduler.Engine satisfies it.
type RunTrigger interface {
	Run(ctx context.Context, now time.Time) (scheduler.RunReport, error)
	NotifyCompleted(ctx context.Context, requestID string) error
}

// RiskReader loads every active asset with its telemetry window.
type RiskReader interface {
	ListActiveAssetsWithTelemetry(ctx context.Context, windowDays int, now time.Time) ([]types.AssetTelemetry, error)
}

// RuleReader loads a single preventive-maintenance rule.
type RuleReader interface {
	GetScheduleRule(ctx context.Context, id string) (*types.MaintenanceScheduleRule, error)
}

// Options configures a Server. Runner is required; Assets and Rules are
// optional and their routes answer 404 when unset.
type Options struct {
	Runner  RunTrigger
	Assets  RiskReader
	Rules   RuleReader
	Probes  []HealthProbe
	Metrics http.Handler

	// AdminAPIKey guards the /v1 routes. Empty disables authentication.
	AdminAPIKey    string
	WindowDays     int
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Server holds the dependencies of the operations API.
type Server struct {
	Logger *slog.Logger

	runner         RunTrigger
	assets         RiskReader
	rules          RuleReader
	probes         []HealthProbe
	metrics        http.Handler
	adminKey       string
	windowDays     int
	requestTimeout time.Duration
	now            func() time.Time

	router *chi.Mux
}

// NewServer validates opts and mounts every route.
func NewServer(opts Options, logger *slog.Logger) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("run trigger must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = scheduler.DefaultEngineConfig().WindowDays
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	s := &Server{
		Logger:         logger,
		runner:         opts.Runner,
		assets:         opts.Assets,
		rules:          opts.Rules,
		probes:         opts.Probes,
		metrics:        opts.Metrics,
		adminKey:       opts.AdminAPIKey,
		windowDays:     opts.WindowDays,
		requestTimeout: opts.RequestTimeout,
		now:            opts.Now,
		router:         chi.NewRouter(),
	}
	s.mountRoutes()
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}
