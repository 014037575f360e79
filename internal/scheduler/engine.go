package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetcare/internal/types"
)

// AssetSource reads carts and their telemetry.
type AssetSource interface {
	ListActiveAssets(ctx context.Context) ([]types.Asset, error)
	TelemetryWindow(ctx context.Context, assetID string, since time.Time) ([]types.TelemetryRecord, error)
}

// RequestStore reads and creates service requests. FindOpenRequest considers
// every pending or scheduled request on the asset regardless of source.
// CreateServiceRequest must be safe to call concurrently and redundantly: for
// a dedup key with an open request it returns that request and created=false.
type RequestStore interface {
	FindOpenRequest(ctx context.Context, assetID string) (*types.ServiceRequest, error)
	CreateServiceRequest(ctx context.Context, req *types.ServiceRequest) (*types.ServiceRequest, bool, error)
	GetServiceRequest(ctx context.Context, id string) (*types.ServiceRequest, error)
	ListRequests(ctx context.Context, filter types.RequestFilter) ([]types.ServiceRequest, error)
}

// ScheduleStore reads and advances preventive-maintenance rules.
// AdvanceScheduleRule applies only while the rule's next due date still
// equals expectedNextDue.
type ScheduleStore interface {
	ListDueScheduleRules(ctx context.Context, now time.Time) ([]types.MaintenanceScheduleRule, error)
	AdvanceScheduleRule(ctx context.Context, ruleID string, newNextDue, lastCompleted, expectedNextDue time.Time) (bool, error)
}

// LinkResolver returns the active provider partnered with a store.
type LinkResolver interface {
	ResolveActiveProvider(ctx context.Context, storeID string) (string, bool, error)
}

// AdvisoryGenerator turns a metrics summary into narrative text.
type AdvisoryGenerator interface {
	GenerateAdvisory(ctx context.Context, summary string) (string, error)
}

// Notifier receives the abstract overdue/upcoming/completed events.
type Notifier interface {
	Notify(ctx context.Context, kind types.NotificationKind, event types.NotificationEvent) error
}

// RunHistory persists one row per run.
type RunHistory interface {
	Start(ctx context.Context, jobType, runID string, referenceTime time.Time) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, report []byte, jobErr error) error
}

// RunMetrics publishes run counters.
type RunMetrics interface {
	RecordRun(ctx context.Context, counts map[string]int, duration time.Duration, failed bool)
}

// Dependencies are the Engine's collaborators. Advisory, Notifier, History
// and Metrics are optional.
type Dependencies struct {
	Assets    AssetSource
	Requests  RequestStore
	Schedules ScheduleStore
	Providers LinkResolver
	Advisory  AdvisoryGenerator
	Notifier  Notifier
	History   RunHistory
	Metrics   RunMetrics
}

// EngineConfig tunes a run.
type EngineConfig struct {
	// WindowDays is the number of calendar days of telemetry scored per asset.
	WindowDays int
	// Concurrency bounds parallel asset evaluations.
	Concurrency int
	// InspectionLeadTime is how far ahead risk inspections are scheduled.
	InspectionLeadTime time.Duration
	// UpcomingWindowDays is the horizon of the upcoming event.
	UpcomingWindowDays int

	StoreTimeout    time.Duration
	ProviderTimeout time.Duration
	AdvisoryTimeout time.Duration
	NotifyTimeout   time.Duration
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WindowDays:         30,
		Concurrency:        8,
		InspectionLeadTime: 48 * time.Hour,
		UpcomingWindowDays: 7,
		StoreTimeout:       10 * time.Second,
		ProviderTimeout:    5 * time.Second,
		AdvisoryTimeout:    8 * time.Second,
		NotifyTimeout:      5 * time.Second,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.WindowDays <= 0 {
		c.WindowDays = d.WindowDays
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.InspectionLeadTime <= 0 {
		c.InspectionLeadTime = d.InspectionLeadTime
	}
	if c.UpcomingWindowDays <= 0 {
		c.UpcomingWindowDays = d.UpcomingWindowDays
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = d.ProviderTimeout
	}
	if c.AdvisoryTimeout <= 0 {
		c.AdvisoryTimeout = d.AdvisoryTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = d.NotifyTimeout
	}
	return c
}

// Engine orchestrates a maintenance run. It holds no state between runs
// other than the per-asset locks, so one Engine may serve overlapping runs.
type Engine struct {
	deps   Dependencies
	cfg    EngineConfig
	locks  *keyedMutex
	logger *slog.Logger
	clock  func() time.Time
}

// NewEngine creates an Engine. Zero config fields take DefaultEngineConfig
// values.
func NewEngine(deps Dependencies, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		locks:  newKeyedMutex(),
		logger: logger,
		clock:  time.Now,
	}
}

// tally collects counters from concurrent workers.
type tally struct {
	mu sync.Mutex
	r  RunReport
}

func (t *tally) add(fn func(r *RunReport)) {
	t.mu.Lock()
	fn(&t.r)
	t.mu.Unlock()
}

func (t *tally) snapshot() RunReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.r
}

// Run executes one maintenance run with now as the reference instant. The
// recurrence sweep runs first so that a routine visit it opens counts as the
// asset's open request during the risk sweep. Notification events are raised
// after both. The returned error is non-nil only when the store is
// unreachable, a listing query fails, or ctx is cancelled; per-item failures
// are counted in the report instead.
func (e *Engine) Run(ctx context.Context, now time.Time) (RunReport, error) {
	runID := types.GetRunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = types.WithRunID(ctx, runID)
	}
	started := e.clock()
	logger := e.logger.With("run_id", runID)

	t := &tally{r: RunReport{RunID: runID, ReferenceTime: now}}

	historyID := e.startHistory(ctx, logger, runID, now)

	logger.InfoContext(ctx, "maintenance run started", "reference_time", now)

	runErr := e.recurrenceSweep(ctx, logger, now, t)
	if runErr == nil {
		runErr = e.riskSweep(ctx, logger, now, t)
	}

	if runErr == nil {
		e.raiseNotifications(ctx, logger, now, runID, t)
	}

	report := t.snapshot()
	report.Duration = e.clock().Sub(started)

	e.finishHistory(ctx, logger, historyID, report, runErr)
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordRun(ctx, report.Counts(), report.Duration, runErr != nil)
	}

	if runErr != nil {
		logger.ErrorContext(ctx, "maintenance run failed",
			"error", runErr,
			"requests_created", report.Created(),
		)
		return report, runErr
	}

	logger.InfoContext(ctx, "maintenance run complete",
		"assets_scanned", report.AssetsScanned,
		"high_risk", report.HighRisk,
		"requests_created", report.RequestsCreated,
		"duplicates", report.Duplicates,
		"skipped_no_provider", report.SkippedNoProvider,
		"rules_due", report.RulesDue,
		"rules_advanced", report.RulesAdvanced,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

func (e *Engine) startHistory(ctx context.Context, logger *slog.Logger, runID string, now time.Time) int64 {
	if e.deps.History == nil {
		return 0
	}
	sctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	id, err := e.deps.History.Start(sctx, JobTypeMaintenanceRun, runID, now)
	if err != nil {
		logger.WarnContext(ctx, "failed to record job start", "error", err)
		return 0
	}
	return id
}

func (e *Engine) finishHistory(ctx context.Context, logger *slog.Logger, id int64, report RunReport, runErr error) {
	if e.deps.History == nil || id == 0 {
		return
	}
	status := "success"
	if runErr != nil {
		status = "failed"
	}
	body, err := json.Marshal(report)
	if err != nil {
		logger.WarnContext(ctx, "failed to encode run report", "error", err)
		body = nil
	}

	// The run context may already be cancelled; the outcome is still recorded.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StoreTimeout)
	defer cancel()
	if err := e.deps.History.Finish(sctx, id, status, report.Created(), body, runErr); err != nil {
		logger.WarnContext(ctx, "failed to record job finish", "error", err)
	}
}

// abortCause decides whether err ends the run: cancellation of the run and
// unreachable-store errors do, everything else is skipped by the caller.
// ctx is the run's context; a per-call deadline that fired while ctx is live
// is not fatal.
func abortCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if types.IsFatalStoreError(err) {
		return err
	}
	return nil
}

// callWithTimeout runs fn under a child context bounded by d.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(cctx)
}

// ErrNotCompleted is returned by NotifyCompleted for requests that are not
// in the completed state.
var ErrNotCompleted = errors.New("service request is not completed")

// NotifyCompleted raises the completed event for one request. Completion
// workflows call it once after closing a request; runs never raise completed
// events themselves. Notifier failures are logged only; the request itself
// is never touched.
func (e *Engine) NotifyCompleted(ctx context.Context, requestID string) error {
	req, err := callWithTimeout(ctx, e.cfg.StoreTimeout, func(c context.Context) (*types.ServiceRequest, error) {
		return e.deps.Requests.GetServiceRequest(c, requestID)
	})
	if err != nil {
		return fmt.Errorf("loading request %s: %w", requestID, err)
	}
	if req.Status != types.RequestCompleted {
		return fmt.Errorf("request %s is %s: %w", requestID, req.Status, ErrNotCompleted)
	}
	e.notify(ctx, e.logger, types.NotifyCompleted, types.NotificationEvent{
		RequestIDs: []string{req.ID},
		RaisedAt:   e.clock().UTC(),
		RunID:      types.GetRunID(ctx),
	}, nil)
	return nil
}
