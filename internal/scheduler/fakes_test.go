package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fleetcare/internal/risk"
	"fleetcare/internal/types"
)

// ============================================================
// Shared Test Helpers
// ============================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var testNow = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func storeDown() error {
	return types.NewAppError(types.ErrCodeStoreUnavailable, "store unreachable", nil)
}

// dailyWindow returns n days of telemetry ending on now's day whose sums are
// usage and issues and whose average downtime is downtime.
func dailyWindow(assetID string, now time.Time, n int, usage float64, issues int, downtime float64) []types.TelemetryRecord {
	start := risk.WindowStart(now, n)
	out := make([]types.TelemetryRecord, n)
	for i := range out {
		out[i] = types.TelemetryRecord{
			AssetID:         assetID,
			Day:             start.AddDate(0, 0, i),
			UsageHours:      usage / float64(n),
			DowntimeMinutes: downtime,
		}
	}
	out[n-1].IssuesReported = issues
	return out
}

// ============================================================
// In-memory store
// ============================================================

// memStore implements AssetSource, RequestStore, ScheduleStore and
// LinkResolver. CreateServiceRequest enforces "one open request per dedup
// key" atomically, the same guarantee the Postgres partial unique index
// gives.
type memStore struct {
	mu sync.Mutex

	assets       []types.Asset
	telemetry    map[string][]types.TelemetryRecord
	telemetryErr map[string]error
	listErr      error

	requests  []*types.ServiceRequest
	nextID    int
	findErr   error
	createErr error
	// createDelay widens the window between the open-request check and the
	// insert.
	createDelay time.Duration

	rules      map[string]*types.MaintenanceScheduleRule
	advanceErr error

	providers   map[string]string
	providerErr map[string]error
	// providerHang makes lookups for a store block until the call's
	// deadline, then fail the way the Postgres repository does.
	providerHang map[string]bool

	// fatal, when set, is returned by every call.
	fatal error

	createCalls atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{
		telemetry:    make(map[string][]types.TelemetryRecord),
		telemetryErr: make(map[string]error),
		rules:        make(map[string]*types.MaintenanceScheduleRule),
		providers:    make(map[string]string),
		providerErr:  make(map[string]error),
		providerHang: make(map[string]bool),
	}
}

func (m *memStore) addAsset(a types.Asset, window []types.TelemetryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Status == "" {
		a.Status = types.AssetActive
	}
	m.assets = append(m.assets, a)
	m.telemetry[a.ID] = window
}

func (m *memStore) ListActiveAssets(ctx context.Context) ([]types.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal != nil {
		return nil, m.fatal
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []types.Asset
	for _, a := range m.assets {
		if a.Status == types.AssetActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) TelemetryWindow(ctx context.Context, assetID string, since time.Time) ([]types.TelemetryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal != nil {
		return nil, m.fatal
	}
	if err := m.telemetryErr[assetID]; err != nil {
		return nil, err
	}
	var out []types.TelemetryRecord
	for _, r := range m.telemetry[assetID] {
		if !r.Day.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) FindOpenRequest(ctx context.Context, assetID string) (*types.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal != nil {
		return nil, m.fatal
	}
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, r := range m.requests {
		if r.AssetID == assetID && r.Status.IsOpen() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateServiceRequest(ctx context.Context, req *types.ServiceRequest) (*types.ServiceRequest, bool, error) {
	m.createCalls.Add(1)
	if m.createDelay > 0 {
		time.Sleep(m.createDelay)
	}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal != nil {
		return nil, false, m.fatal
	}
	if m.createErr != nil {
		return nil, false, m.createErr
	}
	if req.DedupKey != nil {
		for _, r := range m.requests {
			if r.DedupKey != nil && *r.DedupKey == *req.DedupKey && r.Status.IsOpen() {
				cp := *r
				return &cp, false, nil
			}
		}
	}
	m.nextID++
	stored := *req
	stored.ID = fmt.Sprintf("req-%03d", m.nextID)
	stored.CreatedAt = testNow
	m.requests = append(m.requests, &stored)
	cp := stored
	return &cp, true, nil
}

func (m *memStore) GetServiceRequest(ctx context.Context, id string) (*types.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundRequest, "service request not found", nil)
}

func (m *memStore) ListRequests(ctx context.Context, f types.RequestFilter) ([]types.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal != nil {
		return nil, m.fatal
	}
	var out []types.ServiceRequest
	for _, r := range m.requests {
		if !matches(*r, f) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func matches(r types.ServiceRequest, f types.RequestFilter) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if f.ScheduledBefore != nil && !r.ScheduledDate.Before(*f.ScheduledBefore) {
		return false
	}
	if f.ScheduledFrom != nil && r.ScheduledDate.Before(*f.ScheduledFrom) {
		return false
	}
	if f.ScheduledUntil != nil && r.ScheduledDate.After(*f.ScheduledUntil) {
		return false
	}
	return true
}

// seedRequest stores a request as-is, bypassing dedup.
func (m *memStore) seedRequest(r types.ServiceRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if r.ID == "" {
		r.ID = fmt.Sprintf("seed-%03d", m.nextID)
	}
	m.requests = append(m.requests, &r)
}

func (m *memStore) openRequests(assetID string) []types.ServiceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ServiceRequest
	for _, r := range m.requests {
		if r.AssetID == assetID && r.Status.IsOpen() {
			out = append(out, *r)
		}
	}
	return out
}

func (m *memStore) ListDueScheduleRules(ctx context.Context, now time.Time) ([]types.MaintenanceScheduleRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal != nil {
		return nil, m.fatal
	}
	var out []types.MaintenanceScheduleRule
	for _, r := range m.rules {
		if r.Active && !r.NextDueDate.After(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) AdvanceScheduleRule(ctx context.Context, ruleID string, newNextDue, lastCompleted, expectedNextDue time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal != nil {
		return false, m.fatal
	}
	if m.advanceErr != nil {
		return false, m.advanceErr
	}
	r, ok := m.rules[ruleID]
	if !ok || !r.NextDueDate.Equal(expectedNextDue) {
		return false, nil
	}
	r.NextDueDate = newNextDue
	r.LastCompletedDate = &lastCompleted
	return true, nil
}

func (m *memStore) rule(id string) types.MaintenanceScheduleRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rules[id]
}

func (m *memStore) ResolveActiveProvider(ctx context.Context, storeID string) (string, bool, error) {
	m.mu.Lock()
	hang := m.providerHang[storeID]
	m.mu.Unlock()
	if hang {
		<-ctx.Done()
		return "", false, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve provider link", ctx.Err())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal != nil {
		return "", false, m.fatal
	}
	if err := m.providerErr[storeID]; err != nil {
		return "", false, err
	}
	id, ok := m.providers[storeID]
	return id, ok, nil
}

// ============================================================
// Optional collaborators
// ============================================================

type fakeAdvisory struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeAdvisory) GenerateAdvisory(ctx context.Context, summary string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []types.NotificationEvent
	err    error
}

func (f *fakeNotifier) Notify(ctx context.Context, kind types.NotificationKind, event types.NotificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) byKind(kind types.NotificationKind) []types.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.NotificationEvent
	for _, e := range f.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeHistory struct {
	mu       sync.Mutex
	started  []string
	statuses []string
	items    []int
	reports  [][]byte
	errs     []error
	startErr error
}

func (f *fakeHistory) Start(ctx context.Context, jobType, runID string, referenceTime time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return 0, f.startErr
	}
	f.started = append(f.started, runID)
	return int64(len(f.started)), nil
}

func (f *fakeHistory) Finish(ctx context.Context, id int64, status string, items int, report []byte, jobErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	f.items = append(f.items, items)
	f.reports = append(f.reports, report)
	f.errs = append(f.errs, jobErr)
	return nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts []map[string]int
	failed []bool
}

func (f *fakeMetrics) RecordRun(ctx context.Context, counts map[string]int, duration time.Duration, failed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, counts)
	f.failed = append(f.failed, failed)
}

func newTestEngine(store *memStore, adv AdvisoryGenerator, n Notifier) *Engine {
	return NewEngine(Dependencies{
		Assets:    store,
		Requests:  store,
		Schedules: store,
		Providers: store,
		Advisory:  adv,
		Notifier:  n,
	}, EngineConfig{}, testLogger())
}
