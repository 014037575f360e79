package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcare/internal/risk"
	"fleetcare/internal/scheduler"
	"fleetcare/internal/types"
)

var testNow = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

type fakeRunner struct {
	mu        sync.Mutex
	runs      []time.Time
	runIDs    []string
	runErr    error
	notified  []string
	notifyErr error
}

func (f *fakeRunner) Run(ctx context.Context, now time.Time) (scheduler.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, now)
	f.runIDs = append(f.runIDs, types.GetRunID(ctx))
	return scheduler.RunReport{RunID: types.GetRunID(ctx), ReferenceTime: now, RequestsCreated: 2}, f.runErr
}

func (f *fakeRunner) NotifyCompleted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, id)
	return f.notifyErr
}

type fakeAssets struct {
	fleet []types.AssetTelemetry
	err   error
}

func (f *fakeAssets) ListActiveAssetsWithTelemetry(context.Context, int, time.Time) ([]types.AssetTelemetry, error) {
	return f.fleet, f.err
}

type fakeRules map[string]*types.MaintenanceScheduleRule

func (f fakeRules) GetScheduleRule(_ context.Context, id string) (*types.MaintenanceScheduleRule, error) {
	if r, ok := f[id]; ok {
		return r, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundRule, "schedule rule not found", nil)
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Runner == nil {
		opts.Runner = &fakeRunner{}
	}
	opts.Now = func() time.Time { return testNow }
	srv, err := NewServer(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestNewServer_RequiresRunner(t *testing.T) {
	_, err := NewServer(Options{}, nil)
	assert.Error(t, err)
}

func TestHandleRun_DefaultsToNow(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(t, Options{Runner: runner})

	rec := do(t, srv, http.MethodPost, "/v1/runs", "", map[string]string{"X-Request-Id": "req-42"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.runs, 1)
	assert.Equal(t, testNow, runner.runs[0])
	assert.Equal(t, "req-42", runner.runIDs[0])
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))

	var resp struct {
		Data scheduler.RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.RequestsCreated)
	assert.Equal(t, "req-42", resp.Data.RunID)
}

func TestHandleRun_ReferenceTimeOverride(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(t, Options{Runner: runner})

	rec := do(t, srv, http.MethodPost, "/v1/runs", `{"reference_time":"2026-02-06T05:00:00+02:00"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.runs, 1)
	assert.Equal(t, time.Date(2026, 2, 6, 3, 0, 0, 0, time.UTC), runner.runs[0])
	assert.Equal(t, time.UTC, runner.runs[0].Location())
	assert.NotEmpty(t, runner.runIDs[0], "a run id is minted when no header is sent")
}

func TestHandleRun_BadBody(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(t, Options{Runner: runner})

	rec := do(t, srv, http.MethodPost, "/v1/runs", `{"reference_time":"yesterday"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidJSON), decodeError(t, rec).Code)

	rec = do(t, srv, http.MethodPost, "/v1/runs", `{"unknown":true}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, runner.runs)
}

func TestHandleRun_StoreUnavailable(t *testing.T) {
	runner := &fakeRunner{runErr: fmt.Errorf("listing active assets: %w",
		types.NewAppError(types.ErrCodeStoreUnavailable, "store unreachable", errors.New("dial tcp")))}
	srv := newTestServer(t, Options{Runner: runner})

	rec := do(t, srv, http.MethodPost, "/v1/runs", "", map[string]string{"X-Request-Id": "r1"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, string(types.ErrCodeStoreUnavailable), detail.Code)
	assert.Equal(t, "r1", detail.RequestID)
	assert.NotContains(t, rec.Body.String(), "dial tcp")
}

func TestHandleRun_GenericErrorIsOpaque(t *testing.T) {
	srv := newTestServer(t, Options{Runner: &fakeRunner{runErr: errors.New("secret internals")}})

	rec := do(t, srv, http.MethodPost, "/v1/runs", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), decodeError(t, rec).Code)
	assert.NotContains(t, rec.Body.String(), "secret internals")
}

func TestHandleNotifyCompleted(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"not completed", fmt.Errorf("request sr-1 is pending: %w", scheduler.ErrNotCompleted), http.StatusConflict},
		{"not found", fmt.Errorf("loading request sr-1: %w",
			types.NewAppError(types.ErrCodeNotFoundRequest, "service request not found", nil)), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{notifyErr: tt.err}
			srv := newTestServer(t, Options{Runner: runner})

			rec := do(t, srv, http.MethodPost, "/v1/requests/sr-1/notify-completed", "", nil)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, []string{"sr-1"}, runner.notified)
		})
	}
}

func TestHandleRisk(t *testing.T) {
	recent := testNow.AddDate(0, 0, -3)
	busy := make([]types.TelemetryRecord, 0, 30)
	for i := range 30 {
		busy = append(busy, types.TelemetryRecord{
			AssetID:         "cart-busy",
			Day:             testNow.AddDate(0, 0, -i),
			UsageHours:      10,
			IssuesReported:  1,
			DowntimeMinutes: 90,
		})
	}
	fleet := []types.AssetTelemetry{
		{Asset: types.Asset{ID: "cart-idle", StoreID: "s1", LastMaintenanceAt: &recent}},
		{Asset: types.Asset{ID: "cart-busy", StoreID: "s1"}, Window: busy},
	}
	srv := newTestServer(t, Options{Assets: &fakeAssets{fleet: fleet}})

	rec := do(t, srv, http.MethodGet, "/v1/risk", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []risk.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "cart-busy", resp.Data[0].AssetID)
	assert.Equal(t, risk.Evaluate(busy, nil, testNow), resp.Data[0].Assessment)
	assert.Equal(t, risk.Evaluate(nil, &recent, testNow), resp.Data[1].Assessment)

	rec = do(t, srv, http.MethodGet, "/v1/risk?actionable=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	for _, e := range resp.Data {
		assert.True(t, e.Tier.RequiresAction(), "asset %s", e.AssetID)
	}

	rec = do(t, srv, http.MethodGet, "/v1/risk?actionable=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRisk_NotConfigured(t *testing.T) {
	srv := newTestServer(t, Options{})
	rec := do(t, srv, http.MethodGet, "/v1/risk", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRuleNext(t *testing.T) {
	rules := fakeRules{"rule-1": {
		ID:             "rule-1",
		AssetID:        "cart-1",
		RecurrenceType: types.RecurrenceWeekly,
		Frequency:      2,
		NextDueDate:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Active:         true,
	}}
	srv := newTestServer(t, Options{Rules: rules})

	rec := do(t, srv, http.MethodGet, "/v1/rules/rule-1/next?n=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data rulePreview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC),
	}, resp.Data.Following)

	rec = do(t, srv, http.MethodGet, "/v1/rules/rule-1/next", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Following, defaultPreviewCount)

	rec = do(t, srv, http.MethodGet, "/v1/rules/rule-1/next?n=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/rules/missing/next", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundRule), decodeError(t, rec).Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "fleetcare_runs_total 1\n")
	})
	srv := newTestServer(t, Options{Metrics: metrics, AdminAPIKey: "k"})

	rec := do(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fleetcare_runs_total")
}
