package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetcare/internal/risk"
	"fleetcare/internal/types"
)

// RiskDedupKey is the dedup key of the risk path's open request for an asset.
func RiskDedupKey(assetID string) string {
	return "risk:" + assetID
}

// riskSweep scores every active asset and opens an inspection for those at
// high or critical risk. Assets are evaluated in parallel up to
// cfg.Concurrency.
func (e *Engine) riskSweep(ctx context.Context, logger *slog.Logger, now time.Time, t *tally) error {
	assets, err := callWithTimeout(ctx, e.cfg.StoreTimeout, e.deps.Assets.ListActiveAssets)
	if err != nil {
		return fmt.Errorf("listing active assets: %w", err)
	}
	t.add(func(r *RunReport) { r.AssetsScanned = len(assets) })

	since := risk.WindowStart(now, e.cfg.WindowDays)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, asset := range assets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return e.evaluateAsset(gctx, logger, asset, since, now, t)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// evaluateAsset handles one asset end to end. It returns an error only when
// the run must stop.
func (e *Engine) evaluateAsset(ctx context.Context, logger *slog.Logger, asset types.Asset, since, now time.Time, t *tally) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger = logger.With("asset_id", asset.ID)

	window, err := callWithTimeout(ctx, e.cfg.StoreTimeout, func(c context.Context) ([]types.TelemetryRecord, error) {
		return e.deps.Assets.TelemetryWindow(c, asset.ID, since)
	})
	if err != nil {
		if cause := abortCause(ctx, err); cause != nil {
			return cause
		}
		logger.WarnContext(ctx, "skipping asset: telemetry read failed", "error", err)
		t.add(func(r *RunReport) { r.SkippedTelemetryError++ })
		return nil
	}

	assessment := risk.Evaluate(window, asset.LastMaintenanceAt, now)
	t.add(func(r *RunReport) { r.AssetsEvaluated++ })
	if !assessment.Tier.RequiresAction() {
		return nil
	}
	t.add(func(r *RunReport) { r.HighRisk++ })
	logger = logger.With("score", assessment.Score, "tier", string(assessment.Tier))

	unlock := e.locks.Lock(asset.ID)
	defer unlock()

	existing, err := callWithTimeout(ctx, e.cfg.StoreTimeout, func(c context.Context) (*types.ServiceRequest, error) {
		return e.deps.Requests.FindOpenRequest(c, asset.ID)
	})
	if err != nil {
		if cause := abortCause(ctx, err); cause != nil {
			return cause
		}
		logger.WarnContext(ctx, "skipping asset: open request lookup failed", "error", err)
		t.add(func(r *RunReport) { r.SkippedLookupError++ })
		return nil
	}
	if existing != nil {
		logger.DebugContext(ctx, "asset already has an open request",
			"request_id", existing.ID,
			"source", string(existing.Source),
		)
		t.add(func(r *RunReport) { r.Duplicates++ })
		return nil
	}

	providerID, found, err := e.resolveProvider(ctx, asset.StoreID)
	if err != nil {
		if cause := abortCause(ctx, err); cause != nil {
			return cause
		}
		logger.WarnContext(ctx, "skipping asset: provider lookup failed", "store_id", asset.StoreID, "error", err)
		t.add(func(r *RunReport) { r.SkippedProviderError++ })
		return nil
	}
	if !found {
		logger.InfoContext(ctx, "skipping asset: no active provider for store", "store_id", asset.StoreID)
		t.add(func(r *RunReport) { r.SkippedNoProvider++ })
		return nil
	}

	req := buildRiskRequest(asset, assessment, providerID, now.Add(e.cfg.InspectionLeadTime))
	if text, ok := e.advise(ctx, logger, assessment); ok {
		req.Advisory = &text
	} else if e.deps.Advisory != nil {
		t.add(func(r *RunReport) { r.AdvisoryFailures++ })
	}

	stored, created, err := e.createRequest(ctx, req)
	if err != nil {
		if cause := abortCause(ctx, err); cause != nil {
			return cause
		}
		logger.ErrorContext(ctx, "failed to create inspection request", "error", err)
		t.add(func(r *RunReport) { r.CreateFailures++ })
		return nil
	}
	if !created {
		logger.InfoContext(ctx, "inspection already open; created by a concurrent run", "request_id", idOf(stored))
		t.add(func(r *RunReport) { r.Duplicates++ })
		return nil
	}

	logger.InfoContext(ctx, "inspection request created",
		"request_id", stored.ID,
		"provider_id", providerID,
		"scheduled_date", stored.ScheduledDate,
	)
	t.add(func(r *RunReport) { r.RequestsCreated++ })
	return nil
}

func (e *Engine) createRequest(ctx context.Context, req *types.ServiceRequest) (*types.ServiceRequest, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return e.deps.Requests.CreateServiceRequest(cctx, req)
}

func (e *Engine) resolveProvider(ctx context.Context, storeID string) (string, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()
	return e.deps.Providers.ResolveActiveProvider(cctx, storeID)
}

// advise asks the advisory generator for a narrative. ok is false when the
// generator is disabled, fails, or times out; request creation proceeds
// either way.
func (e *Engine) advise(ctx context.Context, logger *slog.Logger, a risk.Assessment) (string, bool) {
	if e.deps.Advisory == nil {
		return "", false
	}
	text, err := callWithTimeout(ctx, e.cfg.AdvisoryTimeout, func(c context.Context) (string, error) {
		return e.deps.Advisory.GenerateAdvisory(c, a.Summary())
	})
	if err != nil {
		logger.WarnContext(ctx, "advisory generation failed; continuing without it", "error", err)
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func buildRiskRequest(asset types.Asset, a risk.Assessment, providerID string, scheduled time.Time) *types.ServiceRequest {
	key := RiskDedupKey(asset.ID)
	return &types.ServiceRequest{
		AssetID:       asset.ID,
		StoreID:       asset.StoreID,
		ProviderID:    &providerID,
		Category:      types.CategoryInspection,
		Priority:      types.PriorityHigh,
		Status:        types.RequestPending,
		ScheduledDate: scheduled,
		Description:   riskDescription(asset, a),
		Source:        types.SourceRisk,
		DedupKey:      &key,
	}
}

func riskDescription(asset types.Asset, a risk.Assessment) string {
	staleness := fmt.Sprintf("%d days since last maintenance", a.Inputs.DaysSinceMaintenance)
	if asset.LastMaintenanceAt == nil {
		staleness = "no maintenance on record"
	}
	return fmt.Sprintf(
		"Automated inspection: %s risk (score %d). %d issues reported, %.1f min average downtime, %s, %.1f usage hours in window.",
		a.Tier, a.Score, a.Inputs.Issues, a.Inputs.AvgDowntimeMinutes, staleness, a.Inputs.UsageHours,
	)
}

func idOf(r *types.ServiceRequest) string {
	if r == nil {
		return ""
	}
	return r.ID
}
