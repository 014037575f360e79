package db

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"fleetcare/internal/risk"
	"fleetcare/internal/types"
)

// AssetRepository reads carts and their daily telemetry. The scheduler never
// writes through it.
type AssetRepository struct {
	db DBTX
}

// NewAssetRepository creates a new AssetRepository backed by the given
// database connection (pool or transaction).
func NewAssetRepository(db DBTX) *AssetRepository {
	return &AssetRepository{db: db}
}

// ListActiveAssets returns every asset with status 'active', ordered by id so
// runs visit assets in a stable order.
func (r *AssetRepository) ListActiveAssets(ctx context.Context) ([]types.Asset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, store_id, status, last_maintenance_at, COALESCE(issue_notes, '')
		 FROM assets
		 WHERE status = 'active'
		 ORDER BY id`,
	)
	if err != nil {
		return nil, storeError("failed to list active assets", err)
	}
	defer rows.Close()

	var assets []types.Asset
	for rows.Next() {
		var a types.Asset
		if err := rows.Scan(&a.ID, &a.StoreID, &a.Status, &a.LastMaintenanceAt, &a.IssueNotes); err != nil {
			return nil, storeError("failed to scan asset", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating assets", err)
	}
	return assets, nil
}

// TelemetryWindow returns the asset's daily records with day >= since, oldest
// first.
func (r *AssetRepository) TelemetryWindow(ctx context.Context, assetID string, since time.Time) ([]types.TelemetryRecord, error) {
	query, args, err := psql.
		Select("asset_id", "day", "usage_hours", "issues_reported", "downtime_minutes", "maintenance_cost").
		From("telemetry_daily").
		Where(sq.Eq{"asset_id": assetID}).
		Where(sq.GtOrEq{"day": since}).
		OrderBy("day").
		ToSql()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build telemetry query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to query telemetry window", err)
	}
	defer rows.Close()

	var window []types.TelemetryRecord
	for rows.Next() {
		var rec types.TelemetryRecord
		if err := rows.Scan(
			&rec.AssetID,
			&rec.Day,
			&rec.UsageHours,
			&rec.IssuesReported,
			&rec.DowntimeMinutes,
			&rec.MaintenanceCost,
		); err != nil {
			return nil, storeError("failed to scan telemetry record", err)
		}
		window = append(window, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating telemetry", err)
	}
	return window, nil
}

// ListActiveAssetsWithTelemetry pairs every active asset with its telemetry
// from the last windowDays days before now. It issues one telemetry query per
// asset; a failure on any asset fails the whole call, so the scheduler uses
// the per-asset methods instead and this serves read-only reporting.
func (r *AssetRepository) ListActiveAssetsWithTelemetry(ctx context.Context, windowDays int, now time.Time) ([]types.AssetTelemetry, error) {
	assets, err := r.ListActiveAssets(ctx)
	if err != nil {
		return nil, err
	}

	since := risk.WindowStart(now, windowDays)
	out := make([]types.AssetTelemetry, 0, len(assets))
	for _, a := range assets {
		window, err := r.TelemetryWindow(ctx, a.ID, since)
		if err != nil {
			return nil, err
		}
		out = append(out, types.AssetTelemetry{Asset: a, Window: window})
	}
	return out, nil
}
