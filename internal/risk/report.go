package risk

import (
	"sort"
	"time"

	"fleetcare/internal/types"
)

// Entry is one asset's row in a fleet risk report.
type Entry struct {
	AssetID string `json:"asset_id"`
	StoreID string `json:"store_id"`
	Assessment
}

// Rank scores every asset at now and orders the result by descending score,
// then asset ID. With actionableOnly, tiers below high are dropped.
func Rank(fleet []types.AssetTelemetry, now time.Time, actionableOnly bool) []Entry {
	entries := make([]Entry, 0, len(fleet))
	for _, at := range fleet {
		a := Evaluate(at.Window, at.Asset.LastMaintenanceAt, now)
		if actionableOnly && !a.Tier.RequiresAction() {
			continue
		}
		entries = append(entries, Entry{AssetID: at.Asset.ID, StoreID: at.Asset.StoreID, Assessment: a})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].AssetID < entries[j].AssetID
	})
	return entries
}
