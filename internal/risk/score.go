// Package risk maps an asset's recent telemetry to a failure-risk score and
// tier. Everything here is pure: no I/O, no clock reads.
package risk

import (
	"fmt"
	"math"
	"time"

	"fleetcare/internal/types"
)

// Tier is the four-level classification derived from a score.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// RequiresAction reports whether the tier warrants an automated inspection.
func (t Tier) RequiresAction() bool {
	return t == TierHigh || t == TierCritical
}

// NeverServicedDays is used for assets with no recorded maintenance.
const NeverServicedDays = 999

const (
	MinScore = 0
	MaxScore = 100
)

// Step awards Points when the observed value is strictly greater than Above.
type Step struct {
	Above  float64
	Points int
}

// Factor is one independently scored bucket. Steps are ordered from the
// highest threshold down; the first match wins.
type Factor struct {
	Name  string
	Steps []Step
}

func (f Factor) points(v float64) int {
	for _, s := range f.Steps {
		if v > s.Above {
			return s.Points
		}
	}
	return 0
}

// Thresholds is the scoring table. Treat as read-only.
var Thresholds = struct {
	Usage     Factor
	Issues    Factor
	Downtime  Factor
	Staleness Factor
}{
	Usage:     Factor{Name: "usage_hours", Steps: []Step{{200, 30}, {150, 20}, {100, 10}}},
	Issues:    Factor{Name: "issues_reported", Steps: []Step{{5, 30}, {3, 20}, {1, 10}}},
	Downtime:  Factor{Name: "avg_downtime_minutes", Steps: []Step{{120, 20}, {60, 15}, {30, 10}}},
	Staleness: Factor{Name: "days_since_maintenance", Steps: []Step{{90, 20}, {60, 15}, {30, 10}}},
}

// tierFloors is checked top-down.
var tierFloors = []struct {
	min  int
	tier Tier
}{
	{75, TierCritical},
	{50, TierHigh},
	{25, TierMedium},
}

// Inputs are the aggregates a score is computed from.
type Inputs struct {
	UsageHours           float64 `json:"usage_hours"`
	Issues               int     `json:"issues"`
	AvgDowntimeMinutes   float64 `json:"avg_downtime_minutes"`
	DaysSinceMaintenance int     `json:"days_since_maintenance"`
}

// Assessment is the transient result of scoring one asset.
type Assessment struct {
	Score  int    `json:"score"`
	Tier   Tier   `json:"tier"`
	Inputs Inputs `json:"inputs"`
}

// Summary renders the triggering metrics as one line. It is embedded in
// request descriptions and sent to the advisory generator.
func (a Assessment) Summary() string {
	return fmt.Sprintf("risk score %d (%s): %d issues reported, %.1f min average downtime, %d days since last maintenance, %.1f usage hours",
		a.Score, a.Tier, a.Inputs.Issues, a.Inputs.AvgDowntimeMinutes, a.Inputs.DaysSinceMaintenance, a.Inputs.UsageHours)
}

// TierFor maps a score onto its tier.
func TierFor(score int) Tier {
	for _, f := range tierFloors {
		if score >= f.min {
			return f.tier
		}
	}
	return TierLow
}

// Score computes the additive risk score. It is total: negative or NaN
// inputs count as zero.
func Score(usageHours float64, issues int, avgDowntimeMinutes float64, daysSinceMaintenance int) Assessment {
	in := Inputs{
		UsageHours:           nonNegative(usageHours),
		Issues:               max(issues, 0),
		AvgDowntimeMinutes:   nonNegative(avgDowntimeMinutes),
		DaysSinceMaintenance: max(daysSinceMaintenance, 0),
	}

	total := Thresholds.Usage.points(in.UsageHours) +
		Thresholds.Issues.points(float64(in.Issues)) +
		Thresholds.Downtime.points(in.AvgDowntimeMinutes) +
		Thresholds.Staleness.points(float64(in.DaysSinceMaintenance))
	total = min(max(total, MinScore), MaxScore)

	return Assessment{Score: total, Tier: TierFor(total), Inputs: in}
}

// Aggregate reduces a telemetry window to scoring inputs. Average downtime is
// taken over the records present; an empty window averages to zero.
func Aggregate(window []types.TelemetryRecord, lastMaintenance *time.Time, now time.Time) Inputs {
	var in Inputs
	var downtime float64
	for _, r := range window {
		in.UsageHours += nonNegative(r.UsageHours)
		in.Issues += max(r.IssuesReported, 0)
		downtime += nonNegative(r.DowntimeMinutes)
	}
	if len(window) > 0 {
		in.AvgDowntimeMinutes = downtime / float64(len(window))
	}
	in.DaysSinceMaintenance = DaysSince(lastMaintenance, now)
	return in
}

// Evaluate aggregates the window and scores it.
func Evaluate(window []types.TelemetryRecord, lastMaintenance *time.Time, now time.Time) Assessment {
	in := Aggregate(window, lastMaintenance, now)
	return Score(in.UsageHours, in.Issues, in.AvgDowntimeMinutes, in.DaysSinceMaintenance)
}

// DaysSince returns whole elapsed days, floored and never negative.
// A nil timestamp yields NeverServicedDays.
func DaysSince(t *time.Time, now time.Time) int {
	if t == nil {
		return NeverServicedDays
	}
	d := now.Sub(*t)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// WindowStart returns the first calendar day (UTC midnight) of a window of
// windowDays days ending on now's day.
func WindowStart(now time.Time, windowDays int) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(windowDays - 1))
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
