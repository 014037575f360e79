// Package scheduler implements the maintenance risk engine: a batch run that
// advances due preventive-maintenance rules, scores every active cart's
// failure risk, opens inspection requests exactly once per condition, and
// raises notification events.
package scheduler

import (
	"time"
)

// JobTypeMaintenanceRun is the job_history job_type for Engine runs.
const JobTypeMaintenanceRun = "maintenance_run"

// RunPayload is the JSON event accepted by the Lambda and HTTP triggers.
//
//	{
//	  "reference_time": "2026-02-06T03:00:00Z"  // optional
//	}
type RunPayload struct {
	// ReferenceTime overrides "now" for backfills and deterministic reruns.
	// If nil, time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// RunReport summarizes one run. Counts are the monitoring surface for
// operators.
type RunReport struct {
	RunID         string        `json:"run_id"`
	ReferenceTime time.Time     `json:"reference_time"`
	Duration      time.Duration `json:"duration_ns"`

	// Risk sweep.
	AssetsScanned         int `json:"assets_scanned"`
	AssetsEvaluated       int `json:"assets_evaluated"`
	HighRisk              int `json:"high_risk"`
	RequestsCreated       int `json:"requests_created"`
	Duplicates            int `json:"duplicates"`
	SkippedNoProvider     int `json:"skipped_no_provider"`
	SkippedTelemetryError int `json:"skipped_telemetry_error"`
	SkippedLookupError    int `json:"skipped_lookup_error"`
	SkippedProviderError  int `json:"skipped_provider_error"`
	CreateFailures        int `json:"create_failures"`
	AdvisoryFailures      int `json:"advisory_failures"`

	// Recurrence sweep.
	RulesDue                  int `json:"rules_due"`
	RecurrenceRequestsCreated int `json:"recurrence_requests_created"`
	RecurrenceDuplicates      int `json:"recurrence_duplicates"`
	RulesAdvanced             int `json:"rules_advanced"`
	RulesAlreadyAdvanced      int `json:"rules_already_advanced"`
	RulesSkippedNoProvider    int `json:"rules_skipped_no_provider"`
	RuleErrors                int `json:"rule_errors"`

	// Notifications.
	NotificationsSent   int `json:"notifications_sent"`
	NotificationsFailed int `json:"notifications_failed"`
}

// Counts returns every counter keyed by its JSON name.
func (r RunReport) Counts() map[string]int {
	return map[string]int{
		"assets_scanned":              r.AssetsScanned,
		"assets_evaluated":            r.AssetsEvaluated,
		"high_risk":                   r.HighRisk,
		"requests_created":            r.RequestsCreated,
		"duplicates":                  r.Duplicates,
		"skipped_no_provider":         r.SkippedNoProvider,
		"skipped_telemetry_error":     r.SkippedTelemetryError,
		"skipped_lookup_error":        r.SkippedLookupError,
		"skipped_provider_error":      r.SkippedProviderError,
		"create_failures":             r.CreateFailures,
		"advisory_failures":           r.AdvisoryFailures,
		"rules_due":                   r.RulesDue,
		"recurrence_requests_created": r.RecurrenceRequestsCreated,
		"recurrence_duplicates":       r.RecurrenceDuplicates,
		"rules_advanced":              r.RulesAdvanced,
		"rules_already_advanced":      r.RulesAlreadyAdvanced,
		"rules_skipped_no_provider":   r.RulesSkippedNoProvider,
		"rule_errors":                 r.RuleErrors,
		"notifications_sent":          r.NotificationsSent,
		"notifications_failed":        r.NotificationsFailed,
	}
}

// Created is the number of requests this run opened.
func (r RunReport) Created() int {
	return r.RequestsCreated + r.RecurrenceRequestsCreated
}
