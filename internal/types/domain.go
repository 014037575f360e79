package types

import "time"

// Asset is a tracked cart owned by a store.
type Asset struct {
	ID                string      `json:"id"`
	StoreID           string      `json:"store_id"`
	Status            AssetStatus `json:"status"`
	LastMaintenanceAt *time.Time  `json:"last_maintenance_at,omitempty"`
	IssueNotes        string      `json:"issue_notes,omitempty"`
}

// TelemetryRecord holds one calendar day of metrics for an asset.
// Records are immutable once written.
type TelemetryRecord struct {
	AssetID         string    `json:"asset_id"`
	Day             time.Time `json:"day"`
	UsageHours      float64   `json:"usage_hours"`
	IssuesReported  int       `json:"issues_reported"`
	DowntimeMinutes float64   `json:"downtime_minutes"`
	// MaintenanceCost is in currency minor units.
	MaintenanceCost int64 `json:"maintenance_cost"`
}

// AssetTelemetry pairs an asset with its rolling telemetry window.
type AssetTelemetry struct {
	Asset  Asset             `json:"asset"`
	Window []TelemetryRecord `json:"window"`
}

// ServiceRequest is a unit of maintenance work. Requests are never deleted,
// only transitioned.
type ServiceRequest struct {
	ID              string          `json:"id"`
	AssetID         string          `json:"asset_id" validate:"required"`
	StoreID         string          `json:"store_id" validate:"required"`
	ProviderID      *string         `json:"provider_id,omitempty"`
	Category        RequestCategory `json:"category" validate:"required,oneof=routine emergency inspection repair"`
	Priority        RequestPriority `json:"priority" validate:"required,oneof=low medium high urgent"`
	Status          RequestStatus   `json:"status" validate:"required,oneof=pending scheduled in_progress completed cancelled"`
	ScheduledDate   time.Time       `json:"scheduled_date" validate:"required"`
	CompletedDate   *time.Time      `json:"completed_date,omitempty"`
	Description     string          `json:"description" validate:"max=2000"`
	DurationMinutes *int            `json:"actual_duration_minutes,omitempty"`
	Cost            *int64          `json:"cost,omitempty"`
	Source          RequestSource   `json:"source" validate:"required,oneof=manual risk recurrence"`
	// DedupKey is set on automated requests. At most one open request may
	// carry a given key.
	DedupKey  *string   `json:"dedup_key,omitempty"`
	Advisory  *string   `json:"advisory,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MaintenanceScheduleRule is a preventive-maintenance recurrence bound to one
// asset and optionally one provider.
type MaintenanceScheduleRule struct {
	ID                string         `json:"id"`
	AssetID           string         `json:"asset_id"`
	StoreID           string         `json:"store_id"`
	ProviderID        *string        `json:"provider_id,omitempty"`
	RecurrenceType    RecurrenceType `json:"recurrence_type" validate:"required,oneof=daily weekly monthly quarterly yearly"`
	Frequency         int            `json:"frequency" validate:"min=1"`
	NextDueDate       time.Time      `json:"next_due_date"`
	LastCompletedDate *time.Time     `json:"last_completed_date,omitempty"`
	Active            bool           `json:"active"`
}

// NotificationEvent is the payload handed to the Notifier. Content and
// formatting are owned by the consumer.
type NotificationEvent struct {
	Kind       NotificationKind `json:"kind"`
	RequestIDs []string         `json:"request_ids"`
	WindowDays int              `json:"window_days,omitempty"`
	RaisedAt   time.Time        `json:"raised_at"`
	RunID      string           `json:"run_id,omitempty"`
}

// RequestFilter selects service requests for listing. Zero-valued fields are
// not applied.
type RequestFilter struct {
	Statuses        []RequestStatus
	ScheduledBefore *time.Time
	ScheduledFrom   *time.Time
	ScheduledUntil  *time.Time
	Limit           uint64
}
