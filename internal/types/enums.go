package types

// AssetStatus represents the lifecycle state of a cart.
type AssetStatus string

const (
	AssetActive       AssetStatus = "active"
	AssetOutOfService AssetStatus = "out_of_service"
	AssetRetired      AssetStatus = "retired"
)

// RequestCategory classifies the kind of maintenance work.
type RequestCategory string

const (
	CategoryRoutine    RequestCategory = "routine"
	CategoryEmergency  RequestCategory = "emergency"
	CategoryInspection RequestCategory = "inspection"
	CategoryRepair     RequestCategory = "repair"
)

// RequestPriority orders service requests for dispatch.
type RequestPriority string

const (
	PriorityLow    RequestPriority = "low"
	PriorityMedium RequestPriority = "medium"
	PriorityHigh   RequestPriority = "high"
	PriorityUrgent RequestPriority = "urgent"
)

// RequestStatus represents the lifecycle state of a ServiceRequest.
//
//	pending -> scheduled -> in_progress -> completed
//	pending -> cancelled
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestScheduled  RequestStatus = "scheduled"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
)

// OpenRequestStatuses is the status set covered by the duplicate-prevention
// index. A request in one of these states blocks a second automated request
// with the same dedup key.
var OpenRequestStatuses = []RequestStatus{RequestPending, RequestScheduled}

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:    {RequestScheduled, RequestCancelled},
	RequestScheduled:  {RequestInProgress},
	RequestInProgress: {RequestCompleted},
}

// IsOpen reports whether the request still awaits a visit.
func (s RequestStatus) IsOpen() bool {
	return s == RequestPending || s == RequestScheduled
}

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RequestSource records which path created a ServiceRequest.
type RequestSource string

const (
	SourceManual     RequestSource = "manual"
	SourceRisk       RequestSource = "risk"
	SourceRecurrence RequestSource = "recurrence"
)

// RecurrenceType is the calendar unit of a MaintenanceScheduleRule.
type RecurrenceType string

const (
	RecurrenceDaily     RecurrenceType = "daily"
	RecurrenceWeekly    RecurrenceType = "weekly"
	RecurrenceMonthly   RecurrenceType = "monthly"
	RecurrenceQuarterly RecurrenceType = "quarterly"
	RecurrenceYearly    RecurrenceType = "yearly"
)

// NotificationKind identifies the abstract events raised to the Notifier.
type NotificationKind string

const (
	NotifyOverdue   NotificationKind = "overdue"
	NotifyUpcoming  NotificationKind = "upcoming"
	NotifyCompleted NotificationKind = "completed"
)
