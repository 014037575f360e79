package types

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the request's required fields and enum values before it is
// persisted.
func (r *ServiceRequest) Validate() error {
	if err := structValidator().Struct(r); err != nil {
		return NewAppError(ErrCodeValidationRequest, "service request failed validation", err)
	}
	if r.CompletedDate != nil && r.Status != RequestCompleted {
		return NewAppError(ErrCodeValidationRequest,
			fmt.Sprintf("completed_date set on %s request", r.Status), nil)
	}
	if r.Source != SourceManual && (r.DedupKey == nil || *r.DedupKey == "") {
		return NewAppError(ErrCodeValidationMissingField,
			fmt.Sprintf("automated %s request requires a dedup key", r.Source), nil)
	}
	return nil
}

// Validate checks the rule's recurrence definition.
func (r *MaintenanceScheduleRule) Validate() error {
	if err := structValidator().Struct(r); err != nil {
		return NewAppError(ErrCodeValidationRecurrence, "schedule rule failed validation", err)
	}
	return nil
}

// ValidateTransition returns an error when moving a request from one status to
// another is not a legal lifecycle step.
func ValidateTransition(from, to RequestStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	return NewAppError(ErrCodeValidationTransition,
		fmt.Sprintf("cannot transition service request from %s to %s", from, to), nil)
}
