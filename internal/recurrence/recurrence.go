// Package recurrence computes due dates for preventive-maintenance rules.
//
// Calendar units (monthly, quarterly, yearly) clamp to the last day of the
// target month when the reference day does not exist there:
//
//	2024-01-31 + 1 month  -> 2024-02-29
//	2023-01-31 + 1 month  -> 2023-02-28
//	2024-02-29 + 1 year   -> 2025-02-28
//
// Time of day and location are carried over unchanged.
package recurrence

import (
	"fmt"
	"time"

	"fleetcare/internal/types"
)

// maxCatchUp bounds Advance so a corrupt due date cannot spin forever.
const maxCatchUp = 10_000

// NextDueDate adds frequency units of unit to ref.
func NextDueDate(unit types.RecurrenceType, frequency int, ref time.Time) (time.Time, error) {
	if frequency < 1 {
		return time.Time{}, types.NewAppError(types.ErrCodeValidationRecurrence,
			fmt.Sprintf("frequency must be positive, got %d", frequency), nil)
	}

	switch unit {
	case types.RecurrenceDaily:
		return ref.AddDate(0, 0, frequency), nil
	case types.RecurrenceWeekly:
		return ref.AddDate(0, 0, 7*frequency), nil
	case types.RecurrenceMonthly:
		return addMonthsClamped(ref, frequency), nil
	case types.RecurrenceQuarterly:
		return addMonthsClamped(ref, 3*frequency), nil
	case types.RecurrenceYearly:
		return addMonthsClamped(ref, 12*frequency), nil
	default:
		return time.Time{}, types.NewAppError(types.ErrCodeValidationRecurrence,
			fmt.Sprintf("unknown recurrence type %q", unit), nil)
	}
}

// Advance steps forward from due until the result is strictly after now.
// A rule that missed several ticks therefore lands on its next future
// occurrence instead of producing one visit per missed period.
func Advance(unit types.RecurrenceType, frequency int, due, now time.Time) (time.Time, error) {
	next := due
	for i := 0; i < maxCatchUp; i++ {
		var err error
		next, err = NextDueDate(unit, frequency, next)
		if err != nil {
			return time.Time{}, err
		}
		if next.After(now) {
			return next, nil
		}
	}
	return time.Time{}, types.NewAppError(types.ErrCodeValidationRecurrence,
		fmt.Sprintf("due date %s is too far behind %s", due.Format(time.DateOnly), now.Format(time.DateOnly)), nil)
}

// Preview lists the next n due dates after from.
func Preview(unit types.RecurrenceType, frequency int, from time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, max(n, 0))
	cur := from
	for range n {
		next, err := NextDueDate(unit, frequency, cur)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		cur = next
	}
	return out, nil
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	ty := y + total/12
	tm := time.Month(total%12 + 1)

	if last := daysIn(ty, tm); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(ty, tm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
