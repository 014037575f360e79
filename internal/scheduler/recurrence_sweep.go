package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fleetcare/internal/recurrence"
	"fleetcare/internal/types"
)

// RecurrenceDedupKey is the dedup key of the visit a rule generates for one
// due date.
func RecurrenceDedupKey(ruleID string, due time.Time) string {
	return fmt.Sprintf("recurrence:%s:%s", ruleID, due.UTC().Format(time.DateOnly))
}

// recurrenceSweep turns every due schedule rule into a routine visit and
// moves the rule forward. Rules are processed one at a time; the per-asset
// lock is shared with the risk sweep.
func (e *Engine) recurrenceSweep(ctx context.Context, logger *slog.Logger, now time.Time, t *tally) error {
	rules, err := callWithTimeout(ctx, e.cfg.StoreTimeout, func(c context.Context) ([]types.MaintenanceScheduleRule, error) {
		return e.deps.Schedules.ListDueScheduleRules(c, now)
	})
	if err != nil {
		return fmt.Errorf("listing due schedule rules: %w", err)
	}
	t.add(func(r *RunReport) { r.RulesDue = len(rules) })

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processRule(ctx, logger, rule, now, t); err != nil {
			return err
		}
	}
	return nil
}

// processRule returns an error only when the run must stop.
func (e *Engine) processRule(ctx context.Context, logger *slog.Logger, rule types.MaintenanceScheduleRule, now time.Time, t *tally) error {
	logger = logger.With("rule_id", rule.ID, "asset_id", rule.AssetID)

	if err := rule.Validate(); err != nil {
		logger.WarnContext(ctx, "skipping invalid schedule rule", "error", err)
		t.add(func(r *RunReport) { r.RuleErrors++ })
		return nil
	}

	next, err := recurrence.Advance(rule.RecurrenceType, rule.Frequency, rule.NextDueDate, now)
	if err != nil {
		logger.WarnContext(ctx, "skipping schedule rule: next due date", "error", err)
		t.add(func(r *RunReport) { r.RuleErrors++ })
		return nil
	}

	providerID, err := e.ruleProvider(ctx, rule)
	if err != nil {
		if cause := abortCause(ctx, err); cause != nil {
			return cause
		}
		logger.WarnContext(ctx, "skipping schedule rule: provider lookup failed", "store_id", rule.StoreID, "error", err)
		t.add(func(r *RunReport) { r.RuleErrors++ })
		return nil
	}
	if providerID == "" {
		logger.InfoContext(ctx, "schedule rule stays due: no active provider for store", "store_id", rule.StoreID)
		t.add(func(r *RunReport) { r.RulesSkippedNoProvider++ })
		return nil
	}

	unlock := e.locks.Lock(rule.AssetID)
	defer unlock()

	stored, created, err := e.createRequest(ctx, buildRecurrenceRequest(rule, providerID))
	if err != nil {
		if cause := abortCause(ctx, err); cause != nil {
			return cause
		}
		logger.ErrorContext(ctx, "failed to create scheduled visit", "error", err)
		t.add(func(r *RunReport) { r.RuleErrors++ })
		return nil
	}
	if created {
		logger.InfoContext(ctx, "scheduled visit created",
			"request_id", stored.ID,
			"provider_id", providerID,
			"scheduled_date", stored.ScheduledDate,
		)
		t.add(func(r *RunReport) { r.RecurrenceRequestsCreated++ })
	} else {
		logger.DebugContext(ctx, "scheduled visit already open", "request_id", idOf(stored))
		t.add(func(r *RunReport) { r.RecurrenceDuplicates++ })
	}

	advanced, err := callWithTimeout(ctx, e.cfg.StoreTimeout, func(c context.Context) (bool, error) {
		return e.deps.Schedules.AdvanceScheduleRule(c, rule.ID, next, now, rule.NextDueDate)
	})
	if err != nil {
		if cause := abortCause(ctx, err); cause != nil {
			return cause
		}
		logger.ErrorContext(ctx, "failed to advance schedule rule", "error", err)
		t.add(func(r *RunReport) { r.RuleErrors++ })
		return nil
	}
	if !advanced {
		logger.DebugContext(ctx, "schedule rule already advanced by a concurrent run")
		t.add(func(r *RunReport) { r.RulesAlreadyAdvanced++ })
		return nil
	}
	logger.InfoContext(ctx, "schedule rule advanced", "next_due_date", next)
	t.add(func(r *RunReport) { r.RulesAdvanced++ })
	return nil
}

// ruleProvider returns the rule's own provider or the store's active one.
// An empty result means none could be resolved.
func (e *Engine) ruleProvider(ctx context.Context, rule types.MaintenanceScheduleRule) (string, error) {
	if rule.ProviderID != nil && *rule.ProviderID != "" {
		return *rule.ProviderID, nil
	}
	id, found, err := e.resolveProvider(ctx, rule.StoreID)
	if err != nil || !found {
		return "", err
	}
	return id, nil
}

func buildRecurrenceRequest(rule types.MaintenanceScheduleRule, providerID string) *types.ServiceRequest {
	key := RecurrenceDedupKey(rule.ID, rule.NextDueDate)
	return &types.ServiceRequest{
		AssetID:       rule.AssetID,
		StoreID:       rule.StoreID,
		ProviderID:    &providerID,
		Category:      types.CategoryRoutine,
		Priority:      types.PriorityMedium,
		Status:        types.RequestPending,
		ScheduledDate: rule.NextDueDate,
		Description: fmt.Sprintf("Preventive maintenance every %d %s, due %s.",
			rule.Frequency, unitLabel(rule.RecurrenceType, rule.Frequency), rule.NextDueDate.UTC().Format(time.DateOnly)),
		Source:   types.SourceRecurrence,
		DedupKey: &key,
	}
}

func unitLabel(unit types.RecurrenceType, n int) string {
	var s string
	switch unit {
	case types.RecurrenceDaily:
		s = "day"
	case types.RecurrenceWeekly:
		s = "week"
	case types.RecurrenceMonthly:
		s = "month"
	case types.RecurrenceQuarterly:
		s = "quarter"
	case types.RecurrenceYearly:
		s = "year"
	default:
		return string(unit)
	}
	if n != 1 {
		s += "s"
	}
	return s
}
