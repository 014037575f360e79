package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"fleetcare/internal/types"
)

// ScheduleRuleRepository provides data access for the maintenance_schedules
// table.
type ScheduleRuleRepository struct {
	db DBTX
}

// NewScheduleRuleRepository creates a new ScheduleRuleRepository backed by
// the given database connection (pool or transaction).
func NewScheduleRuleRepository(db DBTX) *ScheduleRuleRepository {
	return &ScheduleRuleRepository{db: db}
}

// ListDueScheduleRules returns active rules whose next_due_date <= now,
// joined with the asset's store so callers can resolve a provider.
func (r *ScheduleRuleRepository) ListDueScheduleRules(ctx context.Context, now time.Time) ([]types.MaintenanceScheduleRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT ms.id, ms.asset_id, a.store_id, ms.provider_id, ms.recurrence_type,
		        ms.frequency, ms.next_due_date, ms.last_completed_date, ms.active
		 FROM maintenance_schedules ms
		 JOIN assets a ON a.id = ms.asset_id
		 WHERE ms.active AND ms.next_due_date <= $1
		 ORDER BY ms.next_due_date, ms.id`,
		now,
	)
	if err != nil {
		return nil, storeError("failed to list due schedule rules", err)
	}
	defer rows.Close()

	var rules []types.MaintenanceScheduleRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, storeError("failed to scan schedule rule", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating schedule rules", err)
	}
	return rules, nil
}

// GetScheduleRule returns a rule by id.
func (r *ScheduleRuleRepository) GetScheduleRule(ctx context.Context, id string) (*types.MaintenanceScheduleRule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx,
		`SELECT ms.id, ms.asset_id, a.store_id, ms.provider_id, ms.recurrence_type,
		        ms.frequency, ms.next_due_date, ms.last_completed_date, ms.active
		 FROM maintenance_schedules ms
		 JOIN assets a ON a.id = ms.asset_id
		 WHERE ms.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "schedule rule not found", nil)
		}
		return nil, storeError("failed to get schedule rule", err)
	}
	return rule, nil
}

// AdvanceScheduleRule moves a rule's next_due_date forward. The update only
// applies while next_due_date still equals expectedNextDue, so when two runs
// race on the same rule exactly one advances it. Returns false when the rule
// had already moved.
func (r *ScheduleRuleRepository) AdvanceScheduleRule(ctx context.Context, ruleID string, newNextDue, lastCompleted, expectedNextDue time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE maintenance_schedules
		 SET next_due_date = $2, last_completed_date = $3, updated_at = NOW()
		 WHERE id = $1 AND next_due_date = $4`,
		ruleID,
		newNextDue,
		lastCompleted,
		expectedNextDue,
	)
	if err != nil {
		return false, storeError("failed to advance schedule rule", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanRule(row pgx.Row) (*types.MaintenanceScheduleRule, error) {
	var (
		rule       types.MaintenanceScheduleRule
		recurrence string
	)
	if err := row.Scan(
		&rule.ID,
		&rule.AssetID,
		&rule.StoreID,
		&rule.ProviderID,
		&recurrence,
		&rule.Frequency,
		&rule.NextDueDate,
		&rule.LastCompletedDate,
		&rule.Active,
	); err != nil {
		return nil, err
	}
	rule.RecurrenceType = types.RecurrenceType(recurrence)
	return &rule, nil
}
