package db

import (
	"context"
	"time"

	"fleetcare/internal/types"
)

// Job history statuses.
const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// JobHistoryRepository records one row per scheduler run in job_history for
// operational visibility.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository backed by the
// given database connection (pool or transaction).
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a 'running' row and returns its BIGSERIAL id. referenceTime
// is the run's injected "now", which differs from started_at on backfills.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType, runID string, referenceTime time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, run_id, reference_time, started_at, status)
		 VALUES ($1, $2, $3, NOW(), 'running')
		 RETURNING id`,
		jobType,
		runID,
		referenceTime,
	).Scan(&id)
	if err != nil {
		return 0, storeError("failed to start job history entry", err)
	}
	return id, nil
}

// Finish stamps the row with the outcome. report is the run summary as JSON
// and may be nil. If jobErr is non-nil its message is stored.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, report []byte, jobErr error) error {
	var errMsg *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, items_count = $3, report = $4, error = $5
		 WHERE id = $1`,
		id,
		status,
		items,
		report,
		errMsg,
	)
	if err != nil {
		return storeError("failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}
