package db

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fleetcare/internal/types"
)

const requestColumns = `id, asset_id, store_id, provider_id, category, priority, status,
	scheduled_date, completed_date, COALESCE(description, ''), actual_duration_minutes,
	cost, source, dedup_key, advisory, created_at`

var requestColumnList = []string{
	"id", "asset_id", "store_id", "provider_id", "category", "priority", "status",
	"scheduled_date", "completed_date", "COALESCE(description, '')", "actual_duration_minutes",
	"cost", "source", "dedup_key", "advisory", "created_at",
}

// ServiceRequestRepository provides data access for the service_requests
// table. Creation is idempotent per dedup key: the partial unique index
// ux_service_requests_open_dedup allows one open request per key, and the
// create transaction serializes callers on an advisory lock for that key.
type ServiceRequestRepository struct {
	db TxDB
}

// NewServiceRequestRepository creates a new ServiceRequestRepository. The
// connection must support transactions (normally *pgxpool.Pool).
func NewServiceRequestRepository(db TxDB) *ServiceRequestRepository {
	return &ServiceRequestRepository{db: db}
}

// FindOpenRequest returns the asset's oldest pending or scheduled request,
// whatever created it, or nil when there is none.
func (r *ServiceRequestRepository) FindOpenRequest(ctx context.Context, assetID string) (*types.ServiceRequest, error) {
	req, err := scanRequest(r.db.QueryRow(ctx,
		`SELECT `+requestColumns+`
		 FROM service_requests
		 WHERE asset_id = $1
		   AND status IN ('pending', 'scheduled')
		 ORDER BY created_at
		 LIMIT 1`,
		assetID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("failed to find open request", err)
	}
	return req, nil
}

// GetServiceRequest returns a request by id.
func (r *ServiceRequestRepository) GetServiceRequest(ctx context.Context, id string) (*types.ServiceRequest, error) {
	req, err := scanRequest(r.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM service_requests WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRequest, "service request not found", nil)
		}
		return nil, storeError("failed to get service request", err)
	}
	return req, nil
}

// CreateServiceRequest inserts req unless an open request with the same
// dedup key already exists. It returns the stored row and whether this call
// created it. A duplicate is not an error: the existing row is returned with
// created=false.
//
// Flow inside one transaction:
//
//	SELECT pg_advisory_xact_lock(hashtext(dedup_key))
//	SELECT ... WHERE dedup_key = $1 AND status IN ('pending','scheduled')
//	INSERT ... ON CONFLICT (dedup_key) WHERE <open> DO NOTHING RETURNING ...
//
// The lock makes concurrent callers queue behind each other; the index is
// the backstop for writers that do not take the lock.
func (r *ServiceRequestRepository) CreateServiceRequest(ctx context.Context, req *types.ServiceRequest) (*types.ServiceRequest, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, storeError("failed to begin request transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if req.DedupKey != nil {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, *req.DedupKey); err != nil {
			return nil, false, storeError("failed to lock dedup key", err)
		}
		existing, err := findOpenByKey(ctx, tx, *req.DedupKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	stored := *req
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO service_requests
		 (id, asset_id, store_id, provider_id, category, priority, status,
		  scheduled_date, completed_date, description, actual_duration_minutes,
		  cost, source, dedup_key, advisory, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		 ON CONFLICT (dedup_key) WHERE status IN ('pending', 'scheduled') AND dedup_key IS NOT NULL
		 DO NOTHING
		 RETURNING created_at`,
		stored.ID,
		stored.AssetID,
		stored.StoreID,
		stored.ProviderID,
		string(stored.Category),
		string(stored.Priority),
		string(stored.Status),
		stored.ScheduledDate,
		stored.CompletedDate,
		stored.Description,
		stored.DurationMinutes,
		stored.Cost,
		string(stored.Source),
		stored.DedupKey,
		stored.Advisory,
	).Scan(&stored.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) && stored.DedupKey != nil {
			existing, findErr := findOpenByKey(ctx, tx, *stored.DedupKey)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, storeError("failed to insert service request", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, storeError("failed to commit service request", err)
	}
	return &stored, true, nil
}

// ListRequests returns requests matching f ordered by scheduled date.
func (r *ServiceRequestRepository) ListRequests(ctx context.Context, f types.RequestFilter) ([]types.ServiceRequest, error) {
	q := psql.Select(requestColumnList...).From("service_requests").OrderBy("scheduled_date", "id")

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where(sq.Eq{"status": statuses})
	}
	if f.ScheduledBefore != nil {
		q = q.Where(sq.Lt{"scheduled_date": *f.ScheduledBefore})
	}
	if f.ScheduledFrom != nil {
		q = q.Where(sq.GtOrEq{"scheduled_date": *f.ScheduledFrom})
	}
	if f.ScheduledUntil != nil {
		q = q.Where(sq.LtOrEq{"scheduled_date": *f.ScheduledUntil})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build request query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to list service requests", err)
	}
	defer rows.Close()

	var out []types.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, storeError("failed to scan service request", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating service requests", err)
	}
	return out, nil
}

func findOpenByKey(ctx context.Context, db DBTX, key string) (*types.ServiceRequest, error) {
	req, err := scanRequest(db.QueryRow(ctx,
		`SELECT `+requestColumns+`
		 FROM service_requests
		 WHERE dedup_key = $1 AND status IN ('pending', 'scheduled')`,
		key,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("failed to look up request by dedup key", err)
	}
	return req, nil
}

func scanRequest(row pgx.Row) (*types.ServiceRequest, error) {
	var (
		req                        types.ServiceRequest
		category, priority, status string
		source                     string
	)
	if err := row.Scan(
		&req.ID,
		&req.AssetID,
		&req.StoreID,
		&req.ProviderID,
		&category,
		&priority,
		&status,
		&req.ScheduledDate,
		&req.CompletedDate,
		&req.Description,
		&req.DurationMinutes,
		&req.Cost,
		&source,
		&req.DedupKey,
		&req.Advisory,
		&req.CreatedAt,
	); err != nil {
		return nil, err
	}
	req.Category = types.RequestCategory(category)
	req.Priority = types.RequestPriority(priority)
	req.Status = types.RequestStatus(status)
	req.Source = types.RequestSource(source)
	return &req, nil
}
