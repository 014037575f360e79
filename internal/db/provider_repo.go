package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ProviderLinkRepository resolves the service provider partnered with a
// store.
type ProviderLinkRepository struct {
	db DBTX
}

// NewProviderLinkRepository creates a new ProviderLinkRepository.
func NewProviderLinkRepository(db DBTX) *ProviderLinkRepository {
	return &ProviderLinkRepository{db: db}
}

// ResolveActiveProvider returns the provider of the store's active link.
// When a store has several active links the oldest wins. ok is false when
// the store has none.
func (r *ProviderLinkRepository) ResolveActiveProvider(ctx context.Context, storeID string) (string, bool, error) {
	var providerID string
	err := r.db.QueryRow(ctx,
		`SELECT provider_id
		 FROM provider_links
		 WHERE store_id = $1 AND status = 'active'
		 ORDER BY created_at, provider_id
		 LIMIT 1`,
		storeID,
	).Scan(&providerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, storeError("failed to resolve provider link", err)
	}
	return providerID, true, nil
}
