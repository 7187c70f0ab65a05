package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// ConfigRepository is the Config Store: one record per well-known key.
type ConfigRepository interface {
	Get(ctx context.Context, key string) (*domain.ConfigRecord, error)
	Upsert(ctx context.Context, rec *domain.ConfigRecord) error
}

type configRepository struct {
	pool *pgxpool.Pool
}

// NewConfigRepository instantiates the postgres-backed config store.
func NewConfigRepository(pool *pgxpool.Pool) ConfigRepository {
	return &configRepository{pool: pool}
}

func (r *configRepository) Get(ctx context.Context, key string) (*domain.ConfigRecord, error) {
	const query = `
        SELECT key, claim_limit, enforce_on_claim, override_roles, updated_at
        FROM ticket_settings WHERE key=$1`
	var rec domain.ConfigRecord
	if err := r.pool.QueryRow(ctx, query, key).Scan(
		&rec.Key,
		&rec.ClaimLimit,
		&rec.EnforceOnClaim,
		&rec.OverrideRoles,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if rec.OverrideRoles == nil {
		rec.OverrideRoles = []string{}
	}
	return &rec, nil
}

func (r *configRepository) Upsert(ctx context.Context, rec *domain.ConfigRecord) error {
	const query = `
        INSERT INTO ticket_settings (key, claim_limit, enforce_on_claim, override_roles, updated_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (key) DO UPDATE SET
            claim_limit = EXCLUDED.claim_limit,
            enforce_on_claim = EXCLUDED.enforce_on_claim,
            override_roles = EXCLUDED.override_roles,
            updated_at = EXCLUDED.updated_at`
	roles := rec.OverrideRoles
	if roles == nil {
		roles = []string{}
	}
	_, err := r.pool.Exec(ctx, query, rec.Key, rec.ClaimLimit, rec.EnforceOnClaim, roles, rec.UpdatedAt)
	return err
}
