package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type AvailabilityRepo struct {
	db *bun.DB
}

func NewAvailabilityRepo(db *bun.DB) *AvailabilityRepo {
	return &AvailabilityRepo{db: db}
}

func (r *AvailabilityRepo) UpsertAvailability(ctx context.Context, av domain.Availability) (domain.Availability, error) {
	m := av
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (provider_id) DO UPDATE").
		Set("windows = EXCLUDED.windows").
		Set("timezone = EXCLUDED.timezone").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Availability{}, err
	}
	return m, nil
}

func (r *AvailabilityRepo) GetAvailability(ctx context.Context, providerID string) (domain.Availability, error) {
	return getAvailability(ctx, r.db, providerID)
}

func getAvailability(ctx context.Context, db bun.IDB, providerID string) (domain.Availability, error) {
	var av domain.Availability
	err := db.NewSelect().
		Model(&av).
		Where("provider_id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Availability{}, store.ErrNotFound
		}
		return domain.Availability{}, err
	}
	return av, nil
}
