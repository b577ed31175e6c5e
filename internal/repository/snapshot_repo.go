package repository

import (
	"context"
	"errors"
	"fmt"

	"greencredits/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrHistoryDisabled is returned when no database is configured.
var ErrHistoryDisabled = errors.New("snapshot history is not configured")

// SnapshotRepository records the totals of each dashboard load.
type SnapshotRepository interface {
	Save(ctx context.Context, rec *model.SnapshotRecord) error
	ListRecent(ctx context.Context, limit int) ([]model.SnapshotRecord, error)
}

const snapshotSchema = `
	CREATE TABLE IF NOT EXISTS dashboard_snapshots (
		id                          BIGSERIAL PRIMARY KEY,
		generation                  BIGINT NOT NULL,
		loaded_at                   TIMESTAMPTZ NOT NULL,
		total_users                 INTEGER NOT NULL,
		total_trips                 INTEGER NOT NULL,
		total_carbon_credits        DOUBLE PRECISION NOT NULL,
		failed_users                INTEGER NOT NULL,
		most_popular_transport_mode TEXT NOT NULL,
		created_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

type snapshotRepo struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepo creates a SnapshotRepository backed by Postgres.
func NewSnapshotRepo(pool *pgxpool.Pool) SnapshotRepository {
	return &snapshotRepo{pool: pool}
}

// EnsureSnapshotSchema creates the snapshot table if it does not exist.
func EnsureSnapshotSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, snapshotSchema); err != nil {
		return fmt.Errorf("creating dashboard_snapshots: %w", err)
	}
	return nil
}

func (r *snapshotRepo) Save(ctx context.Context, rec *model.SnapshotRecord) error {
	const q = `
		INSERT INTO dashboard_snapshots
			(generation, loaded_at, total_users, total_trips, total_carbon_credits, failed_users, most_popular_transport_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, q,
		int64(rec.Generation),
		rec.LoadedAt,
		rec.TotalUsers,
		rec.TotalTrips,
		rec.TotalCarbonCredits,
		rec.FailedUsers,
		rec.MostPopularTransportMode,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving snapshot for generation %d: %w", rec.Generation, err)
	}
	return nil
}

func (r *snapshotRepo) ListRecent(ctx context.Context, limit int) ([]model.SnapshotRecord, error) {
	const q = `
		SELECT id, generation, loaded_at, total_users, total_trips, total_carbon_credits,
		       failed_users, most_popular_transport_mode, created_at
		FROM dashboard_snapshots
		ORDER BY loaded_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	records := []model.SnapshotRecord{}
	for rows.Next() {
		var rec model.SnapshotRecord
		var generation int64
		if err := rows.Scan(
			&rec.ID,
			&generation,
			&rec.LoadedAt,
			&rec.TotalUsers,
			&rec.TotalTrips,
			&rec.TotalCarbonCredits,
			&rec.FailedUsers,
			&rec.MostPopularTransportMode,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		rec.Generation = uint64(generation)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return records, nil
}

type disabledSnapshotRepo struct{}

// NewDisabledSnapshotRepo is used when DB_CONNECTION_STRING is empty.
func NewDisabledSnapshotRepo() SnapshotRepository {
	return disabledSnapshotRepo{}
}

func (disabledSnapshotRepo) Save(context.Context, *model.SnapshotRecord) error {
	return ErrHistoryDisabled
}

func (disabledSnapshotRepo) ListRecent(context.Context, int) ([]model.SnapshotRecord, error) {
	return nil, ErrHistoryDisabled
}
