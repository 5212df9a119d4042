package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transit-explorer/core/internal/db"
	"github.com/transit-explorer/core/internal/models"
)

// PostgresRepository reads snapshots from Postgres through a pgx pool
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) LatestBoard(ctx context.Context, stopID string) (*models.DepartureBoard, error) {
	id, board, err := scanSnapshot(r.pool.QueryRow(ctx, db.Rebind(db.Postgres, latestSnapshotQuery), stopID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	rows, err := r.pool.Query(ctx, db.Rebind(db.Postgres, snapshotDeparturesQuery), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query departures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDeparture(rows)
		if err != nil {
			return nil, err
		}
		board.Departures = append(board.Departures, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &board, nil
}

func (r *PostgresRepository) RecentVehicles(ctx context.Context, routeID string, since time.Time) ([]models.VehiclePosition, error) {
	rows, err := r.pool.Query(ctx, db.Rebind(db.Postgres, recentVehiclesQuery), routeID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	vehicles := []models.VehiclePosition{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}
