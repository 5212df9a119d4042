package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/transit-explorer/core/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteRepository reads snapshots from the poller's SQLite database
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens dbPath for reading
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// NewSQLiteRepositoryFromDB shares an open connection
func NewSQLiteRepositoryFromDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Ping checks the connection
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LatestBoard returns the newest persisted board for stopID
func (r *SQLiteRepository) LatestBoard(ctx context.Context, stopID string) (*models.DepartureBoard, error) {
	id, board, err := scanSnapshot(r.db.QueryRowContext(ctx, latestSnapshotQuery, stopID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, snapshotDeparturesQuery, id)
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

// RecentVehicles returns route vehicles polled at or after since
func (r *SQLiteRepository) RecentVehicles(ctx context.Context, routeID string, since time.Time) ([]models.VehiclePosition, error) {
	rows, err := r.db.QueryContext(ctx, recentVehiclesQuery, routeID, since.UTC().Format(time.RFC3339))
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
