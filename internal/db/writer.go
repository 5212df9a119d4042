package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/transit-explorer/core/internal/models"
)

// SaveBoard stores a departure board snapshot and returns its id
func (db *DB) SaveBoard(ctx context.Context, board models.DepartureBoard) (string, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	snapshotID := uuid.New().String()
	_, err = tx.ExecContext(ctx, db.rebind(`
		INSERT INTO board_snapshots (snapshot_id, stop_id, polled_at_utc, live_available, departure_count)
		VALUES (?, ?, ?, ?, ?)
	`), snapshotID, board.Stop.ID, formatTime(board.GeneratedAt), boolInt(board.LiveAvailable), len(board.Departures))
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(`
		INSERT INTO board_departures (
			snapshot_id, position, route, route_id, departure_utc,
			is_live, synthetic, destination, vehicle_id, eta_mins
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return "", fmt.Errorf("failed to prepare departure statement: %w", err)
	}
	defer stmt.Close()

	for i, d := range board.Departures {
		_, err := stmt.ExecContext(ctx,
			snapshotID, i, d.Route, nullString(d.RouteID), formatTime(d.Time),
			boolInt(d.IsLive), boolInt(d.Synthetic), nullString(d.Destination), nullString(d.VehicleID), d.ETAMins,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert departure %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return snapshotID, nil
}

// UpsertVehiclePositions refreshes the current table and appends history
func (db *DB) UpsertVehiclePositions(ctx context.Context, polledAt time.Time, positions []models.VehiclePosition) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	currentStmt, err := tx.PrepareContext(ctx, db.rebind(`
		INSERT INTO vehicle_current (
			vehicle_key, vehicle_id, route_id, latitude, longitude, bearing,
			speed, is_halted, vehicle_timestamp_utc, polled_at_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (vehicle_key) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			bearing = excluded.bearing,
			speed = excluded.speed,
			is_halted = excluded.is_halted,
			vehicle_timestamp_utc = excluded.vehicle_timestamp_utc,
			polled_at_utc = excluded.polled_at_utc
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare current statement: %w", err)
	}
	defer currentStmt.Close()

	historyStmt, err := tx.PrepareContext(ctx, db.rebind(`
		INSERT INTO vehicle_history (
			vehicle_key, vehicle_timestamp_utc, route_id, latitude, longitude, is_halted, polled_at_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (vehicle_key, vehicle_timestamp_utc) DO NOTHING
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare history statement: %w", err)
	}
	defer historyStmt.Close()

	polledAtStr := formatTime(polledAt)
	for _, p := range positions {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid position %s: %w", p.VehicleID, err)
		}
		key := VehicleKey(p.RouteID, p.VehicleID)
		ts := formatTime(p.Timestamp)

		_, err := currentStmt.ExecContext(ctx,
			key, p.VehicleID, p.RouteID, p.Latitude, p.Longitude, p.Bearing,
			p.Speed, boolInt(p.IsHalted), ts, polledAtStr,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert position %s: %w", key, err)
		}

		_, err = historyStmt.ExecContext(ctx,
			key, ts, p.RouteID, p.Latitude, p.Longitude, boolInt(p.IsHalted), polledAtStr,
		)
		if err != nil {
			return fmt.Errorf("failed to insert history %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// VehicleKey identifies a vehicle on a route
func VehicleKey(routeID, vehicleID string) string {
	return routeID + ":" + vehicleID
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
