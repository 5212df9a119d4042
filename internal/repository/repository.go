// Package repository reads snapshots the poller persisted, from SQLite or
// Postgres.
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/transit-explorer/core/internal/models"
)

// ErrNotFound is returned when no snapshot exists for the requested key
var ErrNotFound = errors.New("not found")

const (
	latestSnapshotQuery = `
		SELECT snapshot_id, stop_id, polled_at_utc, live_available
		FROM board_snapshots
		WHERE stop_id = ?
		ORDER BY polled_at_utc DESC
		LIMIT 1
	`
	snapshotDeparturesQuery = `
		SELECT route, route_id, departure_utc, is_live, synthetic, destination, vehicle_id, eta_mins
		FROM board_departures
		WHERE snapshot_id = ?
		ORDER BY position
	`
	recentVehiclesQuery = `
		SELECT vehicle_id, route_id, latitude, longitude, bearing, speed, is_halted, vehicle_timestamp_utc
		FROM vehicle_current
		WHERE route_id = ? AND polled_at_utc >= ?
		ORDER BY vehicle_id
	`
)

// scanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(s scanner) (string, models.DepartureBoard, error) {
	var (
		id, stopID, polledAt string
		live                 int
	)
	if err := s.Scan(&id, &stopID, &polledAt, &live); err != nil {
		return "", models.DepartureBoard{}, err
	}
	at, err := parseTime(polledAt)
	if err != nil {
		return "", models.DepartureBoard{}, err
	}
	return id, models.DepartureBoard{
		Stop:          models.Stop{ID: stopID},
		GeneratedAt:   at,
		LiveAvailable: live != 0,
		Departures:    []models.Departure{},
	}, nil
}

func scanDeparture(s scanner) (models.Departure, error) {
	var (
		d                    models.Departure
		routeID, dest, vehID *string
		at                   string
		live, synthetic      int
	)
	if err := s.Scan(&d.Route, &routeID, &at, &live, &synthetic, &dest, &vehID, &d.ETAMins); err != nil {
		return d, fmt.Errorf("failed to scan departure: %w", err)
	}
	t, err := parseTime(at)
	if err != nil {
		return d, err
	}
	d.Time = t
	d.IsLive = live != 0
	d.Synthetic = synthetic != 0
	d.RouteID = deref(routeID)
	d.Destination = deref(dest)
	d.VehicleID = deref(vehID)
	return d, nil
}

func scanVehicle(s scanner) (models.VehiclePosition, error) {
	var (
		v      models.VehiclePosition
		halted int
		ts     string
	)
	if err := s.Scan(&v.VehicleID, &v.RouteID, &v.Latitude, &v.Longitude, &v.Bearing, &v.Speed, &halted, &ts); err != nil {
		return v, fmt.Errorf("failed to scan vehicle: %w", err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return v, err
	}
	v.Timestamp = t
	v.IsHalted = halted != 0
	return v, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
