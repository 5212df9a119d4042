// Package realtime defines the live data collaborators and the rules every
// live feed client applies before handing records to the board.
package realtime

import (
	"context"
	"time"

	"github.com/transit-explorer/core/internal/models"
)

const (
	// MaxRecordAge drops arrival records whose source timestamp is older
	MaxRecordAge = 60 * time.Minute
	// MaxVehicleAge drops vehicle fixes older than this
	MaxVehicleAge = 10 * time.Minute
	// UnknownETA is the feed's marker for "no estimate"
	UnknownETA = -1
)

// ArrivalSource yields live arrival estimates for a stop
type ArrivalSource interface {
	FetchArrivals(ctx context.Context, stopID string) ([]models.LiveArrival, error)
}

// VehicleSource yields current vehicle positions for a route
type VehicleSource interface {
	FetchVehicles(ctx context.Context, routeID string) ([]models.VehiclePosition, error)
}

// Observer receives per-fetch telemetry from feed clients. Optional.
type Observer interface {
	ObserveFetch(source string, d time.Duration, err error)
	ObserveSkipped(source string, n int)
	ObserveRecordAge(source string, age time.Duration)
}

// Usable applies the hard upstream rule shared by all arrival feeds
func Usable(reportedAt time.Time, etaSecs int, now time.Time) bool {
	if etaSecs == UnknownETA {
		return false
	}
	return now.Sub(reportedAt) <= MaxRecordAge
}

// FreshVehicle reports whether a vehicle fix is recent enough to show
func FreshVehicle(reportedAt, now time.Time) bool {
	return now.Sub(reportedAt) <= MaxVehicleAge
}

// ETAMinutes rounds the time remaining until at down to whole minutes,
// never below zero.
func ETAMinutes(at, now time.Time) int {
	d := at.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
