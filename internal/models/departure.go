package models

import (
	"errors"
	"time"
)

// Departure is one row of a departure board. Built fresh on every refresh
// and replaced wholesale; never mutated once constructed.
type Departure struct {
	Route       string    `json:"route"`
	RouteID     string    `json:"routeId,omitempty"`
	Time        time.Time `json:"time"`
	IsLive      bool      `json:"isLive"`
	Destination string    `json:"destination,omitempty"`
	AgencyName  string    `json:"agency,omitempty"`
	VehicleID   string    `json:"vehicleId,omitempty"` // empty when unknown
	ETAMins     *int      `json:"etaMins,omitempty"`
	FareType    string    `json:"fareType,omitempty"`
	Synthetic   bool      `json:"synthetic,omitempty"`
	ACService   bool      `json:"acService,omitempty"`

	// StalenessMins is the age of the live estimate at board build time
	StalenessMins *int `json:"stalenessMins,omitempty"`
}

// LiveArrival is an upstream arrival estimate for a stop
type LiveArrival struct {
	Route          string    `json:"route"`
	RouteID        string    `json:"routeId"`
	TripID         string    `json:"tripId,omitempty"`
	Time           time.Time `json:"time"`
	ETAMins        int       `json:"etaMins"`
	VehicleID      string    `json:"vehicleId,omitempty"`
	Destination    string    `json:"destination,omitempty"`
	Timestamp      time.Time `json:"timestamp"` // source-reported
	UpdatedMinsAgo int       `json:"updatedMinsAgo"`
}

// ToDeparture converts the estimate into a board row
func (a LiveArrival) ToDeparture() Departure {
	eta := a.ETAMins
	stale := a.UpdatedMinsAgo
	return Departure{
		Route:         a.Route,
		RouteID:       a.RouteID,
		Time:          a.Time,
		IsLive:        true,
		Destination:   a.Destination,
		VehicleID:     a.VehicleID,
		ETAMins:       &eta,
		StalenessMins: &stale,
	}
}

// VehiclePosition is the latest reported fix of one vehicle on a route
type VehiclePosition struct {
	VehicleID string    `json:"vehicleId"`
	RouteID   string    `json:"routeId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	IsHalted  bool      `json:"isHalted"`
	Speed     *float64  `json:"speed,omitempty"`
	Bearing   *float64  `json:"bearing,omitempty"`
	ETASecs   *int      `json:"etaSecs,omitempty"`
}

// Validate checks the position before it is stored or published
func (v *VehiclePosition) Validate() error {
	if v.VehicleID == "" {
		return errors.New("vehicle_id is required")
	}
	if v.RouteID == "" {
		return errors.New("route_id is required")
	}
	if v.Latitude < -90 || v.Latitude > 90 {
		return errors.New("latitude out of range: must be between -90 and 90")
	}
	if v.Longitude < -180 || v.Longitude > 180 {
		return errors.New("longitude out of range: must be between -180 and 180")
	}
	if v.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

// RouteFreshness summarises live data for one route on a board
type RouteFreshness struct {
	Route         string `json:"route"`
	LiveCount     int    `json:"liveCount"`
	NewestMinsAgo int    `json:"newestMinsAgo"`
	OldestMinsAgo int    `json:"oldestMinsAgo"`
}

// DepartureBoard is the merged list for a stop at a point in time
type DepartureBoard struct {
	Stop          Stop             `json:"stop"`
	GeneratedAt   time.Time        `json:"generatedAt"`
	LiveAvailable bool             `json:"liveAvailable"`
	Departures    []Departure      `json:"departures"`
	Freshness     []RouteFreshness `json:"freshness,omitempty"`
}
