package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stop is a boarding point resolved from a map feature. Two Stop values with
// the same ID are the same physical stop, even when their source features
// came from different tiles.
type Stop struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Latitude    float64          `json:"latitude"`
	Longitude   float64          `json:"longitude"`
	TowardsStop string           `json:"towardsStop,omitempty"`
	Timetable   []TimetableEntry `json:"-"`
}

// Route is a transit line. Its geometry stays on the map features; one route
// may be split across several tile-local features sharing this ID.
type Route struct {
	ID        string `json:"routeId"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName,omitempty"`
	Agency    string `json:"agency,omitempty"`
	FareType  string `json:"fareType,omitempty"`
	Color     string `json:"color,omitempty"`
	IsLive    bool   `json:"isLive"`
}

// TimetableEntry is one route's schedule at a stop
type TimetableEntry struct {
	Route       string   `json:"route"`
	RouteID     string   `json:"route_id,omitempty"`
	Destination string   `json:"destination,omitempty"`
	Times       []string `json:"times"` // "HH:MM", may exceed 24h in source data
	Headway     Headway  `json:"headway,omitempty"`
	IsLive      bool     `json:"is_live,omitempty"`
	ACService   bool     `json:"ac_service,omitempty"`
	Agency      string   `json:"agency,omitempty"`
	FareType    string   `json:"fare_type,omitempty"`
}

// Time-of-day buckets used for headways
const (
	BucketMorning   = "morning"   // 05:00-11:00
	BucketAfternoon = "afternoon" // 11:00-16:00
	BucketEvening   = "evening"   // 16:00-21:00
	BucketNight     = "night"
)

// BucketFor maps a local hour to its headway bucket
func BucketFor(hour int) string {
	switch {
	case hour >= 5 && hour < 11:
		return BucketMorning
	case hour >= 11 && hour < 16:
		return BucketAfternoon
	case hour >= 16 && hour < 21:
		return BucketEvening
	default:
		return BucketNight
	}
}

// Headway is the service frequency in minutes. Source data carries either a
// single number for the whole day or an object keyed by bucket.
type Headway struct {
	Flat    int
	Buckets map[string]int
}

// FlatHeadway returns a headway that applies all day
func FlatHeadway(mins int) Headway {
	return Headway{Flat: mins}
}

// IsZero reports whether no headway is known
func (h Headway) IsZero() bool {
	return h.Flat <= 0 && len(h.Buckets) == 0
}

// At returns the headway in effect at t, and false when unknown
func (h Headway) At(t time.Time) (int, bool) {
	if len(h.Buckets) > 0 {
		if m, ok := h.Buckets[BucketFor(t.Hour())]; ok && m > 0 {
			return m, true
		}
	}
	if h.Flat > 0 {
		return h.Flat, true
	}
	return 0, false
}

func (h *Headway) UnmarshalJSON(data []byte) error {
	*h = Headway{}
	if string(data) == "null" {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		h.Flat = int(n)
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("headway must be a number or an object: %w", err)
	}
	h.Buckets = make(map[string]int, len(raw))
	for k, v := range raw {
		if f, ok := v.(float64); ok && f > 0 {
			h.Buckets[k] = int(f)
		}
	}
	return nil
}

func (h Headway) MarshalJSON() ([]byte, error) {
	if len(h.Buckets) > 0 {
		return json.Marshal(h.Buckets)
	}
	if h.Flat > 0 {
		return json.Marshal(h.Flat)
	}
	return []byte("null"), nil
}
