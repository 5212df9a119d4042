package models

import "time"

// FeedSource names where departure data comes from
type FeedSource string

const (
	SourceChalo    FeedSource = "chalo"
	SourceGTFSRT   FeedSource = "gtfsrt"
	SourceSchedule FeedSource = "schedule"
)

// FeedFreshness describes how recently a source produced usable data
type FeedFreshness struct {
	Source       FeedSource `json:"source"`
	LastPolledAt *time.Time `json:"lastPolledAt"`
	AgeSeconds   int        `json:"ageSeconds"`
	Status       string     `json:"status"` // "fresh", "stale", "unavailable"
	RecordCount  int        `json:"recordCount"`
	MeanAgeMins  float64    `json:"meanAgeMins"`
	StdDevMins   float64    `json:"stdDevMins"`
}

// ServiceHealth is the /health response body
type ServiceHealth struct {
	Status        string          `json:"status"` // "operational", "degraded", "outage"
	Feeds         []FeedFreshness `json:"feeds"`
	StopCount     int             `json:"stopCount"`
	RouteCount    int             `json:"routeCount"`
	FeaturesBuilt *time.Time      `json:"featuresBuilt,omitempty"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

// Status constants
const (
	StatusOperational = "operational"
	StatusDegraded    = "degraded"
	StatusOutage      = "outage"
)

// FreshnessStatus constants
const (
	FreshnessFresh       = "fresh"       // < 2 poll intervals
	FreshnessStale       = "stale"       // up to 10min
	FreshnessUnavailable = "unavailable" // older or no data
)

// CalculateFreshnessStatus returns the freshness status based on age
func CalculateFreshnessStatus(ageSeconds int) string {
	if ageSeconds < 0 {
		return FreshnessUnavailable
	}
	if ageSeconds < 60 {
		return FreshnessFresh
	}
	if ageSeconds < 600 {
		return FreshnessStale
	}
	return FreshnessUnavailable
}

// OverallStatus folds per-feed freshness into one service status. Schedule
// data alone still serves boards, so a dead live feed only degrades.
func OverallStatus(feeds []FeedFreshness, stopCount int) string {
	if stopCount == 0 {
		return StatusOutage
	}
	for _, f := range feeds {
		if f.Source != SourceSchedule && f.Status != FreshnessFresh {
			return StatusDegraded
		}
	}
	return StatusOperational
}
