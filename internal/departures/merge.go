// Package departures reconciles live arrival estimates with schedule-derived
// departures into one ranked board.
package departures

import (
	"sort"
	"strings"
	"time"

	"github.com/transit-explorer/core/internal/models"
)

const (
	// ScheduleGap is how far after a route's latest live arrival a scheduled
	// departure must be before it is shown alongside live data.
	ScheduleGap = 15 * time.Minute
	// DefaultLimit caps a merged board
	DefaultLimit = 20
)

func routeKey(route string) string {
	return strings.ToLower(strings.TrimSpace(route))
}

// Merge combines live and scheduled departures. Every live arrival is kept.
// A scheduled departure on a route that has live data survives only when it
// is at least ScheduleGap after that route's latest live arrival; routes with
// no live data pass through untouched. The result is sorted by time (ties keep
// live first) and cut to limit.
func Merge(live []models.LiveArrival, scheduled []models.Departure, limit int) []models.Departure {
	latest := make(map[string]time.Time, len(live))
	out := make([]models.Departure, 0, len(live)+len(scheduled))

	for _, a := range live {
		k := routeKey(a.Route)
		if cur, ok := latest[k]; !ok || a.Time.After(cur) {
			latest[k] = a.Time
		}
		out = append(out, a.ToDeparture())
	}

	for _, d := range scheduled {
		if last, ok := latest[routeKey(d.Route)]; ok && d.Time.Before(last.Add(ScheduleGap)) {
			continue
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Staleness is how old an arrival's source timestamp is at now
func Staleness(a models.LiveArrival, now time.Time) time.Duration {
	if a.Timestamp.IsZero() || a.Timestamp.After(now) {
		return 0
	}
	return now.Sub(a.Timestamp)
}

// Freshness summarises live data age per route, in first-seen route order
func Freshness(live []models.LiveArrival, now time.Time) []models.RouteFreshness {
	idx := make(map[string]int)
	var out []models.RouteFreshness
	for _, a := range live {
		mins := int(Staleness(a, now).Minutes())
		k := routeKey(a.Route)
		i, ok := idx[k]
		if !ok {
			idx[k] = len(out)
			out = append(out, models.RouteFreshness{Route: a.Route, LiveCount: 1, NewestMinsAgo: mins, OldestMinsAgo: mins})
			continue
		}
		f := &out[i]
		f.LiveCount++
		if mins < f.NewestMinsAgo {
			f.NewestMinsAgo = mins
		}
		if mins > f.OldestMinsAgo {
			f.OldestMinsAgo = mins
		}
	}
	return out
}
