package timetable

import (
	"log"
	"sort"
	"time"

	"github.com/transit-explorer/core/internal/models"
)

// Options bound schedule-derived departures
type Options struct {
	Lookback    time.Duration // how far before now a departure is still shown
	Horizon     time.Duration // how far ahead departures are generated
	Grace       time.Duration // rollover tolerance for Clock.On
	MinPerRoute int           // below this, headway synthesis kicks in
	MaxPerRoute int
	MaxHeadway  int // minutes; routes at or above it are not synthesized
	Limit       int
}

// DefaultOptions returns the board defaults
func DefaultOptions() Options {
	return Options{
		Lookback:    5 * time.Minute,
		Horizon:     180 * time.Minute,
		Grace:       5 * time.Minute,
		MinPerRoute: 3,
		MaxPerRoute: 4,
		MaxHeadway:  60,
		Limit:       12,
	}
}

// Generate turns timetable entries into departures around now. Sparse
// frequent routes are topped up from their headway and flagged Synthetic.
func Generate(entries []Entry, now time.Time, opts Options) []models.Departure {
	from := now.Add(-opts.Lookback)
	until := now.Add(opts.Horizon)

	var out []models.Departure
	for _, e := range entries {
		times := scheduledTimes(e, now, opts.Grace, from, until)

		if len(times) > 0 && len(times) < opts.MinPerRoute {
			times = synthesize(e, times, until, opts)
		}

		n := len(times)
		if opts.MaxPerRoute > 0 && n > opts.MaxPerRoute {
			n = opts.MaxPerRoute
		}
		for _, st := range times[:n] {
			out = append(out, departureFor(e, st.at, st.synthetic))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

type slot struct {
	at        time.Time
	synthetic bool
}

func scheduledTimes(e Entry, now time.Time, grace time.Duration, from, until time.Time) []slot {
	var times []slot
	for _, raw := range e.Times {
		c, err := ParseClock(raw)
		if err != nil {
			log.Printf("Timetable: skipping %s time %q: %v", e.Route, raw, err)
			continue
		}
		at := c.On(now, grace)
		if at.Before(from) || at.After(until) {
			continue
		}
		times = append(times, slot{at: at})
	}
	sort.Slice(times, func(i, j int) bool {
		return times[i].at.Before(times[j].at)
	})
	return times
}

func synthesize(e Entry, times []slot, until time.Time, opts Options) []slot {
	last := times[len(times)-1].at
	headway, ok := e.Headway.At(last)
	if !ok || headway >= opts.MaxHeadway {
		return times
	}
	step := time.Duration(headway) * time.Minute
	for len(times) < opts.MinPerRoute {
		next := last.Add(step)
		if next.After(until) {
			break
		}
		times = append(times, slot{at: next, synthetic: true})
		last = next
	}
	return times
}

func departureFor(e Entry, at time.Time, synthetic bool) models.Departure {
	return models.Departure{
		Route:       e.Route,
		RouteID:     e.RouteID,
		Time:        at,
		Destination: e.Destination,
		AgencyName:  e.Agency,
		FareType:    e.FareType,
		Synthetic:   synthetic,
		ACService:   e.ACService,
	}
}
