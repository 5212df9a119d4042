// Package board assembles the departure board for a stop: schedule-derived
// departures from the stop's timetable, live arrivals when the feed answers,
// merged into one ranked list.
package board

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/transit-explorer/core/internal/departures"
	"github.com/transit-explorer/core/internal/features"
	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/realtime"
	"github.com/transit-explorer/core/internal/timetable"
)

// ErrStopNotFound is returned for ids no stop feature resolves to
var ErrStopNotFound = errors.New("stop not found")

// Service builds departure boards
type Service struct {
	features features.Querier
	live     realtime.ArrivalSource
	schedule timetable.Options
	limit    int
}

// Option configures a Service
type Option func(*Service)

// WithScheduleOptions overrides the timetable window and caps
func WithScheduleOptions(opts timetable.Options) Option {
	return func(s *Service) { s.schedule = opts }
}

// WithLimit overrides the merged board size
func WithLimit(n int) Option {
	return func(s *Service) { s.limit = n }
}

// NewService creates a board service. live may be nil for schedule-only
// boards.
func NewService(fs features.Querier, live realtime.ArrivalSource, opts ...Option) *Service {
	s := &Service{
		features: fs,
		live:     live,
		schedule: timetable.DefaultOptions(),
		limit:    departures.DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// indexed is implemented by feature sources that keep a stop index
type indexed interface {
	Index() *geo.StopIndex
}

// Stop looks up a stop by its canonical id. Sources with a stop index answer
// from it; stops the index skipped (no usable point) fall back to a scan.
func (s *Service) Stop(stopID string) (models.Stop, error) {
	if src, ok := s.features.(indexed); ok {
		if hit, ok := src.Index().Lookup(stopID); ok {
			return toStop(hit.Feature), nil
		}
	}

	candidates := s.features.QueryFeatures(features.Filter{Type: geo.FeatureStop})
	for _, f := range geo.Dedupe(candidates, geo.FeatureStop) {
		if id, _ := geo.ResolveID(f, geo.FeatureStop); id == stopID {
			return toStop(f), nil
		}
	}
	return models.Stop{}, ErrStopNotFound
}

func toStop(f geo.RawFeature) models.Stop {
	stop, err := features.ToStop(f)
	if err != nil {
		// Broken timetable blob: the stop still resolves, schedule-less
		log.Printf("Board: %v", err)
	}
	return stop
}

// Departures builds the board for stopID at now. A failing live feed never
// fails the board; it degrades to schedule only with LiveAvailable unset.
func (s *Service) Departures(ctx context.Context, stopID string, now time.Time) (*models.DepartureBoard, error) {
	stop, err := s.Stop(stopID)
	if err != nil {
		return nil, err
	}

	scheduled := timetable.Generate(stop.Timetable, now, s.schedule)

	var live []models.LiveArrival
	liveAvailable := false
	if s.live != nil {
		arrivals, err := s.live.FetchArrivals(ctx, stopID)
		if err != nil {
			log.Printf("Board: live arrivals unavailable for stop %s: %v", stopID, err)
		} else {
			live = arrivals
			liveAvailable = true
		}
	}

	merged := departures.Merge(live, scheduled, s.limit)
	enrichLive(merged, stop.Timetable)

	return &models.DepartureBoard{
		Stop:          stop,
		GeneratedAt:   now,
		LiveAvailable: liveAvailable,
		Departures:    merged,
		Freshness:     departures.Freshness(live, now),
	}, nil
}

// enrichLive copies route attributes the live feed lacks from the stop's
// timetable onto live rows.
func enrichLive(deps []models.Departure, entries []timetable.Entry) {
	byRoute := make(map[string]timetable.Entry, len(entries))
	for _, e := range entries {
		k := strings.ToLower(strings.TrimSpace(e.Route))
		if _, ok := byRoute[k]; !ok {
			byRoute[k] = e
		}
	}
	for i := range deps {
		d := &deps[i]
		if !d.IsLive {
			continue
		}
		e, ok := byRoute[strings.ToLower(strings.TrimSpace(d.Route))]
		if !ok {
			continue
		}
		if d.AgencyName == "" {
			d.AgencyName = e.Agency
		}
		if d.FareType == "" {
			d.FareType = e.FareType
		}
		if d.RouteID == "" {
			d.RouteID = e.RouteID
		}
		d.ACService = d.ACService || e.ACService
		if d.Destination == "" {
			d.Destination = e.Destination
		}
	}
}
