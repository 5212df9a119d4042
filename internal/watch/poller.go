// Package watch keeps the boards and vehicles named in a watchlist warm,
// persisting every committed board and vehicle poll.
package watch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/transit-explorer/core/internal/config"
	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/metrics"
	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/realtime"
	"github.com/transit-explorer/core/internal/session"
)

// Store persists what the sessions produce
type Store interface {
	SaveBoard(ctx context.Context, board models.DepartureBoard) (string, error)
	UpsertVehiclePositions(ctx context.Context, polledAt time.Time, positions []models.VehiclePosition) error
}

// Publisher fans vehicle positions out to subscribers
type Publisher interface {
	PublishPositions(positions []models.VehiclePosition) error
}

// Options configure a Poller. Publisher and Metrics are optional.
type Options struct {
	Interval  time.Duration
	Now       func() time.Time
	Publisher Publisher
	Metrics   *metrics.Collector
}

// Poller runs one session per watched stop, route and location
type Poller struct {
	boards   session.BoardSource
	vehicles realtime.VehicleSource
	stops    session.StopLocator
	store    Store
	opts     Options

	mu       sync.Mutex
	sessions []*session.Session
	tracked  map[string]int // route -> vehicles in last poll
}

// NewPoller creates a poller
func NewPoller(boards session.BoardSource, vehicles realtime.VehicleSource, stops session.StopLocator, store Store, opts Options) *Poller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		boards:   boards,
		vehicles: vehicles,
		stops:    stops,
		store:    store,
		opts:     opts,
		tracked:  make(map[string]int),
	}
}

// Start launches sessions for everything in w. Failing first refreshes are
// logged; the sessions keep retrying on their own schedule.
func (p *Poller) Start(ctx context.Context, w *config.Watchlist) {
	for _, stop := range w.Stops {
		s := p.newSession(ctx)
		if err := s.SelectStop(ctx, stop.StopID); err != nil {
			log.Printf("Watch: first board for stop %s failed: %v", stop.StopID, err)
		}
	}

	for _, route := range w.Routes {
		p.newSession(ctx).TrackRoute(ctx, route.RouteID)
	}

	for _, loc := range w.Locations {
		s := p.newSession(ctx)
		stopID, ok, err := s.AutoSelectClosest(ctx, geo.Point{Lon: loc.Lon, Lat: loc.Lat})
		switch {
		case !ok:
			log.Printf("Watch: no stop within %.1f km of %s", geo.NearestStopRadiusKM, loc.Name)
		case err != nil:
			log.Printf("Watch: first board for %s (stop %s) failed: %v", loc.Name, stopID, err)
		default:
			log.Printf("Watch: %s resolved to stop %s", loc.Name, stopID)
		}
	}

	log.Printf("Watch: %d stops, %d routes, %d locations", len(w.Stops), len(w.Routes), len(w.Locations))
}

func (p *Poller) newSession(ctx context.Context) *session.Session {
	s := session.New(p.boards, p.vehicles, p.stops, session.Options{
		Interval: p.opts.Interval,
		Now:      p.opts.Now,
		OnBoard: func(b models.DepartureBoard) {
			p.saveBoard(ctx, b)
		},
		OnVehicles: func(routeID string, vehicles []models.VehiclePosition) {
			p.saveVehicles(ctx, routeID, vehicles)
		},
	})
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s
}

func (p *Poller) saveBoard(ctx context.Context, b models.DepartureBoard) {
	if m := p.opts.Metrics; m != nil {
		m.BoardsBuilt.Inc()
	}
	if _, err := p.store.SaveBoard(ctx, b); err != nil {
		log.Printf("Watch: failed to save board for stop %s: %v", b.Stop.ID, err)
		return
	}
	if m := p.opts.Metrics; m != nil {
		m.SnapshotsSaved.Inc()
	}
}

func (p *Poller) saveVehicles(ctx context.Context, routeID string, vehicles []models.VehiclePosition) {
	p.mu.Lock()
	p.tracked[routeID] = len(vehicles)
	total := 0
	for _, n := range p.tracked {
		total += n
	}
	p.mu.Unlock()
	if m := p.opts.Metrics; m != nil {
		m.VehiclesTracked.Set(float64(total))
	}

	if len(vehicles) == 0 {
		return
	}
	if err := p.store.UpsertVehiclePositions(ctx, p.opts.Now(), vehicles); err != nil {
		log.Printf("Watch: failed to store vehicles for route %s: %v", routeID, err)
	}
	if p.opts.Publisher != nil {
		if err := p.opts.Publisher.PublishPositions(vehicles); err != nil {
			log.Printf("Watch: failed to publish vehicles for route %s: %v", routeID, err)
		}
	}
}

// Close stops every session and waits for their tasks
func (p *Poller) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = nil
	p.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
