// Package session holds one explorer's selection context and the background
// tasks tied to it: the departure board auto-refresh for the selected stop and
// vehicle tracking for one route.
package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/realtime"
)

// DefaultInterval is the refresh period of both background tasks
const DefaultInterval = 30 * time.Second

// BoardSource builds departure boards
type BoardSource interface {
	Departures(ctx context.Context, stopID string, now time.Time) (*models.DepartureBoard, error)
}

// StopLocator exposes the current stop index
type StopLocator interface {
	Index() *geo.StopIndex
}

// Options configures a Session. Callbacks run on the task goroutines.
type Options struct {
	Interval   time.Duration
	Now        func() time.Time
	OnBoard    func(models.DepartureBoard)
	OnVehicles func(routeID string, vehicles []models.VehiclePosition)
}

// Session is safe for concurrent use
type Session struct {
	boards   BoardSource
	vehicles realtime.VehicleSource
	stops    StopLocator
	opts     Options

	mu               sync.Mutex
	highlightedRoute string
	hoveredStop      string
	selectedStop     string
	trackedRoute     string
	board            *models.DepartureBoard
	positions        []models.VehiclePosition
	committedSeq     uint64
	refreshCancel    context.CancelFunc
	trackCancel      context.CancelFunc

	issuedSeq     atomic.Uint64
	autoSelecting atomic.Bool
	wg            sync.WaitGroup
}

// New creates a session. vehicles and stops may be nil when tracking or
// closest-stop selection is not needed.
func New(boards BoardSource, vehicles realtime.VehicleSource, stops StopLocator, opts Options) *Session {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{boards: boards, vehicles: vehicles, stops: stops, opts: opts}
}

// Snapshot is a consistent copy of the selection context
type Snapshot struct {
	HighlightedRoute string
	HoveredStop      string
	SelectedStop     string
	TrackedRoute     string
	Board            *models.DepartureBoard
	Vehicles         []models.VehiclePosition
}

// Snapshot returns the current selection context
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		HighlightedRoute: s.highlightedRoute,
		HoveredStop:      s.hoveredStop,
		SelectedStop:     s.selectedStop,
		TrackedRoute:     s.trackedRoute,
		Board:            s.board,
		Vehicles:         append([]models.VehiclePosition(nil), s.positions...),
	}
}

// HighlightRoute marks routeID as highlighted; "" clears it
func (s *Session) HighlightRoute(routeID string) {
	s.mu.Lock()
	s.highlightedRoute = routeID
	s.mu.Unlock()
}

// HoverStop marks stopID as hovered; "" clears it
func (s *Session) HoverStop(stopID string) {
	s.mu.Lock()
	s.hoveredStop = stopID
	s.mu.Unlock()
}

// SelectStop selects stopID and (re)starts its board auto-refresh. The
// first board is fetched before the call returns.
func (s *Session) SelectStop(ctx context.Context, stopID string) error {
	s.mu.Lock()
	if s.refreshCancel != nil {
		s.refreshCancel()
	}
	taskCtx, cancel := context.WithCancel(ctx)
	s.refreshCancel = cancel
	s.selectedStop = stopID
	s.board = nil
	s.mu.Unlock()

	_, err := s.Refresh(taskCtx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.Refresh(taskCtx); err != nil && taskCtx.Err() == nil {
					log.Printf("Session: board refresh for stop %s failed: %v", stopID, err)
				}
			case <-taskCtx.Done():
				return
			}
		}
	}()
	return err
}

// ClearStop deselects the stop and stops its auto-refresh
func (s *Session) ClearStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
	s.selectedStop = ""
	s.board = nil
}

// Refresh fetches the selected stop's board once. A response is committed
// only when no response issued after it was committed first, so a slow
// fetch never overwrites a newer board. It reports whether it committed.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	stopID := s.selectedStop
	s.mu.Unlock()
	if stopID == "" {
		return false, nil
	}

	seq := s.issuedSeq.Add(1)
	b, err := s.boards.Departures(ctx, stopID, s.opts.Now())
	if err != nil {
		return false, err
	}
	if !s.commitBoard(seq, stopID, b) {
		return false, nil
	}
	if s.opts.OnBoard != nil {
		s.opts.OnBoard(*b)
	}
	return true, nil
}

func (s *Session) commitBoard(seq uint64, stopID string, b *models.DepartureBoard) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.committedSeq || stopID != s.selectedStop {
		return false
	}
	s.committedSeq = seq
	s.board = b
	return true
}

// TrackRoute starts polling routeID's vehicles, cancelling any previous
// tracking first. At most one tracking task runs per session.
func (s *Session) TrackRoute(ctx context.Context, routeID string) {
	s.mu.Lock()
	if s.trackCancel != nil {
		s.trackCancel()
	}
	taskCtx, cancel := context.WithCancel(ctx)
	s.trackCancel = cancel
	s.trackedRoute = routeID
	s.positions = nil
	s.mu.Unlock()

	if s.vehicles == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			s.pollVehicles(taskCtx, routeID)
			select {
			case <-ticker.C:
			case <-taskCtx.Done():
				return
			}
		}
	}()
}

// StopTracking cancels the tracking task, if any
func (s *Session) StopTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackCancel != nil {
		s.trackCancel()
		s.trackCancel = nil
	}
	s.trackedRoute = ""
	s.positions = nil
}

func (s *Session) pollVehicles(ctx context.Context, routeID string) {
	vehicles, err := s.vehicles.FetchVehicles(ctx, routeID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Session: vehicle poll for route %s failed: %v", routeID, err)
		}
		return
	}

	s.mu.Lock()
	if ctx.Err() != nil || s.trackedRoute != routeID {
		s.mu.Unlock()
		return
	}
	s.positions = vehicles
	s.mu.Unlock()

	if s.opts.OnVehicles != nil {
		s.opts.OnVehicles(routeID, vehicles)
	}
}

// AutoSelectClosest selects the stop nearest to p within
// geo.NearestStopRadiusKM. A call made while another is still running is
// skipped and reports false.
func (s *Session) AutoSelectClosest(ctx context.Context, p geo.Point) (string, bool, error) {
	if !s.autoSelecting.CompareAndSwap(false, true) {
		return "", false, nil
	}
	defer s.autoSelecting.Store(false)

	if s.stops == nil {
		return "", false, nil
	}
	candidates := s.stops.Index().Candidates(p, geo.NearestStopRadiusKM)
	m, ok := geo.Nearest(p, candidates, geo.NearestStopRadiusKM)
	if !ok {
		return "", false, nil
	}
	stopID, ok := geo.ResolveID(m.Feature, geo.FeatureStop)
	if !ok {
		return "", false, nil
	}
	if err := s.SelectStop(ctx, stopID); err != nil {
		return stopID, true, err
	}
	return stopID, true, nil
}

// Close cancels every task and waits for them to exit
func (s *Session) Close() {
	s.mu.Lock()
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
	if s.trackCancel != nil {
		s.trackCancel()
		s.trackCancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}
