package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/transit-explorer/core/internal/board"
	"github.com/transit-explorer/core/internal/features"
	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/repository"
)

// BoardService builds departure boards
type BoardService interface {
	Departures(ctx context.Context, stopID string, now time.Time) (*models.DepartureBoard, error)
}

// StopLocator answers spatial stop queries
type StopLocator interface {
	Index() *geo.StopIndex
}

// SnapshotRepository reads what the poller stored
type SnapshotRepository interface {
	LatestBoard(ctx context.Context, stopID string) (*models.DepartureBoard, error)
	RecentVehicles(ctx context.Context, routeID string, since time.Time) ([]models.VehiclePosition, error)
	Ping(ctx context.Context) error
}

// StopOptions tune the stop handler
type StopOptions struct {
	NearbyRadiusKM float64
	// MaxRadiusKM caps the radius a client may ask for; defaults to 10
	MaxRadiusKM float64
	MaxNearby   int
	// Location is the timezone boards are built in; nil means local
	Location *time.Location
}

// StopHandler handles HTTP requests for stops and their departure boards
type StopHandler struct {
	boards  BoardService
	locator StopLocator
	repo    SnapshotRepository
	opts    StopOptions
	now     func() time.Time
}

// NewStopHandler creates a stop handler. repo may be nil when no database is
// configured; snapshot routes then answer 503.
func NewStopHandler(boards BoardService, locator StopLocator, repo SnapshotRepository, opts StopOptions) *StopHandler {
	if opts.NearbyRadiusKM <= 0 {
		opts.NearbyRadiusKM = 1.0
	}
	if opts.MaxRadiusKM <= 0 {
		opts.MaxRadiusKM = 10.0
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &StopHandler{
		boards:  boards,
		locator: locator,
		repo:    repo,
		opts:    opts,
		now:     time.Now,
	}
}

// NearbyStop is one row of GET /api/stops/nearby
type NearbyStop struct {
	Stop       models.Stop `json:"stop"`
	DistanceKM float64     `json:"distanceKm"`
}

// NearbyStopsResponse is the JSON response for GET /api/stops/nearby
type NearbyStopsResponse struct {
	Stops    []NearbyStop `json:"stops"`
	Count    int          `json:"count"`
	RadiusKM float64      `json:"radiusKm"`
}

// GetDepartures handles GET /api/stops/{stopId}/departures
// Returns live arrivals merged with the schedule
func (h *StopHandler) GetDepartures(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopId")
	if stopID == "" {
		writeError(w, http.StatusBadRequest, "stopId parameter is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	b, err := h.boards.Departures(ctx, stopID, h.now().In(h.opts.Location))
	if errors.Is(err, board.ErrStopNotFound) {
		writeJSON(w, http.StatusNotFound, "", ErrorResponse{
			Error:   "Stop not found",
			Details: map[string]interface{}{"stopId": stopID},
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build departure board", err)
		return
	}

	writeJSON(w, http.StatusOK, cacheLive, b)
}

// GetLatestSnapshot handles GET /api/stops/{stopId}/snapshots/latest
// Returns the most recent board the poller stored for a watched stop
func (h *StopHandler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot storage is not configured", nil)
		return
	}
	stopID := chi.URLParam(r, "stopId")

	b, err := h.repo.LatestBoard(r.Context(), stopID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, "", ErrorResponse{
			Error:   "No snapshot for stop",
			Details: map[string]interface{}{"stopId": stopID},
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve snapshot", err)
		return
	}

	writeJSON(w, http.StatusOK, cacheLive, b)
}

// GetNearestStop handles GET /api/stops/nearest?lat=&lon=
// Returns the closest stop within the auto-select radius
func (h *StopHandler) GetNearestStop(w http.ResponseWriter, r *http.Request) {
	q, err := queryPoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	candidates := h.locator.Index().Candidates(q, geo.NearestStopRadiusKM)
	match, ok := geo.Nearest(q, candidates, geo.NearestStopRadiusKM)
	if !ok {
		writeJSON(w, http.StatusNotFound, "", ErrorResponse{
			Error:   "No stop nearby",
			Details: map[string]interface{}{"radiusKm": geo.NearestStopRadiusKM},
		})
		return
	}

	stop, err := features.ToStop(match.Feature)
	if err != nil && stop.ID == "" {
		writeError(w, http.StatusInternalServerError, "Failed to resolve stop", err)
		return
	}
	if err != nil {
		log.Printf("Stops: %v", err)
	}

	distance := match.DistanceKM
	if distance < 0 {
		distance = q.DistanceKM(match.Point)
	}
	writeJSON(w, http.StatusOK, cacheStatic, NearbyStop{Stop: stop, DistanceKM: distance})
}

// GetNearbyStops handles GET /api/stops/nearby?lat=&lon=&radius=&limit=
// Returns stops within radius (km), closest first
func (h *StopHandler) GetNearbyStops(w http.ResponseWriter, r *http.Request) {
	q, err := queryPoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	radius := min(queryFloat(r, "radius", h.opts.NearbyRadiusKM), h.opts.MaxRadiusKM)
	limit := queryInt(r, "limit", h.opts.MaxNearby)
	if h.opts.MaxNearby > 0 && limit > h.opts.MaxNearby {
		limit = h.opts.MaxNearby
	}

	hits := h.locator.Index().Nearby(q, radius, limit)
	stops := make([]NearbyStop, 0, len(hits))
	for _, hit := range hits {
		stop, err := features.ToStop(hit.Feature)
		if stop.ID == "" {
			log.Printf("Stops: skipping nearby feature: %v", err)
			continue
		}
		stops = append(stops, NearbyStop{Stop: stop, DistanceKM: hit.DistanceKM})
	}

	writeJSON(w, http.StatusOK, cacheStatic, NearbyStopsResponse{
		Stops:    stops,
		Count:    len(stops),
		RadiusKM: radius,
	})
}
