package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/realtime"
)

// Vehicle position origins reported in VehiclesResponse
const (
	VehiclesLive   = "live"
	VehiclesStored = "stored"
)

// VehicleHandler handles HTTP requests for vehicles on a route
type VehicleHandler struct {
	live realtime.VehicleSource
	repo SnapshotRepository
	now  func() time.Time
}

// NewVehicleHandler creates a vehicle handler. Either collaborator may be
// nil; stored positions back up a failing live feed.
func NewVehicleHandler(live realtime.VehicleSource, repo SnapshotRepository) *VehicleHandler {
	return &VehicleHandler{live: live, repo: repo, now: time.Now}
}

// VehiclesResponse is the JSON response for GET /api/routes/{routeId}/vehicles
type VehiclesResponse struct {
	RouteID  string                   `json:"routeId"`
	Vehicles []models.VehiclePosition `json:"vehicles"`
	Count    int                      `json:"count"`
	Source   string                   `json:"source"`
	PolledAt time.Time                `json:"polledAt"`
}

// GetRouteVehicles handles GET /api/routes/{routeId}/vehicles
func (h *VehicleHandler) GetRouteVehicles(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")
	if routeID == "" {
		writeError(w, http.StatusBadRequest, "routeId parameter is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	now := h.now()

	var liveErr error
	if h.live != nil {
		vehicles, err := h.live.FetchVehicles(ctx, routeID)
		if err == nil {
			h.respond(w, routeID, vehicles, VehiclesLive, now)
			return
		}
		liveErr = err
		log.Printf("Vehicles: live feed failed for route %s: %v", routeID, err)
	}

	if h.repo == nil {
		writeError(w, http.StatusBadGateway, "Vehicle positions unavailable", liveErr)
		return
	}
	vehicles, err := h.repo.RecentVehicles(ctx, routeID, now.Add(-realtime.MaxVehicleAge))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve vehicles", err)
		return
	}
	h.respond(w, routeID, vehicles, VehiclesStored, now)
}

func (h *VehicleHandler) respond(w http.ResponseWriter, routeID string, vehicles []models.VehiclePosition, source string, now time.Time) {
	if vehicles == nil {
		vehicles = []models.VehiclePosition{}
	}
	writeJSON(w, http.StatusOK, "public, max-age=10, stale-while-revalidate=5", VehiclesResponse{
		RouteID:  routeID,
		Vehicles: vehicles,
		Count:    len(vehicles),
		Source:   source,
		PolledAt: now.UTC(),
	})
}
