package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Stops    *StopHandler
	Resolve  *ResolveHandler
	Vehicles *VehicleHandler
	Health   *HealthHandler
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
}

// NewRouter builds the API router
func NewRouter(h Handlers, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health.GetHealth)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/resolve", h.Resolve.Resolve)
		r.Get("/stops/nearest", h.Stops.GetNearestStop)
		r.Get("/stops/nearby", h.Stops.GetNearbyStops)
		r.Get("/stops/{stopId}/departures", h.Stops.GetDepartures)
		r.Get("/stops/{stopId}/snapshots/latest", h.Stops.GetLatestSnapshot)
		r.Get("/routes/{routeId}/vehicles", h.Vehicles.GetRouteVehicles)
	})
	return r
}
