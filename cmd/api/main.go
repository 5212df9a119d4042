package main

import (
	"log"
	"net/http"

	"github.com/transit-explorer/core/internal/board"
	"github.com/transit-explorer/core/internal/config"
	"github.com/transit-explorer/core/internal/features"
	"github.com/transit-explorer/core/internal/handlers"
	"github.com/transit-explorer/core/internal/metrics"
	"github.com/transit-explorer/core/internal/realtime/feeds"
	"github.com/transit-explorer/core/internal/repository"
)

// snapshotStore is a repository the API can close on shutdown
type snapshotStore interface {
	handlers.SnapshotRepository
	Close() error
}

func main() {
	// Load base .env first, then .env.local (which overrides for local development)
	config.LoadEnvFiles("../..")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Static features
	source := features.NewFileSource(cfg.DataDir)
	if err := source.Reload(); err != nil {
		log.Fatalf("Failed to load features from %s: %v", cfg.DataDir, err)
	}

	collector := metrics.NewCollector()

	live, err := feeds.New(cfg, source.RouteNames(), collector)
	if err != nil {
		log.Fatalf("Failed to configure live feed: %v", err)
	}

	boards := board.NewService(source, live)

	// Snapshot repository is optional; the poller writes it
	var repo snapshotStore
	switch {
	case cfg.UsePostgres():
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURL)
	case cfg.DatabasePath != "":
		repo, err = repository.NewSQLiteRepository(cfg.DatabasePath)
	}
	if err != nil {
		log.Printf("Warning: snapshot repository unavailable: %v", err)
		repo = nil
	}

	var snapshots handlers.SnapshotRepository
	var pinger handlers.Pinger
	if repo != nil {
		defer repo.Close()
		snapshots, pinger = repo, repo
	}

	r := handlers.NewRouter(handlers.Handlers{
		Stops: handlers.NewStopHandler(boards, source, snapshots, handlers.StopOptions{
			NearbyRadiusKM: cfg.NearbyRadiusKM,
			MaxRadiusKM:    cfg.MaxNearbyRadiusKM,
			MaxNearby:      cfg.MaxNearbyStops,
			Location:       cfg.Location,
		}),
		Resolve:  handlers.NewResolveHandler(source),
		Vehicles: handlers.NewVehicleHandler(live, snapshots),
		Health:   handlers.NewHealthHandler(collector, source, pinger),
		Metrics:  collector.Handler(),
	}, cfg.AllowedOrigins)

	log.Printf("API server starting on :%s", cfg.Port)
	log.Println("Endpoints:")
	log.Println("  GET /api/stops/{stopId}/departures")
	log.Println("  GET /api/stops/{stopId}/snapshots/latest")
	log.Println("  GET /api/stops/nearest?lat=&lon=")
	log.Println("  GET /api/stops/nearby?lat=&lon=&radius=&limit=")
	log.Println("  GET /api/resolve?lat=&lon=&type=")
	log.Println("  GET /api/routes/{routeId}/vehicles")
	log.Println("  GET /health, /metrics")

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
