package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/static/gtfs"
)

// FeedReporter reports per-source freshness
type FeedReporter interface {
	Feeds() []models.FeedFreshness
}

// Catalog describes the loaded static features
type Catalog interface {
	Counts() (stops, routes int)
	Manifest() *gtfs.Manifest
}

// Pinger checks database connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles HTTP requests for service health
type HealthHandler struct {
	feeds   FeedReporter
	catalog Catalog
	db      Pinger
	now     func() time.Time
}

// NewHealthHandler creates a health handler. db may be nil.
func NewHealthHandler(feeds FeedReporter, catalog Catalog, db Pinger) *HealthHandler {
	return &HealthHandler{feeds: feeds, catalog: catalog, db: db, now: time.Now}
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	models.ServiceHealth
	Database string `json:"database,omitempty"` // "connected", "disconnected"
}

// GetHealth handles GET /health
// Returns 503 only when no stops are loaded; dead live feeds degrade
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	feeds := h.feeds.Feeds()
	stops, routes := h.catalog.Counts()

	resp := HealthResponse{
		ServiceHealth: models.ServiceHealth{
			Status:      models.OverallStatus(feeds, stops),
			Feeds:       feeds,
			StopCount:   stops,
			RouteCount:  routes,
			LastUpdated: h.now().UTC(),
		},
	}
	if m := h.catalog.Manifest(); m != nil {
		if built, err := m.GeneratedTime(); err == nil {
			resp.FeaturesBuilt = &built
		}
	}

	if h.db != nil {
		resp.Database = "connected"
		if err := h.db.Ping(ctx); err != nil {
			log.Printf("Health: database ping failed: %v", err)
			resp.Database = "disconnected"
			if resp.Status == models.StatusOperational {
				resp.Status = models.StatusDegraded
			}
		}
	}

	status := http.StatusOK
	if resp.Status == models.StatusOutage {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, "no-store", resp)
}
