// Package feeds picks and wires the configured live feed client.
package feeds

import (
	"fmt"
	"log"

	"github.com/transit-explorer/core/internal/config"
	"github.com/transit-explorer/core/internal/realtime"
	"github.com/transit-explorer/core/internal/realtime/chalo"
	"github.com/transit-explorer/core/internal/realtime/gtfsrt"
)

// Live is both halves of a live feed
type Live interface {
	realtime.ArrivalSource
	realtime.VehicleSource
}

// New returns the live client named by cfg.LiveSource, behind a cache.
// routeNames maps route_id to display name for feeds that only carry ids.
func New(cfg *config.Config, routeNames map[string]string, obs realtime.Observer) (*realtime.CachedSource, error) {
	var client Live
	switch cfg.LiveSource {
	case config.LiveSourceChalo:
		client = chalo.NewClient(chalo.Options{
			ArrivalsURL: cfg.ChaloArrivalsURL,
			VehiclesURL: cfg.ChaloVehiclesURL,
			APIKey:      cfg.ChaloAPIKey,
			Observer:    obs,
		})
		if cfg.ChaloArrivalsURL == "" {
			log.Println("Feeds: CHALO_ARRIVALS_URL not set, boards will be schedule only")
		}
	case config.LiveSourceGTFSRT:
		client = gtfsrt.NewClient(gtfsrt.Options{
			TripUpdatesURL:      cfg.GTFSTripUpdatesURL,
			VehiclePositionsURL: cfg.GTFSVehiclesURL,
			RouteNames:          routeNames,
			FeedTTL:             cfg.LiveCacheTTL,
			Observer:            obs,
		})
	default:
		return nil, fmt.Errorf("unknown live source %q", cfg.LiveSource)
	}

	log.Printf("Feeds: using %s live source (cache %v)", cfg.LiveSource, cfg.LiveCacheTTL)
	return realtime.NewCachedSource(client, client, cfg.LiveCacheTTL), nil
}
