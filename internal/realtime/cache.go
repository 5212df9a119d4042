package realtime

import (
	"context"
	"time"

	"github.com/bluele/gcache"

	"github.com/transit-explorer/core/internal/models"
)

const defaultCacheSize = 2048

// CachedSource fronts arrival and vehicle sources with short-lived LRU
// caches so API traffic does not reach the upstream on every request.
// Errors are never cached.
type CachedSource struct {
	arrivals ArrivalSource
	vehicles VehicleSource

	arrivalCache gcache.Cache
	vehicleCache gcache.Cache
}

// NewCachedSource wraps the given sources; either may be nil
func NewCachedSource(arrivals ArrivalSource, vehicles VehicleSource, ttl time.Duration) *CachedSource {
	return &CachedSource{
		arrivals:     arrivals,
		vehicles:     vehicles,
		arrivalCache: gcache.New(defaultCacheSize).LRU().Expiration(ttl).Build(),
		vehicleCache: gcache.New(defaultCacheSize).LRU().Expiration(ttl).Build(),
	}
}

func (c *CachedSource) FetchArrivals(ctx context.Context, stopID string) ([]models.LiveArrival, error) {
	if cached, err := c.arrivalCache.Get(stopID); err == nil {
		return cached.([]models.LiveArrival), nil
	}
	if c.arrivals == nil {
		return nil, nil
	}

	arrivals, err := c.arrivals.FetchArrivals(ctx, stopID)
	if err != nil {
		return nil, err
	}
	_ = c.arrivalCache.Set(stopID, arrivals)
	return arrivals, nil
}

func (c *CachedSource) FetchVehicles(ctx context.Context, routeID string) ([]models.VehiclePosition, error) {
	if cached, err := c.vehicleCache.Get(routeID); err == nil {
		return cached.([]models.VehiclePosition), nil
	}
	if c.vehicles == nil {
		return nil, nil
	}

	vehicles, err := c.vehicles.FetchVehicles(ctx, routeID)
	if err != nil {
		return nil, err
	}
	_ = c.vehicleCache.Set(routeID, vehicles)
	return vehicles, nil
}

// HitRate returns the combined cache hit ratio
func (c *CachedSource) HitRate() float64 {
	hits := c.arrivalCache.HitCount() + c.vehicleCache.HitCount()
	lookups := c.arrivalCache.LookupCount() + c.vehicleCache.LookupCount()
	if lookups == 0 {
		return 0
	}
	return float64(hits) / float64(lookups)
}
