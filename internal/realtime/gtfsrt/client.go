// Package gtfsrt adapts GTFS-Realtime TripUpdates and VehiclePositions feeds
// to the live arrival and vehicle interfaces.
package gtfsrt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/realtime"
)

const sourceName = string(models.SourceGTFSRT)

// Options configure a Client
type Options struct {
	TripUpdatesURL      string
	VehiclePositionsURL string
	// RouteNames maps route_id to the display name used on boards
	RouteNames map[string]string
	// FeedTTL reuses a downloaded feed for this long across stops
	FeedTTL  time.Duration
	Observer realtime.Observer
	Now      func() time.Time
}

// Client implements realtime.ArrivalSource and realtime.VehicleSource
type Client struct {
	opts   Options
	client *http.Client
	now    func() time.Time

	mu    sync.Mutex
	feeds map[string]cachedFeed
}

type cachedFeed struct {
	feed      *gtfs.FeedMessage
	fetchedAt time.Time
}

// NewClient creates a new GTFS-RT client
func NewClient(opts Options) *Client {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		opts: opts,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		now:   now,
		feeds: make(map[string]cachedFeed),
	}
}

// FetchArrivals returns predicted arrivals at stopID from the trip updates feed
func (c *Client) FetchArrivals(ctx context.Context, stopID string) ([]models.LiveArrival, error) {
	if c.opts.TripUpdatesURL == "" {
		return nil, nil
	}
	feed, err := c.fetchFeed(ctx, c.opts.TripUpdatesURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trip updates: %w", err)
	}

	now := c.now()
	headerTS := feedTimestamp(feed, now)

	var arrivals []models.LiveArrival
	skipped := 0
	for _, entity := range feed.Entity {
		tu := entity.GetTripUpdate()
		if tu == nil || tu.GetTrip() == nil {
			continue
		}
		if tu.GetTrip().GetScheduleRelationship() == gtfs.TripDescriptor_CANCELED {
			continue
		}

		reportedAt := headerTS
		if tu.Timestamp != nil {
			reportedAt = time.Unix(int64(tu.GetTimestamp()), 0)
		}

		for _, stu := range tu.StopTimeUpdate {
			if stu.GetStopId() != stopID {
				continue
			}
			if stu.GetScheduleRelationship() == gtfs.TripUpdate_StopTimeUpdate_SKIPPED {
				continue
			}

			at, ok := eventTime(stu)
			eta := realtime.UnknownETA
			if ok {
				eta = int(at.Sub(reportedAt) / time.Second)
				if eta < 0 {
					eta = 0
				}
			}
			if !realtime.Usable(reportedAt, eta, now) {
				skipped++
				continue
			}

			a := models.LiveArrival{
				Route:          c.routeName(tu.GetTrip().GetRouteId()),
				RouteID:        tu.GetTrip().GetRouteId(),
				TripID:         tu.GetTrip().GetTripId(),
				Time:           at,
				ETAMins:        realtime.ETAMinutes(at, now),
				Timestamp:      reportedAt,
				UpdatedMinsAgo: int(now.Sub(reportedAt) / time.Minute),
			}
			if v := tu.GetVehicle(); v != nil {
				a.VehicleID = v.GetId()
			}
			if c.opts.Observer != nil {
				c.opts.Observer.ObserveRecordAge(sourceName, now.Sub(reportedAt))
			}
			arrivals = append(arrivals, a)
		}
	}
	if c.opts.Observer != nil && skipped > 0 {
		c.opts.Observer.ObserveSkipped(sourceName, skipped)
	}

	sort.Slice(arrivals, func(i, j int) bool {
		return arrivals[i].Time.Before(arrivals[j].Time)
	})
	return arrivals, nil
}

// FetchVehicles returns recent vehicle positions for routeID
func (c *Client) FetchVehicles(ctx context.Context, routeID string) ([]models.VehiclePosition, error) {
	if c.opts.VehiclePositionsURL == "" {
		return nil, nil
	}
	feed, err := c.fetchFeed(ctx, c.opts.VehiclePositionsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vehicle positions: %w", err)
	}

	now := c.now()
	headerTS := feedTimestamp(feed, now)

	var vehicles []models.VehiclePosition
	for _, entity := range feed.Entity {
		vp := entity.GetVehicle()
		if vp == nil || vp.GetTrip().GetRouteId() != routeID || vp.Position == nil {
			continue
		}

		lat := float64(vp.GetPosition().GetLatitude())
		lon := float64(vp.GetPosition().GetLongitude())
		if !geo.IsValidCoordinate(lat, lon) {
			continue
		}

		reportedAt := headerTS
		if vp.Timestamp != nil {
			reportedAt = time.Unix(int64(vp.GetTimestamp()), 0)
		}
		if !realtime.FreshVehicle(reportedAt, now) {
			continue
		}

		v := models.VehiclePosition{
			VehicleID: vehicleID(entity, vp),
			RouteID:   routeID,
			Latitude:  lat,
			Longitude: lon,
			Timestamp: reportedAt,
			IsHalted:  vp.GetCurrentStatus() == gtfs.VehiclePosition_STOPPED_AT,
		}
		if vp.GetPosition().Speed != nil {
			s := float64(vp.GetPosition().GetSpeed())
			v.Speed = &s
		}
		if vp.GetPosition().Bearing != nil {
			b := float64(vp.GetPosition().GetBearing())
			v.Bearing = &b
		}
		vehicles = append(vehicles, v)
	}

	sort.Slice(vehicles, func(i, j int) bool {
		return vehicles[i].VehicleID < vehicles[j].VehicleID
	})
	return vehicles, nil
}

func (c *Client) routeName(routeID string) string {
	if name, ok := c.opts.RouteNames[routeID]; ok && name != "" {
		return name
	}
	return routeID
}

// fetchFeed fetches a GTFS-RT feed, reusing a recent download
func (c *Client) fetchFeed(ctx context.Context, url string) (feed *gtfs.FeedMessage, err error) {
	now := c.now()
	c.mu.Lock()
	if cached, ok := c.feeds[url]; ok && c.opts.FeedTTL > 0 && now.Sub(cached.fetchedAt) < c.opts.FeedTTL {
		c.mu.Unlock()
		return cached.feed, nil
	}
	c.mu.Unlock()

	start := time.Now()
	if c.opts.Observer != nil {
		defer func() { c.opts.Observer.ObserveFetch(sourceName, time.Since(start), err) }()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	feed = &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to parse protobuf: %w", err)
	}

	c.mu.Lock()
	c.feeds[url] = cachedFeed{feed: feed, fetchedAt: now}
	c.mu.Unlock()
	return feed, nil
}

func feedTimestamp(feed *gtfs.FeedMessage, fallback time.Time) time.Time {
	if ts := feed.GetHeader().GetTimestamp(); ts > 0 {
		return time.Unix(int64(ts), 0)
	}
	return fallback
}

func eventTime(stu *gtfs.TripUpdate_StopTimeUpdate) (time.Time, bool) {
	if t := stu.GetArrival().GetTime(); t > 0 {
		return time.Unix(t, 0), true
	}
	if t := stu.GetDeparture().GetTime(); t > 0 {
		return time.Unix(t, 0), true
	}
	return time.Time{}, false
}

func vehicleID(entity *gtfs.FeedEntity, vp *gtfs.VehiclePosition) string {
	if id := strings.TrimSpace(vp.GetVehicle().GetId()); id != "" {
		return id
	}
	if label := strings.TrimSpace(vp.GetVehicle().GetLabel()); label != "" {
		return label
	}
	return entity.GetId()
}
