// Package chalo reads the per-stop arrival and per-route vehicle feeds of
// the live bus tracking API.
package chalo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/realtime"
)

const sourceName = string(models.SourceChalo)

// Options configure a Client
type Options struct {
	ArrivalsURL string // template containing {stop}
	VehiclesURL string // template containing {route}
	APIKey      string
	Timeout     time.Duration
	Observer    realtime.Observer
	Now         func() time.Time
}

// Client implements realtime.ArrivalSource and realtime.VehicleSource
type Client struct {
	arrivalsURL string
	vehiclesURL string
	client      *http.Client
	observer    realtime.Observer
	now         func() time.Time
}

// NewClient creates a new feed client
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		arrivalsURL: opts.ArrivalsURL,
		vehiclesURL: opts.VehiclesURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(opts.APIKey),
		},
		observer: opts.Observer,
		now:      now,
	}
}

// FetchArrivals returns usable live arrivals for a stop, soonest first
func (c *Client) FetchArrivals(ctx context.Context, stopID string) ([]models.LiveArrival, error) {
	if c.arrivalsURL == "" {
		return nil, nil
	}

	var body map[string]map[string]json.RawMessage
	if err := c.getJSON(ctx, expand(c.arrivalsURL, "{stop}", stopID), &body); err != nil {
		return nil, fmt.Errorf("failed to fetch arrivals for %s: %w", stopID, err)
	}

	now := c.now()
	var arrivals []models.LiveArrival
	skipped := 0
	for routeID, trips := range body {
		for tripID, raw := range trips {
			rec, err := decodeRecord[arrivalRecord](raw)
			if err != nil {
				log.Printf("Chalo: skipping malformed arrival %s/%s at stop %s: %v", routeID, tripID, stopID, err)
				skipped++
				continue
			}
			a, ok := rec.toArrival(routeID, tripID, now)
			if !ok {
				skipped++
				continue
			}
			if c.observer != nil {
				c.observer.ObserveRecordAge(sourceName, now.Sub(a.Timestamp))
			}
			arrivals = append(arrivals, a)
		}
	}
	if c.observer != nil && skipped > 0 {
		c.observer.ObserveSkipped(sourceName, skipped)
	}

	sort.Slice(arrivals, func(i, j int) bool {
		if !arrivals[i].Time.Equal(arrivals[j].Time) {
			return arrivals[i].Time.Before(arrivals[j].Time)
		}
		return arrivals[i].TripID < arrivals[j].TripID
	})
	return arrivals, nil
}

// FetchVehicles returns recent vehicle fixes for a route
func (c *Client) FetchVehicles(ctx context.Context, routeID string) ([]models.VehiclePosition, error) {
	if c.vehiclesURL == "" {
		return nil, nil
	}

	var body map[string]json.RawMessage
	if err := c.getJSON(ctx, expand(c.vehiclesURL, "{route}", routeID), &body); err != nil {
		return nil, fmt.Errorf("failed to fetch vehicles for %s: %w", routeID, err)
	}

	now := c.now()
	var vehicles []models.VehiclePosition
	for vehicleID, raw := range body {
		rec, err := decodeRecord[vehicleRecord](raw)
		if err != nil {
			log.Printf("Chalo: skipping malformed vehicle %s on %s: %v", vehicleID, routeID, err)
			continue
		}
		v, ok := rec.toPosition(vehicleID, routeID, now)
		if !ok {
			continue
		}
		vehicles = append(vehicles, v)
	}

	sort.Slice(vehicles, func(i, j int) bool {
		return vehicles[i].VehicleID < vehicles[j].VehicleID
	})
	return vehicles, nil
}

func (c *Client) getJSON(ctx context.Context, target string, out any) (err error) {
	start := time.Now()
	if c.observer != nil {
		defer func() { c.observer.ObserveFetch(sourceName, time.Since(start), err) }()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func expand(template, placeholder, value string) string {
	return strings.ReplaceAll(template, placeholder, url.PathEscape(value))
}

// arrivalRecord is one trip's estimate. The feed sends it either as an
// object or as a JSON string holding the object.
type arrivalRecord struct {
	TS   *float64 `json:"tS" validate:"required,gt=0"` // epoch ms
	ETA  *float64 `json:"eta"`                         // seconds after tS, -1 when unknown
	RN   string   `json:"rN"`
	Dest string   `json:"dest"`
	VNo  string   `json:"vNo"`
}

func (r arrivalRecord) toArrival(routeID, tripID string, now time.Time) (models.LiveArrival, bool) {
	reportedAt := time.UnixMilli(int64(*r.TS))
	eta := realtime.UnknownETA
	if r.ETA != nil {
		eta = int(*r.ETA)
	}
	if !realtime.Usable(reportedAt, eta, now) {
		return models.LiveArrival{}, false
	}

	at := reportedAt.Add(time.Duration(eta) * time.Second)
	route := strings.TrimSpace(r.RN)
	if route == "" {
		route = routeID
	}
	return models.LiveArrival{
		Route:          route,
		RouteID:        routeID,
		TripID:         tripID,
		Time:           at,
		ETAMins:        realtime.ETAMinutes(at, now),
		VehicleID:      strings.TrimSpace(r.VNo),
		Destination:    strings.TrimSpace(r.Dest),
		Timestamp:      reportedAt,
		UpdatedMinsAgo: int(now.Sub(reportedAt) / time.Minute),
	}, true
}

type vehicleRecord struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	TS       *float64 `json:"tS" validate:"required,gt=0"`
	IsHalted bool     `json:"isHalted"`
	Speed    *float64 `json:"speed"`
	Bearing  *float64 `json:"bearing"`
	ETA      *float64 `json:"eta"`
}

func (r vehicleRecord) toPosition(vehicleID, routeID string, now time.Time) (models.VehiclePosition, bool) {
	if r.Lat == nil || r.Lng == nil || !geo.IsValidCoordinate(*r.Lat, *r.Lng) {
		return models.VehiclePosition{}, false
	}
	reportedAt := time.UnixMilli(int64(*r.TS))
	if !realtime.FreshVehicle(reportedAt, now) {
		return models.VehiclePosition{}, false
	}

	v := models.VehiclePosition{
		VehicleID: vehicleID,
		RouteID:   routeID,
		Latitude:  *r.Lat,
		Longitude: *r.Lng,
		Timestamp: reportedAt,
		IsHalted:  r.IsHalted,
		Speed:     r.Speed,
		Bearing:   r.Bearing,
	}
	if r.ETA != nil && int(*r.ETA) != realtime.UnknownETA {
		eta := int(*r.ETA)
		v.ETASecs = &eta
	}
	return v, true
}

var recordValidator = validator.New()

func decodeRecord[T arrivalRecord | vehicleRecord](raw json.RawMessage) (T, error) {
	var rec T
	data := []byte(raw)

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		data = []byte(s)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, recordValidator.Struct(&rec)
}
