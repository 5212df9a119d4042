package chalo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func ms(t time.Time) int64 { return t.UnixMilli() }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		ArrivalsURL: srv.URL + "/stops/{stop}/arrivals",
		VehiclesURL: srv.URL + "/routes/{route}/vehicles",
		APIKey:      "secret",
		Now:         func() time.Time { return now },
	})
}

func TestFetchArrivals(t *testing.T) {
	fresh := ms(now.Add(-2 * time.Minute))
	old := ms(now.Add(-61 * time.Minute))

	body := fmt.Sprintf(`{
		"r1": {
			"t1": {"tS": %d, "eta": 600, "rN": "A1", "dest": "Swargate", "vNo": "MH12-1"},
			"t2": "{\"tS\": %d, \"eta\": 120, \"rN\": \"A1\"}",
			"t3": {"tS": %d, "eta": -1, "rN": "A1"},
			"t4": {"tS": %d, "eta": 60, "rN": "A1"},
			"t5": "not json at all",
			"t6": {"eta": 60}
		},
		"r2": {
			"t7": {"tS": %d, "eta": 300}
		}
	}`, fresh, fresh, fresh, old, fresh)

	var gotPath, gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		w.Write([]byte(body))
	})

	arrivals, err := c.FetchArrivals(context.Background(), "S 42")
	require.NoError(t, err)
	assert.Equal(t, "/stops/S 42/arrivals", gotPath)
	assert.Equal(t, "secret", gotKey)

	require.Len(t, arrivals, 3)

	assert.Equal(t, "t2", arrivals[0].TripID)
	assert.WithinDuration(t, now, arrivals[0].Time, 0)
	assert.Equal(t, 0, arrivals[0].ETAMins)
	assert.Equal(t, "", arrivals[0].VehicleID, "missing vehicle number stays unknown")

	assert.Equal(t, "t7", arrivals[1].TripID)
	assert.Equal(t, "r2", arrivals[1].Route, "route id used when rN is absent")

	first := arrivals[2]
	assert.Equal(t, "A1", first.Route)
	assert.Equal(t, "r1", first.RouteID)
	assert.Equal(t, "Swargate", first.Destination)
	assert.Equal(t, "MH12-1", first.VehicleID)
	assert.Equal(t, 8, first.ETAMins)
	assert.Equal(t, 2, first.UpdatedMinsAgo)
}

func TestFetchArrivalsHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := c.FetchArrivals(context.Background(), "S1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFetchArrivalsBadBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1,2,3]`))
	})
	_, err := c.FetchArrivals(context.Background(), "S1")
	assert.Error(t, err)
}

func TestFetchVehicles(t *testing.T) {
	fresh := ms(now.Add(-time.Minute))
	stale := ms(now.Add(-11 * time.Minute))
	body := fmt.Sprintf(`{
		"v2": {"lat": 18.52, "lng": 73.85, "tS": %d, "isHalted": true, "speed": 0, "bearing": 90, "eta": 45},
		"v1": "{\"lat\": 18.50, \"lng\": 73.80, \"tS\": %d, \"eta\": -1}",
		"v3": {"lat": 18.52, "lng": 73.85, "tS": %d},
		"v4": {"lng": 73.85, "tS": %d},
		"v5": {"lat": 0, "lng": 0, "tS": %d}
	}`, fresh, fresh, stale, fresh, fresh)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/routes/R1/vehicles", r.URL.Path)
		w.Write([]byte(body))
	})

	vehicles, err := c.FetchVehicles(context.Background(), "R1")
	require.NoError(t, err)
	require.Len(t, vehicles, 2)

	assert.Equal(t, "v1", vehicles[0].VehicleID)
	assert.Nil(t, vehicles[0].ETASecs)

	v := vehicles[1]
	assert.Equal(t, "v2", v.VehicleID)
	assert.Equal(t, "R1", v.RouteID)
	assert.True(t, v.IsHalted)
	require.NotNil(t, v.ETASecs)
	assert.Equal(t, 45, *v.ETASecs)
	require.NotNil(t, v.Bearing)
	assert.Equal(t, 90.0, *v.Bearing)
}

func TestUnconfiguredURLsReturnNothing(t *testing.T) {
	c := NewClient(Options{})
	a, err := c.FetchArrivals(context.Background(), "S1")
	require.NoError(t, err)
	assert.Empty(t, a)
	v, err := c.FetchVehicles(context.Background(), "R1")
	require.NoError(t, err)
	assert.Empty(t, v)
}
