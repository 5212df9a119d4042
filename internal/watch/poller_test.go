package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transit-explorer/core/internal/config"
	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/metrics"
	"github.com/transit-explorer/core/internal/models"
)

type fakeBoards struct{}

func (fakeBoards) Departures(ctx context.Context, stopID string, now time.Time) (*models.DepartureBoard, error) {
	if stopID == "BROKEN" {
		return nil, errors.New("no such stop")
	}
	return &models.DepartureBoard{Stop: models.Stop{ID: stopID}, GeneratedAt: now}, nil
}

type fakeVehicles struct{}

func (fakeVehicles) FetchVehicles(ctx context.Context, routeID string) ([]models.VehiclePosition, error) {
	return []models.VehiclePosition{
		{VehicleID: "V1", RouteID: routeID, Latitude: 18.5, Longitude: 73.8},
		{VehicleID: "V2", RouteID: routeID, Latitude: 18.6, Longitude: 73.9},
	}, nil
}

type stopIndex struct{ idx *geo.StopIndex }

func (s stopIndex) Index() *geo.StopIndex { return s.idx }

type memStore struct {
	mu       sync.Mutex
	boards   []string
	vehicles int
	saveErr  error
}

func (m *memStore) SaveBoard(ctx context.Context, b models.DepartureBoard) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.boards = append(m.boards, b.Stop.ID)
	return "id-" + b.Stop.ID, nil
}

func (m *memStore) UpsertVehiclePositions(ctx context.Context, polledAt time.Time, positions []models.VehiclePosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles += len(positions)
	return nil
}

func (m *memStore) vehicleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vehicles
}

type countingPublisher struct {
	mu        sync.Mutex
	published int
}

func (c *countingPublisher) PublishPositions(positions []models.VehiclePosition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published += len(positions)
	return nil
}

func (c *countingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

func newTestPoller(store *memStore, pub Publisher, m *metrics.Collector) *Poller {
	idx := geo.NewStopIndex()
	idx.Replace([]geo.RawFeature{
		geo.NewPointFeature(nil, geo.Point{Lon: 73.8567, Lat: 18.5204}, map[string]any{"id": "S1"}),
	})
	return NewPoller(fakeBoards{}, fakeVehicles{}, stopIndex{idx}, store, Options{
		Interval:  time.Hour,
		Publisher: pub,
		Metrics:   m,
	})
}

func TestPollerStart(t *testing.T) {
	store := &memStore{}
	pub := &countingPublisher{}
	collector := metrics.NewCollector()
	p := newTestPoller(store, pub, collector)
	defer p.Close()

	p.Start(context.Background(), &config.Watchlist{
		Stops:  []config.WatchedStop{{StopID: "S2"}, {StopID: "BROKEN"}},
		Routes: []config.WatchedRoute{{RouteID: "R1"}},
		Locations: []config.WatchedLocation{
			{Name: "Office", Lat: 18.5210, Lon: 73.8570},
			{Name: "Elsewhere", Lat: 10, Lon: 10},
		},
	})

	// first boards are fetched synchronously
	store.mu.Lock()
	assert.Equal(t, []string{"S2", "S1"}, store.boards)
	store.mu.Unlock()
	assert.Equal(t, 2.0, metricValue(t, collector.BoardsBuilt))
	assert.Equal(t, 2.0, metricValue(t, collector.SnapshotsSaved))

	assert.Eventually(t, func() bool {
		return store.vehicleCount() == 2 && pub.count() == 2
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return metricValue(t, collector.VehiclesTracked) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPollerSaveFailureNotCounted(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	collector := metrics.NewCollector()
	p := newTestPoller(store, nil, collector)
	defer p.Close()

	p.Start(context.Background(), &config.Watchlist{Stops: []config.WatchedStop{{StopID: "S1"}}})
	assert.Equal(t, 1.0, metricValue(t, collector.BoardsBuilt))
	assert.Equal(t, 0.0, metricValue(t, collector.SnapshotsSaved))
}

func TestPollerCloseIsIdempotent(t *testing.T) {
	p := newTestPoller(&memStore{}, nil, nil)
	p.Start(context.Background(), &config.Watchlist{Routes: []config.WatchedRoute{{RouteID: "R1"}}})
	p.Close()
	p.Close()
}
