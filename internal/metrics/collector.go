// Package metrics exports poller and API telemetry to Prometheus and keeps
// per-feed freshness statistics for the health endpoint.
package metrics

import (
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/transit-explorer/core/internal/models"
)

type feedState struct {
	lastPolled time.Time
	age        Welford
}

// Collector owns a private registry. It implements realtime.Observer and
// the publisher's metrics hooks.
type Collector struct {
	reg *prometheus.Registry

	FetchTotal     *prometheus.CounterVec // labels: source, result
	FetchDuration  *prometheus.HistogramVec
	SkippedRecords *prometheus.CounterVec
	RecordAgeMean  *prometheus.GaugeVec
	RecordAgeStd   *prometheus.GaugeVec

	BoardsBuilt      prometheus.Counter
	SnapshotsSaved   prometheus.Counter
	VehiclesTracked  prometheus.Gauge
	LiveCacheHitRate prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	now   func() time.Time
	mu    sync.Mutex
	feeds map[string]*feedState
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_feed_fetches_total",
			Help: "Live feed fetches by source and result.",
		}, []string{"source", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_feed_fetch_duration_seconds",
			Help:    "Duration of live feed fetches.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"source"}),
		SkippedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_feed_skipped_records_total",
			Help: "Feed records dropped as malformed, stale or without an estimate.",
		}, []string{"source"}),
		RecordAgeMean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_feed_record_age_mean_minutes",
			Help: "Running mean age of usable live records.",
		}, []string{"source"}),
		RecordAgeStd: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_feed_record_age_stddev_minutes",
			Help: "Running standard deviation of usable live record age.",
		}, []string{"source"}),
		BoardsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_boards_built_total",
			Help: "Departure boards committed by watch sessions.",
		}),
		SnapshotsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_snapshots_saved_total",
			Help: "Board snapshots persisted.",
		}),
		VehiclesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_vehicles_tracked",
			Help: "Vehicles seen in the latest tracking polls.",
		}),
		LiveCacheHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_live_cache_hit_ratio",
			Help: "Hit ratio of the live response cache.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		now:   time.Now,
		feeds: make(map[string]*feedState),
	}

	reg.MustRegister(
		c.FetchTotal, c.FetchDuration, c.SkippedRecords, c.RecordAgeMean, c.RecordAgeStd,
		c.BoardsBuilt, c.SnapshotsSaved, c.VehiclesTracked, c.LiveCacheHitRate,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics: server error: %v", err)
		}
	}()
	log.Printf("Metrics: listening on %s", addr)
	return srv
}

func (c *Collector) feed(source string) *feedState {
	f, ok := c.feeds[source]
	if !ok {
		f = &feedState{}
		c.feeds[source] = f
	}
	return f
}

// ObserveFetch records one upstream request
func (c *Collector) ObserveFetch(source string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.FetchTotal.WithLabelValues(source, result).Inc()
	c.FetchDuration.WithLabelValues(source).Observe(d.Seconds())

	if err == nil {
		c.mu.Lock()
		c.feed(source).lastPolled = c.now()
		c.mu.Unlock()
	}
}

// ObserveSkipped records records dropped by a feed client
func (c *Collector) ObserveSkipped(source string, n int) {
	if n > 0 {
		c.SkippedRecords.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveRecordAge folds one usable record's age into the feed statistics
func (c *Collector) ObserveRecordAge(source string, age time.Duration) {
	c.mu.Lock()
	f := c.feed(source)
	f.age.Observe(age.Minutes())
	mean, std := f.age.Mean(), f.age.StdDev()
	c.mu.Unlock()

	c.RecordAgeMean.WithLabelValues(source).Set(mean)
	c.RecordAgeStd.WithLabelValues(source).Set(std)
}

// IncPublished, IncPublishErr and SetConnected feed the NATS publisher stats
func (c *Collector) IncPublished() { c.NATSPublished.Inc() }
func (c *Collector) IncPublishErr() { c.NATSPublishErrs.Inc() }
func (c *Collector) SetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

// Feeds returns freshness per observed source, sorted by name
func (c *Collector) Feeds() []models.FeedFreshness {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]models.FeedFreshness, 0, len(c.feeds))
	for source, f := range c.feeds {
		ff := models.FeedFreshness{
			Source:      models.FeedSource(source),
			AgeSeconds:  -1,
			RecordCount: f.age.Count(),
			MeanAgeMins: f.age.Mean(),
			StdDevMins:  f.age.StdDev(),
		}
		if !f.lastPolled.IsZero() {
			at := f.lastPolled
			ff.LastPolledAt = &at
			ff.AgeSeconds = int(now.Sub(at).Seconds())
		}
		ff.Status = models.CalculateFreshnessStatus(ff.AgeSeconds)
		out = append(out, ff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
