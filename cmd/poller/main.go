package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/transit-explorer/core/internal/board"
	"github.com/transit-explorer/core/internal/config"
	"github.com/transit-explorer/core/internal/db"
	"github.com/transit-explorer/core/internal/features"
	"github.com/transit-explorer/core/internal/metrics"
	"github.com/transit-explorer/core/internal/publisher"
	"github.com/transit-explorer/core/internal/realtime"
	"github.com/transit-explorer/core/internal/realtime/feeds"
	"github.com/transit-explorer/core/internal/watch"
)

func main() {
	log.Println("Starting Go Poller Service...")

	config.LoadEnvFiles("../..")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Printf("Config loaded: poll_interval=%v, retention=%v, live_source=%s",
		cfg.PollInterval, cfg.RetentionDuration, cfg.LiveSource)

	watchlist, err := config.LoadWatchlist(cfg.WatchlistFile)
	if err != nil {
		log.Fatalf("Failed to load watchlist: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		srv := collector.Serve(cfg.MetricsAddr)
		defer srv.Close()
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Static Data Refresh (startup)
	// ═══════════════════════════════════════════════════════
	source := features.NewFileSource(cfg.DataDir)
	refreshCfg := features.RefreshConfig{
		GTFSURL:      cfg.GTFSURL,
		CacheDir:     cfg.CacheDir,
		RefreshDays:  cfg.StaticRefreshDays,
		LiveRouteIDs: cfg.LiveRouteSet(),
	}
	log.Println("Checking static data freshness...")
	refreshed, err := source.RefreshIfStale(ctx, refreshCfg)
	if err != nil {
		// Continue anyway - use existing data if available
		log.Printf("Warning: static data refresh failed: %v", err)
	}
	if !refreshed {
		if err := source.Reload(); err != nil {
			log.Fatalf("Failed to load features from %s: %v", cfg.DataDir, err)
		}
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Initialize Database
	// ═══════════════════════════════════════════════════════
	var database *db.DB
	if cfg.UsePostgres() {
		database, err = db.ConnectPostgres(cfg.DatabaseURL)
	} else {
		database, err = db.ConnectSQLite(cfg.DatabasePath)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}
	log.Println("Database initialized")

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Live feed, publisher, watch sessions
	// ═══════════════════════════════════════════════════════
	live, err := feeds.New(cfg, source.RouteNames(), collector)
	if err != nil {
		log.Fatalf("Failed to configure live feed: %v", err)
	}

	var pub watch.Publisher
	if cfg.NATSURL != "" {
		nats, err := publisher.NewNATSPublisher(cfg.NATSURL, collector)
		if err != nil {
			// Continue without fan-out; positions are still stored
			log.Printf("Warning: %v", err)
		} else {
			defer nats.Close()
			pub = nats
		}
	}

	poller := watch.NewPoller(board.NewService(source, live), live, source, database, watch.Options{
		Interval:  cfg.PollInterval,
		Now:       func() time.Time { return time.Now().In(cfg.Location) },
		Publisher: pub,
		Metrics:   collector,
	})
	poller.Start(ctx, watchlist)
	defer poller.Close()

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Housekeeping loops
	// ═══════════════════════════════════════════════════════
	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				housekeep(ctx, database, live, collector, cfg)
			case <-ctx.Done():
				log.Println("Housekeeping loop stopped")
				return
			}
		}
	}()

	// Static data refresh goroutine
	go func() {
		// Check every 24 hours
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				log.Println("Running daily static data freshness check...")
				if _, err := source.RefreshIfStale(ctx, refreshCfg); err != nil {
					log.Printf("Static refresh failed: %v", err)
				}
			case <-ctx.Done():
				log.Println("Static refresh loop stopped")
				return
			}
		}
	}()

	log.Printf("Poller running (poll every %v, retain %v)", cfg.PollInterval, cfg.RetentionDuration)

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Graceful Shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	cancel()
	poller.Close()
	log.Println("Goodbye!")
}

func housekeep(ctx context.Context, database *db.DB, live *realtime.CachedSource, collector *metrics.Collector, cfg *config.Config) {
	collector.LiveCacheHitRate.Set(live.HitRate())

	// Cleanup old data
	if err := database.Cleanup(ctx, cfg.RetentionDuration, time.Now()); err != nil {
		log.Printf("Cleanup error: %v", err)
	}
}
