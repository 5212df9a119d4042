package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/transit-explorer/core/internal/config"
	"github.com/transit-explorer/core/internal/features"
	"github.com/transit-explorer/core/internal/static/gtfs"
)

func main() {
	config.LoadEnvFiles("../..")

	// Command line flags
	zipPath := flag.String("zip", "", "Local GTFS zip; downloaded from -url when empty")
	url := flag.String("url", os.Getenv("GTFS_URL"), "GTFS zip URL")
	outDir := flag.String("out", envOr("DATA_DIR", "../../data"), "Directory to write stops/routes GeoJSON into")
	liveRoutes := flag.String("live-routes", os.Getenv("LIVE_ROUTE_IDS"), "Comma-separated route_ids the live feed covers; empty marks all live")
	flag.Parse()

	if *zipPath == "" {
		if *url == "" {
			log.Fatal("Either -zip or -url (or GTFS_URL) is required")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		*zipPath = filepath.Join(os.TempDir(), "gtfs.zip")
		log.Printf("Downloading %s...", *url)
		if err := gtfs.Download(ctx, *url, *zipPath); err != nil {
			log.Fatalf("Download failed: %v", err)
		}
	}

	opts := gtfs.BuildOptions{Source: *url}
	if *liveRoutes != "" {
		opts.LiveRouteIDs = make(map[string]bool)
		for _, id := range strings.Split(*liveRoutes, ",") {
			if id = strings.TrimSpace(id); id != "" {
				opts.LiveRouteIDs[id] = true
			}
		}
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	log.Printf("Building features from %s into %s...", *zipPath, *outDir)
	if err := features.Rebuild(*zipPath, *outDir, opts); err != nil {
		log.Fatalf("Build failed: %v", err)
	}

	m, err := gtfs.ReadManifest(*outDir)
	if err != nil {
		log.Fatalf("Failed to read manifest: %v", err)
	}
	log.Printf("SUCCESS: %d stops, %d routes (generated %s)", m.StopCount, m.RouteCount, m.GeneratedAt)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
