package features

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/transit-explorer/core/internal/static/gtfs"
)

// RefreshConfig controls rebuilding feature files from GTFS
type RefreshConfig struct {
	GTFSURL     string
	CacheDir    string
	RefreshDays int
	// LiveRouteIDs marks routes the live feed covers; nil marks all
	LiveRouteIDs map[string]bool
}

// RefreshIfStale rebuilds the source's feature files when the manifest is
// missing or older than cfg.RefreshDays, then reloads. It reports whether a
// rebuild happened.
func (s *FileSource) RefreshIfStale(ctx context.Context, cfg RefreshConfig) (bool, error) {
	if !isStaleOrMissing(s.dir, cfg.RefreshDays, time.Now()) {
		log.Println("Features: static data is fresh, skipping refresh")
		return false, nil
	}
	if cfg.GTFSURL == "" {
		log.Println("Features: GTFS_URL not configured, using existing data")
		return false, nil
	}

	log.Println("Features: refreshing static data...")
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return false, err
	}

	zipPath := filepath.Join(cfg.CacheDir, "gtfs.zip")
	if err := gtfs.Download(ctx, cfg.GTFSURL, zipPath); err != nil {
		return false, err
	}
	if err := Rebuild(zipPath, s.dir, gtfs.BuildOptions{LiveRouteIDs: cfg.LiveRouteIDs, Source: cfg.GTFSURL}); err != nil {
		return false, err
	}
	if err := s.Reload(); err != nil {
		return true, err
	}
	log.Println("Features: static data refreshed successfully")
	return true, nil
}

// Rebuild parses zipPath and writes fresh feature files into dir
func Rebuild(zipPath, dir string, opts gtfs.BuildOptions) error {
	data, err := gtfs.Parse(zipPath)
	if err != nil {
		return fmt.Errorf("failed to parse GTFS: %w", err)
	}
	built, err := gtfs.Build(data, opts)
	if err != nil {
		return fmt.Errorf("failed to build features: %w", err)
	}
	if _, err := gtfs.WriteFiles(dir, built, opts); err != nil {
		return err
	}
	return nil
}

func isStaleOrMissing(dir string, maxAgeDays int, now time.Time) bool {
	manifest, err := gtfs.ReadManifest(dir)
	if err != nil {
		return true
	}
	generatedAt, err := manifest.GeneratedTime()
	if err != nil {
		return true
	}
	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour
	return now.Sub(generatedAt) > maxAge
}
