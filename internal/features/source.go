// Package features serves the stop and route map features the core resolves
// against, loaded from GeoJSON files produced by the GTFS builder.
package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/static/gtfs"
)

// Querier is the map feature source collaborator
type Querier interface {
	QueryFeatures(f Filter) []geo.RawFeature
}

// BBox is a lon/lat bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Contains reports whether p lies inside the box (edges inclusive)
func (b BBox) Contains(p geo.Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Around returns a box of roughly radiusKM around p
func Around(p geo.Point, radiusKM float64) BBox {
	dLat := radiusKM / 111.195
	dLon := dLat
	if c := cosDeg(p.Lat); c > 0.01 {
		dLon = dLat / c
	}
	return BBox{MinLon: p.Lon - dLon, MinLat: p.Lat - dLat, MaxLon: p.Lon + dLon, MaxLat: p.Lat + dLat}
}

// Filter narrows a feature query. Zero values match everything.
type Filter struct {
	Type       geo.FeatureType
	BBox       *BBox
	Properties map[string]string
}

func (f Filter) matches(feat geo.RawFeature) bool {
	if f.BBox != nil {
		p, ok := geo.RepresentativePoint(feat)
		if !ok || !f.BBox.Contains(p) {
			return false
		}
	}
	for k, want := range f.Properties {
		if feat.StringProperty(k) != want {
			return false
		}
	}
	return true
}

// FileSource holds the feature files of one data directory in memory.
// Safe for concurrent use; Reload swaps contents atomically.
type FileSource struct {
	dir string

	mu       sync.RWMutex
	stops    []geo.RawFeature
	routes   []geo.RawFeature
	manifest *gtfs.Manifest
	loadedAt time.Time
	index    *geo.StopIndex
}

// NewFileSource creates a source for dir; call Reload before querying
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir, index: geo.NewStopIndex()}
}

// Dir returns the data directory
func (s *FileSource) Dir() string { return s.dir }

// Reload re-reads stops, routes and manifest from disk
func (s *FileSource) Reload() error {
	stops, err := readCollection(filepath.Join(s.dir, gtfs.StopsFile))
	if err != nil {
		return fmt.Errorf("failed to load stops: %w", err)
	}
	routes, err := readCollection(filepath.Join(s.dir, gtfs.RoutesFile))
	if err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}
	manifest, err := gtfs.ReadManifest(s.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Features: ignoring unreadable manifest: %v", err)
	}

	index := geo.NewStopIndex()
	index.Replace(stops)

	s.mu.Lock()
	s.stops = stops
	s.routes = routes
	s.manifest = manifest
	s.loadedAt = time.Now()
	s.index = index
	s.mu.Unlock()

	log.Printf("Features: loaded %d stop features, %d route features from %s", len(stops), len(routes), s.dir)
	return nil
}

func readCollection(path string) ([]geo.RawFeature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc geo.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return fc.Features, nil
}

// QueryFeatures returns every feature matching f, duplicates included.
// Without a Type, stops come before routes.
func (s *FileSource) QueryFeatures(f Filter) []geo.RawFeature {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pools [][]geo.RawFeature
	switch f.Type {
	case geo.FeatureStop:
		pools = [][]geo.RawFeature{s.stops}
	case geo.FeatureRoute:
		pools = [][]geo.RawFeature{s.routes}
	default:
		pools = [][]geo.RawFeature{s.stops, s.routes}
	}

	var out []geo.RawFeature
	for _, pool := range pools {
		for _, feat := range pool {
			if f.matches(feat) {
				out = append(out, feat)
			}
		}
	}
	return out
}

// Index returns the spatial index over the loaded stops
func (s *FileSource) Index() *geo.StopIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Manifest returns the manifest of the loaded data, if any
func (s *FileSource) Manifest() *gtfs.Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

// Counts returns the number of distinct stops and routes
func (s *FileSource) Counts() (stops, routes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(geo.Dedupe(s.stops, geo.FeatureStop)), len(geo.Dedupe(s.routes, geo.FeatureRoute))
}

// RouteNames maps route ids to display names, for feeds that only carry ids
func (s *FileSource) RouteNames() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string)
	for _, f := range s.routes {
		id, ok := geo.ResolveID(f, geo.FeatureRoute)
		if !ok {
			continue
		}
		if r := ToRoute(f); r.ShortName != "" {
			names[id] = r.ShortName
		}
	}
	return names
}

// LoadedAt returns when the files were last read
func (s *FileSource) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
