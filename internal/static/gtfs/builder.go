package gtfs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/timetable"
)

const (
	StopsFile    = "stops.geojson"
	RoutesFile   = "routes.geojson"
	ManifestFile = "manifest.json"

	manifestVersion = "1.0"
)

var acPattern = regexp.MustCompile(`(?i)\bA/?C\b|air[- ]?condition`)

// Manifest describes a generated feature set
type Manifest struct {
	Version     string              `json:"version"`
	GeneratedAt string              `json:"generated_at"`
	Source      string              `json:"source,omitempty"`
	StopCount   int                 `json:"stop_count"`
	RouteCount  int                 `json:"route_count"`
	Files       []ManifestFileEntry `json:"files"`
}

// ManifestFileEntry is one generated file
type ManifestFileEntry struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// BuildOptions tune feature generation
type BuildOptions struct {
	// LiveRouteIDs are routes the live feed covers; nil marks every route live
	LiveRouteIDs map[string]bool
	Source       string
	Now          time.Time
}

// Features is the output of Build
type Features struct {
	Stops  geo.FeatureCollection
	Routes geo.FeatureCollection
}

type entryKey struct {
	stopID, routeID, headsign string
}

// Build turns parsed GTFS into stop and route feature collections. Every
// stop feature carries its serialized timetable; routes become one
// MultiLineString built from their shapes (or stop sequence when a route has
// no shapes).
func Build(data *Data, opts BuildOptions) (*Features, error) {
	routes := make(map[string]Route, len(data.Routes))
	for _, r := range data.Routes {
		routes[r.RouteID] = r
	}
	trips := make(map[string]Trip, len(data.Trips))
	for _, t := range data.Trips {
		trips[t.TripID] = t
	}
	agencies := make(map[string]string, len(data.Agency))
	for _, a := range data.Agency {
		agencies[a.AgencyID] = a.AgencyName
	}
	fares := make(map[string]string)
	for _, f := range data.FareRules {
		if _, ok := fares[f.RouteID]; !ok {
			fares[f.RouteID] = f.FareID
		}
	}
	stops := make(map[string]Stop, len(data.Stops))
	for _, s := range data.Stops {
		stops[s.StopID] = s
	}

	byTrip := stopTimesByTrip(data.StopTimes)

	times := make(map[entryKey]map[timetable.Clock]bool)
	towards := make(map[string]map[string]int) // stop -> next stop -> count
	for tripID, sts := range byTrip {
		trip, ok := trips[tripID]
		if !ok {
			continue
		}
		for i, st := range sts {
			raw := st.DepartureTime
			if raw == "" {
				raw = st.ArrivalTime
			}
			c, err := timetable.ParseClock(raw)
			if err != nil {
				continue
			}
			k := entryKey{st.StopID, trip.RouteID, trip.TripHeadsign}
			if times[k] == nil {
				times[k] = make(map[timetable.Clock]bool)
			}
			times[k][c] = true

			if i+1 < len(sts) {
				if towards[st.StopID] == nil {
					towards[st.StopID] = make(map[string]int)
				}
				towards[st.StopID][sts[i+1].StopID]++
			}
		}
	}

	entries := make(map[string][]timetable.Entry)
	for k, set := range times {
		route, ok := routes[k.routeID]
		if !ok {
			continue
		}
		clocks := make([]timetable.Clock, 0, len(set))
		for c := range set {
			clocks = append(clocks, c)
		}
		sort.Slice(clocks, func(i, j int) bool { return clocks[i] < clocks[j] })

		formatted := make([]string, len(clocks))
		for i, c := range clocks {
			formatted[i] = c.String()
		}

		entries[k.stopID] = append(entries[k.stopID], timetable.Entry{
			Route:       route.DisplayName(),
			RouteID:     route.RouteID,
			Destination: k.headsign,
			Times:       formatted,
			Headway:     bucketHeadways(clocks),
			IsLive:      opts.LiveRouteIDs == nil || opts.LiveRouteIDs[route.RouteID],
			ACService:   acPattern.MatchString(route.RouteDesc) || acPattern.MatchString(route.RouteLongName),
			Agency:      agencies[route.AgencyID],
			FareType:    fares[route.RouteID],
		})
	}

	out := &Features{
		Stops:  geo.FeatureCollection{Type: "FeatureCollection"},
		Routes: geo.FeatureCollection{Type: "FeatureCollection"},
	}

	for _, s := range data.Stops {
		if s.LocationType != 0 || !geo.IsValidCoordinate(s.StopLat, s.StopLon) {
			continue
		}
		es := entries[s.StopID]
		sort.Slice(es, func(i, j int) bool {
			if es[i].Route != es[j].Route {
				return es[i].Route < es[j].Route
			}
			return es[i].Destination < es[j].Destination
		})
		blob, err := timetable.Encode(es)
		if err != nil {
			return nil, fmt.Errorf("failed to encode timetable for stop %s: %w", s.StopID, err)
		}

		props := map[string]any{
			"feature_type": string(geo.FeatureStop),
			"id":           s.StopID,
			"name":         s.StopName,
			"code":         s.StopCode,
			"timetable":    blob,
			"route_count":  len(es),
		}
		if next := mostCommon(towards[s.StopID]); next != "" {
			props["towards_stop"] = stops[next].StopName
		}
		out.Stops.Features = append(out.Stops.Features,
			geo.NewPointFeature(s.StopID, geo.Point{Lon: s.StopLon, Lat: s.StopLat}, props))
	}

	routeLines := routeGeometry(data, byTrip, stops)
	for _, r := range data.Routes {
		lines := routeLines[r.RouteID]
		if len(lines) == 0 {
			log.Printf("GTFS: route %s has no geometry, skipping", r.RouteID)
			continue
		}
		props := map[string]any{
			"feature_type": string(geo.FeatureRoute),
			"route_id":     r.RouteID,
			"short_name":   r.RouteShortName,
			"long_name":    r.RouteLongName,
			"agency":       agencies[r.AgencyID],
			"color":        r.RouteColor,
			"fare_type":    fares[r.RouteID],
			"is_live":      opts.LiveRouteIDs == nil || opts.LiveRouteIDs[r.RouteID],
		}
		out.Routes.Features = append(out.Routes.Features, geo.NewMultiLineFeature(r.RouteID, lines, props))
	}

	log.Printf("GTFS: built %d stop features, %d route features", len(out.Stops.Features), len(out.Routes.Features))
	return out, nil
}

func stopTimesByTrip(stopTimes []StopTime) map[string][]StopTime {
	byTrip := make(map[string][]StopTime)
	for _, st := range stopTimes {
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}
	for id := range byTrip {
		sts := byTrip[id]
		sort.Slice(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })
	}
	return byTrip
}

// bucketHeadways derives the typical gap per time-of-day bucket as the
// median of consecutive departures starting in that bucket.
func bucketHeadways(clocks []timetable.Clock) models.Headway {
	gaps := make(map[string][]int)
	for i := 1; i < len(clocks); i++ {
		gap := int(clocks[i] - clocks[i-1])
		if gap <= 0 {
			continue
		}
		b := models.BucketFor(clocks[i-1].Hour() % 24)
		gaps[b] = append(gaps[b], gap)
	}
	if len(gaps) == 0 {
		return models.Headway{}
	}

	h := models.Headway{Buckets: make(map[string]int, len(gaps))}
	for b, gs := range gaps {
		sort.Ints(gs)
		h.Buckets[b] = gs[len(gs)/2]
	}
	return h
}

func routeGeometry(data *Data, byTrip map[string][]StopTime, stops map[string]Stop) map[string][][][2]float64 {
	shapeIDs := make(map[string]map[string]bool)
	longestTrip := make(map[string]string)
	for _, t := range data.Trips {
		if t.ShapeID != "" {
			if shapeIDs[t.RouteID] == nil {
				shapeIDs[t.RouteID] = make(map[string]bool)
			}
			shapeIDs[t.RouteID][t.ShapeID] = true
		}
		if cur, ok := longestTrip[t.RouteID]; !ok || len(byTrip[t.TripID]) > len(byTrip[cur]) {
			longestTrip[t.RouteID] = t.TripID
		}
	}

	out := make(map[string][][][2]float64)
	for routeID, ids := range shapeIDs {
		sorted := make([]string, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		sort.Strings(sorted)
		for _, id := range sorted {
			pts := data.Shapes[id]
			if len(pts) < 2 {
				continue
			}
			line := make([][2]float64, len(pts))
			for i, p := range pts {
				line[i] = [2]float64{p.ShapePtLon, p.ShapePtLat}
			}
			out[routeID] = append(out[routeID], line)
		}
	}

	for routeID, tripID := range longestTrip {
		if len(out[routeID]) > 0 {
			continue
		}
		var line [][2]float64
		for _, st := range byTrip[tripID] {
			if s, ok := stops[st.StopID]; ok {
				line = append(line, [2]float64{s.StopLon, s.StopLat})
			}
		}
		if len(line) >= 2 {
			out[routeID] = [][][2]float64{line}
		}
	}
	return out
}

func mostCommon(counts map[string]int) string {
	best, bestN := "", 0
	for id, n := range counts {
		if n > bestN || (n == bestN && id < best) {
			best, bestN = id, n
		}
	}
	return best
}

// WriteFiles writes the collections and a manifest into dir
func WriteFiles(dir string, f *Features, opts BuildOptions) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	manifest := &Manifest{
		Version:     manifestVersion,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Source:      opts.Source,
		StopCount:   len(f.Stops.Features),
		RouteCount:  len(f.Routes.Features),
	}

	for _, out := range []struct {
		typ, name string
		fc        geo.FeatureCollection
	}{
		{"stops", StopsFile, f.Stops},
		{"routes", RoutesFile, f.Routes},
	} {
		data, err := json.Marshal(out.fc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", out.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, out.name), data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", out.name, err)
		}
		manifest.Files = append(manifest.Files, ManifestFileEntry{Type: out.typ, Path: out.name, Checksum: sha256Sum(data)})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return manifest, nil
}

// ReadManifest loads dir's manifest
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// GeneratedTime parses GeneratedAt
func (m *Manifest) GeneratedTime() (time.Time, error) {
	return time.Parse(time.RFC3339, m.GeneratedAt)
}

func sha256Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
