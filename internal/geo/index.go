package geo

import (
	"sort"
	"sync"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const indexLevel = 13 // S2 cell level with roughly 1 km cells

// MaxRadiusKM caps Nearby queries; larger radii are clamped
const MaxRadiusKM = 50.0

// IndexedStop is a stop placed in a StopIndex
type IndexedStop struct {
	ID      string
	Point   Point
	Feature RawFeature
}

// NearbyStop is a StopIndex query hit
type NearbyStop struct {
	IndexedStop
	DistanceKM float64
}

// StopIndex buckets stops by S2 cell so radius queries only touch nearby
// cells. Safe for concurrent use; Replace swaps the whole index.
type StopIndex struct {
	mu    sync.RWMutex
	cells map[s2.CellID][]IndexedStop
	byID  map[string]IndexedStop
	size  int
}

func NewStopIndex() *StopIndex {
	return &StopIndex{cells: make(map[s2.CellID][]IndexedStop), byID: make(map[string]IndexedStop)}
}

func cellOf(p Point) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon)).Parent(indexLevel)
}

// Replace rebuilds the index from stop features. Features are deduplicated
// first; those without an id or a point are ignored.
func (idx *StopIndex) Replace(features []RawFeature) {
	cells := make(map[s2.CellID][]IndexedStop)
	byID := make(map[string]IndexedStop)
	size := 0
	for _, f := range Dedupe(features, FeatureStop) {
		id, _ := ResolveID(f, FeatureStop)
		p, ok := RepresentativePoint(f)
		if !ok {
			continue
		}
		s := IndexedStop{ID: id, Point: p, Feature: f}
		c := cellOf(p)
		cells[c] = append(cells[c], s)
		byID[id] = s
		size++
	}

	idx.mu.Lock()
	idx.cells = cells
	idx.byID = byID
	idx.size = size
	idx.mu.Unlock()
}

func (idx *StopIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.size
}

// Lookup returns the indexed stop with the given canonical id
func (idx *StopIndex) Lookup(id string) (IndexedStop, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s, ok := idx.byID[id]
	return s, ok
}

// Nearby returns stops within radiusKM of q, closest first. limit <= 0 means
// no limit. radiusKM is clamped to MaxRadiusKM.
func (idx *StopIndex) Nearby(q Point, radiusKM float64, limit int) []NearbyStop {
	if radiusKM <= 0 {
		return nil
	}
	radiusKM = min(radiusKM, MaxRadiusKM)

	center := s2.PointFromLatLng(s2.LatLngFromDegrees(q.Lat, q.Lon))
	region := s2.CapFromCenterAngle(center, s1.Angle(radiusKM/EarthRadiusKM))
	coverer := &s2.RegionCoverer{MinLevel: indexLevel, MaxLevel: indexLevel, MaxCells: 64}
	covering := coverer.Covering(region)

	idx.mu.RLock()
	var hits []NearbyStop
	for _, c := range covering {
		for _, s := range idx.cells[c] {
			d := q.DistanceKM(s.Point)
			if d <= radiusKM {
				hits = append(hits, NearbyStop{IndexedStop: s, DistanceKM: d})
			}
		}
	}
	idx.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].DistanceKM != hits[j].DistanceKM {
			return hits[i].DistanceKM < hits[j].DistanceKM
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Candidates returns the raw features of stops within radiusKM, closest
// first, ready to hand to Nearest.
func (idx *StopIndex) Candidates(q Point, radiusKM float64) []RawFeature {
	hits := idx.Nearby(q, radiusKM, 0)
	out := make([]RawFeature, len(hits))
	for i, h := range hits {
		out[i] = h.Feature
	}
	return out
}
