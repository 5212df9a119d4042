package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stop(id any, lon, lat float64) RawFeature {
	return NewPointFeature(nil, Point{Lon: lon, Lat: lat}, map[string]any{"id": id})
}

func TestHaversineKM(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Point
		want  float64
		delta float64
	}{
		{"same point", Point{0, 0}, Point{0, 0}, 0, 1e-9},
		{"0.009 degrees of latitude", Point{Lon: 0, Lat: 0}, Point{Lon: 0, Lat: 0.009}, 1.0, 0.01},
		{"Pune to Mumbai", Point{Lon: 73.8567, Lat: 18.5204}, Point{Lon: 72.8777, Lat: 19.0760}, 120, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.a.DistanceKM(tt.b), tt.delta)
		})
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := Point{Lon: 2.17, Lat: 41.38}
	b := Point{Lon: 2.19, Lat: 41.40}
	assert.InDelta(t, a.DistanceKM(b), b.DistanceKM(a), 1e-12)
	assert.GreaterOrEqual(t, a.DistanceKM(b), 0.0)
}

func TestBearing(t *testing.T) {
	assert.InDelta(t, 0, Bearing(0, 0, 1, 0), 1e-9)
	assert.InDelta(t, 90, Bearing(0, 0, 0, 1), 1e-9)
	assert.InDelta(t, 180, Bearing(1, 0, 0, 0), 1e-9)
	assert.InDelta(t, 270, Bearing(0, 1, 0, 0), 1e-9)
}

func TestIsValidCoordinate(t *testing.T) {
	assert.False(t, IsValidCoordinate(0, 0))
	assert.False(t, IsValidCoordinate(91, 10))
	assert.False(t, IsValidCoordinate(10, 181))
	assert.True(t, IsValidCoordinate(18.52, 73.85))
}

func TestRepresentativePoint(t *testing.T) {
	line := func(typ, coords string) RawFeature {
		return RawFeature{Geometry: &Geometry{Type: typ, Coordinates: json.RawMessage(coords)}}
	}

	tests := []struct {
		name string
		f    RawFeature
		want Point
		ok   bool
	}{
		{"point", line("Point", `[73.1, 18.2]`), Point{73.1, 18.2}, true},
		{"linestring odd", line("LineString", `[[0,0],[1,1],[2,2]]`), Point{1, 1}, true},
		{"linestring even uses floor(n/2)", line("LineString", `[[0,0],[1,1],[2,2],[3,3]]`), Point{2, 2}, true},
		{"multilinestring uses first line only", line("MultiLineString", `[[[0,0],[5,5],[9,9]],[[100,100]]]`), Point{5, 5}, true},
		{"empty linestring", line("LineString", `[]`), Point{}, false},
		{"unknown geometry", line("Polygon", `[[[0,0],[1,0],[1,1],[0,0]]]`), Point{}, false},
		{
			"property fallback with numeric strings",
			RawFeature{Properties: map[string]any{"lon": "73.5", "lat": 18.5}},
			Point{73.5, 18.5}, true,
		},
		{"nothing", RawFeature{}, Point{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RepresentativePoint(tt.f)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveID(t *testing.T) {
	tests := []struct {
		name string
		f    RawFeature
		hint FeatureType
		want string
		ok   bool
	}{
		{"stop prefers properties.id", RawFeature{ID: 9, Properties: map[string]any{"id": "S1", "stop_id": "S2"}}, FeatureStop, "S1", true},
		{"stop falls back to stop_id", RawFeature{ID: 9, Properties: map[string]any{"stop_id": "S2"}}, FeatureStop, "S2", true},
		{"stop falls back to intrinsic id", RawFeature{ID: float64(9), Properties: map[string]any{}}, FeatureStop, "9", true},
		{"route prefers route_id", RawFeature{Properties: map[string]any{"id": "X", "route_id": "R7"}}, FeatureRoute, "R7", true},
		{"route falls back to id", RawFeature{Properties: map[string]any{"id": "X"}}, FeatureRoute, "X", true},
		{"empty string is absent", RawFeature{Properties: map[string]any{"id": "  ", "stop_id": "S3"}}, FeatureStop, "S3", true},
		{"nil property is absent", RawFeature{Properties: map[string]any{"id": nil}}, FeatureStop, "", false},
		{"kind from feature_type", RawFeature{Properties: map[string]any{"feature_type": "route", "id": "X", "route_id": "R1"}}, "", "R1", true},
		{"unresolvable", RawFeature{}, FeatureStop, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveID(tt.f, tt.hint)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, FeatureRoute, KindOf(RawFeature{}, FeatureRoute))
	assert.Equal(t, FeatureRoute, KindOf(RawFeature{Properties: map[string]any{"feature_type": "route"}}, ""))
	assert.Equal(t, FeatureStop, KindOf(RawFeature{Properties: map[string]any{"feature_type": "bogus"}}, ""))
	assert.Equal(t, FeatureStop, KindOf(RawFeature{}, ""))
}

func TestDedupe(t *testing.T) {
	in := []RawFeature{
		stop("A", 1, 1),
		stop("B", 2, 2),
		stop("A", 1.0001, 1.0001),
		{Properties: map[string]any{"name": "no id"}},
		stop("C", 3, 3),
		stop("B", 2, 2),
	}

	out := Dedupe(in, FeatureStop)
	require.Len(t, out, 3)

	var ids []string
	for _, f := range out {
		id, ok := ResolveID(f, FeatureStop)
		require.True(t, ok)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)

	p, _ := RepresentativePoint(out[0])
	assert.Equal(t, Point{1, 1}, p, "first occurrence wins")
}

func TestDedupeIsIdempotent(t *testing.T) {
	in := []RawFeature{stop("A", 1, 1), stop("A", 1, 1), stop("B", 2, 2)}
	once := Dedupe(in, FeatureStop)
	assert.Equal(t, once, Dedupe(once, FeatureStop))
	assert.Empty(t, Dedupe(nil, FeatureStop))
}

func TestNearest(t *testing.T) {
	q := Point{Lon: 0, Lat: 0}

	t.Run("no candidates", func(t *testing.T) {
		_, ok := Nearest(q, nil, ClickRadiusKM)
		assert.False(t, ok)
	})

	t.Run("single candidate returned without distance check", func(t *testing.T) {
		far := stop("FAR", 10, 10)
		m, ok := Nearest(q, []RawFeature{far}, ClickRadiusKM)
		require.True(t, ok)
		assert.Equal(t, "FAR", m.Feature.StringProperty("id"))
		assert.Equal(t, -1.0, m.DistanceKM)
	})

	t.Run("closest wins", func(t *testing.T) {
		m, ok := Nearest(q, []RawFeature{stop("B", 0, 0.003), stop("A", 0, 0.001)}, ClickRadiusKM)
		require.True(t, ok)
		assert.Equal(t, "A", m.Feature.StringProperty("id"))
		assert.InDelta(t, 0.111, m.DistanceKM, 0.005)
	})

	t.Run("tie keeps input order", func(t *testing.T) {
		m, ok := Nearest(q, []RawFeature{stop("N", 0, 0.002), stop("S", 0, -0.002)}, ClickRadiusKM)
		require.True(t, ok)
		assert.Equal(t, "N", m.Feature.StringProperty("id"))
	})

	t.Run("beyond threshold", func(t *testing.T) {
		_, ok := Nearest(q, []RawFeature{stop("A", 0, 0.01), stop("B", 0, 0.02)}, ClickRadiusKM)
		assert.False(t, ok)
	})

	t.Run("candidates without a point are skipped", func(t *testing.T) {
		noPoint := RawFeature{Properties: map[string]any{"id": "X"}}
		m, ok := Nearest(q, []RawFeature{noPoint, stop("A", 0, 0.001)}, ClickRadiusKM)
		require.True(t, ok)
		assert.Equal(t, "A", m.Feature.StringProperty("id"))
	})

	t.Run("matched distance never exceeds the threshold", func(t *testing.T) {
		var cands []RawFeature
		for i := 1; i <= 20; i++ {
			cands = append(cands, stop(i, 0, float64(i)*0.004))
		}
		for _, maxKM := range []float64{0.1, ClickRadiusKM, NearestStopRadiusKM} {
			m, ok := Nearest(q, cands, maxKM)
			if ok {
				assert.LessOrEqual(t, m.DistanceKM, maxKM)
			}
		}
	})
}

func TestStopIndexNearby(t *testing.T) {
	idx := NewStopIndex()
	origin := Point{Lon: 73.8567, Lat: 18.5204}

	offset := func(km float64) Point {
		return Point{Lon: origin.Lon, Lat: origin.Lat + km/111.195}
	}
	idx.Replace([]RawFeature{
		stop("far", offset(5).Lon, offset(5).Lat),
		stop("mid", offset(1.5).Lon, offset(1.5).Lat),
		stop("near", offset(0.2).Lon, offset(0.2).Lat),
		stop("near", offset(0.2).Lon, offset(0.2).Lat),
		{Properties: map[string]any{"id": "nowhere"}},
	})
	require.Equal(t, 3, idx.Len())

	hits := idx.Nearby(origin, NearestStopRadiusKM, 0)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ID)
	assert.Equal(t, "mid", hits[1].ID)
	assert.InDelta(t, 0.2, hits[0].DistanceKM, 0.01)

	assert.Len(t, idx.Nearby(origin, 10, 1), 1)
	assert.Len(t, idx.Nearby(origin, 10, 0), 3)
	assert.Empty(t, idx.Nearby(origin, 0, 0))

	far := Point{Lon: origin.Lon, Lat: origin.Lat + 2*MaxRadiusKM/111.195}
	idx.Replace([]RawFeature{stop("edge", far.Lon, far.Lat)})
	assert.Empty(t, idx.Nearby(origin, 1e6, 0), "radius is clamped")

	idx.Replace([]RawFeature{stop("near", offset(0.2).Lon, offset(0.2).Lat), stop("mid", offset(1.5).Lon, offset(1.5).Lat)})
	m, ok := Nearest(origin, idx.Candidates(origin, NearestStopRadiusKM), NearestStopRadiusKM)
	require.True(t, ok)
	assert.Equal(t, "near", m.Feature.StringProperty("id"))
	assert.False(t, math.IsNaN(m.DistanceKM))
}

func TestStopIndexLookup(t *testing.T) {
	idx := NewStopIndex()
	idx.Replace([]RawFeature{stop("S1", 73.8567, 18.5204), stop(42, 73.86, 18.52)})

	s, ok := idx.Lookup("S1")
	require.True(t, ok)
	assert.Equal(t, Point{Lon: 73.8567, Lat: 18.5204}, s.Point)
	_, ok = idx.Lookup("42")
	assert.True(t, ok)
	_, ok = idx.Lookup("S9")
	assert.False(t, ok)

	idx.Replace(nil)
	_, ok = idx.Lookup("S1")
	assert.False(t, ok)
}

func TestWithin(t *testing.T) {
	q := Point{Lon: 0, Lat: 0}
	cands := []RawFeature{
		stop("far", 0.006, 0.006), // ~0.94 km
		stop("near", 0, 0.004),    // ~0.44 km
		{Properties: map[string]any{"id": "nowhere"}},
	}
	got := Within(q, cands, ClickRadiusKM)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].StringProperty("id"))
	assert.Empty(t, Within(q, nil, ClickRadiusKM))
}
