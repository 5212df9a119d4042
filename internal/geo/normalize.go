package geo

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RepresentativePoint returns the single point used to place a feature.
// Lines use the vertex at index len/2 rather than the geodesic midpoint, and
// multi-lines use only their first line; matching behaviour depends on this.
func RepresentativePoint(f RawFeature) (Point, bool) {
	if f.Geometry != nil && len(f.Geometry.Coordinates) > 0 {
		if p, ok := geometryPoint(f.Geometry); ok {
			return p, true
		}
	}
	return propertyPoint(f)
}

func geometryPoint(g *Geometry) (Point, bool) {
	switch g.Type {
	case "Point":
		var c []float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return Point{}, false
		}
		return pointFrom(c)
	case "LineString":
		var line [][]float64
		if err := json.Unmarshal(g.Coordinates, &line); err != nil {
			return Point{}, false
		}
		return midVertex(line)
	case "MultiLineString":
		var lines [][][]float64
		if err := json.Unmarshal(g.Coordinates, &lines); err != nil || len(lines) == 0 {
			return Point{}, false
		}
		return midVertex(lines[0])
	}
	return Point{}, false
}

func midVertex(line [][]float64) (Point, bool) {
	if len(line) == 0 {
		return Point{}, false
	}
	return pointFrom(line[len(line)/2])
}

func pointFrom(c []float64) (Point, bool) {
	if len(c) < 2 {
		return Point{}, false
	}
	return Point{Lon: c[0], Lat: c[1]}, true
}

func propertyPoint(f RawFeature) (Point, bool) {
	lonV, ok1 := f.Property("lon")
	latV, ok2 := f.Property("lat")
	if !ok1 || !ok2 {
		return Point{}, false
	}
	lon, ok1 := scalarFloat(lonV)
	lat, ok2 := scalarFloat(latV)
	if !ok1 || !ok2 {
		return Point{}, false
	}
	return Point{Lon: lon, Lat: lat}, true
}

// idStrategy extracts one candidate identity from a feature
type idStrategy struct {
	name    string
	extract func(RawFeature) (string, bool)
}

func fromProperty(key string) idStrategy {
	return idStrategy{
		name: "properties." + key,
		extract: func(f RawFeature) (string, bool) {
			v, ok := f.Property(key)
			if !ok {
				return "", false
			}
			return scalarString(v)
		},
	}
}

var intrinsicID = idStrategy{
	name: "feature.id",
	extract: func(f RawFeature) (string, bool) {
		if f.ID == nil {
			return "", false
		}
		return scalarString(f.ID)
	},
}

// idStrategies lists, per entity type, where identity is looked up.
// Evaluated in order; the first strategy that yields a value wins.
var idStrategies = map[FeatureType][]idStrategy{
	FeatureStop:  {fromProperty("id"), fromProperty("stop_id"), intrinsicID},
	FeatureRoute: {fromProperty("route_id"), fromProperty("id"), intrinsicID},
}

// KindOf decides which strategy list applies to a feature
func KindOf(f RawFeature, hint FeatureType) FeatureType {
	if hint == FeatureStop || hint == FeatureRoute {
		return hint
	}
	switch FeatureType(f.StringProperty("feature_type")) {
	case FeatureRoute:
		return FeatureRoute
	default:
		return FeatureStop
	}
}

// ResolveID returns the canonical entity id of a feature. A false result
// means the feature can be neither deduplicated nor targeted for styling.
func ResolveID(f RawFeature, hint FeatureType) (string, bool) {
	for _, s := range idStrategies[KindOf(f, hint)] {
		if id, ok := s.extract(f); ok {
			return id, true
		}
	}
	return "", false
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case json.Number:
		return t.String(), t.String() != ""
	}
	return "", false
}

func scalarFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
