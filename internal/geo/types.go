package geo

import (
	"encoding/json"
	"fmt"
)

// FeatureType discriminates the two entity kinds the map exposes
type FeatureType string

const (
	FeatureStop  FeatureType = "stop"
	FeatureRoute FeatureType = "route"
)

// Point is a WGS84 coordinate
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lon, p.Lat)
}

// Geometry is a GeoJSON geometry whose coordinates are decoded on demand,
// since the nesting depth depends on Type.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// RawFeature is a feature as returned by querying loaded tile data.
// The same physical entity may appear several times across adjacent tiles.
type RawFeature struct {
	Type       string         `json:"type,omitempty"`
	ID         any            `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry,omitempty"`
}

// Property returns a property value, tolerating a nil property map
func (f RawFeature) Property(key string) (any, bool) {
	if f.Properties == nil {
		return nil, false
	}
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// StringProperty returns a property rendered as a string, or "" when absent
func (f RawFeature) StringProperty(key string) string {
	v, ok := f.Property(key)
	if !ok {
		return ""
	}
	s, _ := scalarString(v)
	return s
}

// NewPointFeature builds a Point feature; used by builders and tests.
func NewPointFeature(id any, p Point, props map[string]any) RawFeature {
	coords, _ := json.Marshal([]float64{p.Lon, p.Lat})
	return RawFeature{
		Type:       "Feature",
		ID:         id,
		Properties: props,
		Geometry:   &Geometry{Type: "Point", Coordinates: coords},
	}
}

// NewMultiLineFeature builds a MultiLineString feature from [lon, lat] lines
func NewMultiLineFeature(id any, lines [][][2]float64, props map[string]any) RawFeature {
	coords, _ := json.Marshal(lines)
	return RawFeature{
		Type:       "Feature",
		ID:         id,
		Properties: props,
		Geometry:   &Geometry{Type: "MultiLineString", Coordinates: coords},
	}
}

// FeatureCollection is the GeoJSON container written and read from disk
type FeatureCollection struct {
	Type     string       `json:"type"`
	Features []RawFeature `json:"features"`
}
