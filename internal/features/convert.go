package features

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/timetable"
)

// ErrNoIdentity is returned for features no id strategy resolves
var ErrNoIdentity = errors.New("feature has no resolvable id")

// ToStop converts a stop feature, decoding its timetable blob
func ToStop(f geo.RawFeature) (models.Stop, error) {
	id, ok := geo.ResolveID(f, geo.FeatureStop)
	if !ok {
		return models.Stop{}, ErrNoIdentity
	}
	p, _ := geo.RepresentativePoint(f)

	stop := models.Stop{
		ID:          id,
		Name:        f.StringProperty("name"),
		Latitude:    p.Lat,
		Longitude:   p.Lon,
		TowardsStop: f.StringProperty("towards_stop"),
	}

	if raw, ok := f.Property("timetable"); ok {
		entries, err := timetable.Parse(raw)
		if err != nil {
			return stop, fmt.Errorf("stop %s: %w", id, err)
		}
		stop.Timetable = entries
	}
	return stop, nil
}

// ToRoute converts a route feature
func ToRoute(f geo.RawFeature) models.Route {
	id, _ := geo.ResolveID(f, geo.FeatureRoute)
	short := f.StringProperty("short_name")
	if short == "" {
		short = f.StringProperty("name")
	}
	return models.Route{
		ID:        id,
		ShortName: short,
		LongName:  f.StringProperty("long_name"),
		Agency:    f.StringProperty("agency"),
		FareType:  f.StringProperty("fare_type"),
		Color:     f.StringProperty("color"),
		IsLive:    boolProperty(f, "is_live"),
	}
}

func boolProperty(f geo.RawFeature, key string) bool {
	v, ok := f.Property(key)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true") || t == "1"
	case float64:
		return t != 0
	}
	return false
}

func cosDeg(deg float64) float64 {
	return math.Cos(deg * math.Pi / 180)
}
