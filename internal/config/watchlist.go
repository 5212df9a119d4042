package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Watchlist names what the poller keeps warm: stop boards it refreshes,
// routes whose vehicles it tracks, and locations it resolves to their
// closest stop.
type Watchlist struct {
	Stops     []WatchedStop     `yaml:"stops" validate:"dive"`
	Routes    []WatchedRoute    `yaml:"routes" validate:"dive"`
	Locations []WatchedLocation `yaml:"locations" validate:"dive"`
}

type WatchedStop struct {
	StopID string `yaml:"stop_id" validate:"required"`
	Name   string `yaml:"name"`
}

type WatchedRoute struct {
	RouteID string `yaml:"route_id" validate:"required"`
}

type WatchedLocation struct {
	Name string  `yaml:"name" validate:"required"`
	Lat  float64 `yaml:"lat" validate:"latitude"`
	Lon  float64 `yaml:"lon" validate:"longitude"`
}

// LoadWatchlist reads and validates a YAML watchlist. An empty path yields
// an empty watchlist.
func LoadWatchlist(path string) (*Watchlist, error) {
	if path == "" {
		return &Watchlist{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}
	return ParseWatchlist(data)
}

// ParseWatchlist decodes and validates YAML watchlist content
func ParseWatchlist(data []byte) (*Watchlist, error) {
	var w Watchlist
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist: %w", err)
	}
	if err := validator.New().Struct(w); err != nil {
		return nil, fmt.Errorf("invalid watchlist: %w", err)
	}
	return &w, nil
}

// StopIDs returns the watched stop ids in file order
func (w *Watchlist) StopIDs() []string {
	ids := make([]string, len(w.Stops))
	for i, s := range w.Stops {
		ids[i] = s.StopID
	}
	return ids
}
